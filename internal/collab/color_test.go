package collab

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAssignColorIsStable(t *testing.T) {
	userID := uuid.New()
	first := AssignColor(userID)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AssignColor(userID))
	}
}

func TestAssignColorStaysInPalette(t *testing.T) {
	palette := make(map[string]bool, len(presencePalette))
	for _, c := range presencePalette {
		palette[c] = true
	}
	for i := 0; i < 200; i++ {
		assert.True(t, palette[AssignColor(uuid.New())])
	}
}
