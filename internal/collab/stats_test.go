package collab

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceReporterAppliesUpdatesInOrder(t *testing.T) {
	applied := make(chan statsUpdate, 16)
	r := &PresenceReporter{
		logger:  nopLogger{},
		updates: make(chan statsUpdate, 16),
		write: func(_ context.Context, u statsUpdate) error {
			applied <- u
			return nil
		},
	}
	go r.run()

	// A rapid join then leave must land as set-then-delete, never the reverse.
	docID := uuid.New()
	r.Report(docID, 1)
	r.Report(docID, 2)
	r.Report(docID, 0)

	for _, want := range []int{1, 2, 0} {
		select {
		case got := <-applied:
			assert.Equal(t, docID, got.documentID)
			assert.Equal(t, want, got.participants)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for mirror write")
		}
	}
}

func TestPresenceReporterWithoutRedisIsInert(t *testing.T) {
	r := NewPresenceReporter(nil, nopLogger{})
	r.Report(uuid.New(), 3)

	sessions, err := r.ActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
