package collab

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry(100)
	docID := uuid.New()

	first := r.GetOrCreate(docID)
	second := r.GetOrCreate(docID)
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReleaseIfEmpty(t *testing.T) {
	r := NewRegistry(100)
	docID := uuid.New()
	sess := r.GetOrCreate(docID)

	sess.Participants[uuid.New()] = &Presence{}
	assert.False(t, r.ReleaseIfEmpty(docID), "occupied session must survive")
	require.Equal(t, 1, r.Len())

	for uid := range sess.Participants {
		delete(sess.Participants, uid)
	}
	assert.True(t, r.ReleaseIfEmpty(docID))
	assert.Equal(t, 0, r.Len())

	_, ok := r.Get(docID)
	assert.False(t, ok)
}

func TestRegistryReleaseUnknownDocument(t *testing.T) {
	r := NewRegistry(100)
	assert.False(t, r.ReleaseIfEmpty(uuid.New()))
}

func TestRegistryDefaultsChatCapacity(t *testing.T) {
	r := NewRegistry(0)
	sess := r.GetOrCreate(uuid.New())
	assert.Equal(t, 100, sess.chatCapacity)
}
