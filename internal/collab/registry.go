package collab

import "github.com/google/uuid"

// Registry owns the lifecycle of one Session per document id. Sessions are
// created lazily on first join and destroyed synchronously the moment the
// last participant leaves; there is no grace period, so a reconnecting client
// gets a fresh session.
//
// The registry is not safe for concurrent use on its own: it is owned and
// driven exclusively by the hub's event loop.
type Registry struct {
	sessions     map[uuid.UUID]*Session
	chatCapacity int
}

func NewRegistry(chatCapacity int) *Registry {
	if chatCapacity <= 0 {
		chatCapacity = 100
	}
	return &Registry{
		sessions:     make(map[uuid.UUID]*Session),
		chatCapacity: chatCapacity,
	}
}

func (r *Registry) GetOrCreate(documentID uuid.UUID) *Session {
	if sess, ok := r.sessions[documentID]; ok {
		return sess
	}
	sess := newSession(documentID, r.chatCapacity)
	r.sessions[documentID] = sess
	return sess
}

func (r *Registry) Get(documentID uuid.UUID) (*Session, bool) {
	sess, ok := r.sessions[documentID]
	return sess, ok
}

// ReleaseIfEmpty destroys the session when its participant count is zero.
// Returns true if the session was removed.
func (r *Registry) ReleaseIfEmpty(documentID uuid.UUID) bool {
	sess, ok := r.sessions[documentID]
	if !ok || len(sess.Participants) > 0 {
		return false
	}
	delete(r.sessions, documentID)
	return true
}

func (r *Registry) Len() int {
	return len(r.sessions)
}
