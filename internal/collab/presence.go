package collab

import (
	"time"

	"github.com/google/uuid"
)

// Conn is the transport handle for one connected client. Implemented by the
// websocket Client; tests substitute an in-memory fake.
type Conn interface {
	ID() string
	// Emit queues an outbound frame. Must never block the caller.
	Emit(event string, payload interface{})
}

// UserRef is the compact author/holder summary embedded in broadcast payloads.
type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is a connected user's live state within a session. Created on join,
// mutated on cursor/chart/follow events, destroyed on disconnect. Never
// persisted.
type Presence struct {
	UserID          uuid.UUID  `json:"userId"`
	FullName        string     `json:"fullName"`
	Email           string     `json:"email"`
	AvatarURL       string     `json:"avatarUrl,omitempty"`
	Color           string     `json:"color"`
	Cursor          Position   `json:"cursor"`
	ActiveChart     string     `json:"activeChart,omitempty"`
	FollowingUserID *uuid.UUID `json:"followingUserId,omitempty"`
	JoinedAt        time.Time  `json:"joinedAt"`

	Conn Conn `json:"-"`
}

func (p *Presence) Ref() UserRef {
	return UserRef{ID: p.UserID, Name: p.FullName, Color: p.Color}
}

// EditLock is a pessimistic single-writer claim on one cell. At most one lock
// exists per cellId within a session.
type EditLock struct {
	CellID     string    `json:"cellId"`
	Row        int       `json:"row"`
	Column     string    `json:"column"`
	EditedBy   UserRef   `json:"editedBy"`
	AcquiredAt time.Time `json:"acquiredAt"`

	// committing is set while the holder's store write is in flight so a
	// duplicate commit frame cannot dispatch a second write.
	committing bool
}

type Annotation struct {
	ID        uuid.UUID `json:"id"`
	ChartID   string    `json:"chartId"`
	Position  Position  `json:"position"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	Author    UserRef   `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type VoiceNote struct {
	ID        uuid.UUID `json:"id"`
	ChartID   string    `json:"chartId"`
	Position  Position  `json:"position"`
	AudioBlob string    `json:"audioBlob"`
	Duration  float64   `json:"duration"`
	Author    UserRef   `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Reply struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Author    UserRef   `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentThread mirrors the persisted per-cell discussion; the session copy is
// what gets broadcast, the document store is the source of truth.
type CommentThread struct {
	ID        uuid.UUID  `json:"id"`
	Row       int        `json:"row"`
	Column    string     `json:"column"`
	Text      string     `json:"text"`
	Author    UserRef    `json:"author"`
	Replies   []*Reply   `json:"replies"`
	Resolved  bool       `json:"resolved"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Author    UserRef   `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the complete collaborative state for one document. It is owned
// exclusively by the hub goroutine; no locking is needed on its collections.
type Session struct {
	DocumentID   uuid.UUID
	Participants map[uuid.UUID]*Presence
	Annotations  []*Annotation
	VoiceNotes   []*VoiceNote
	CellLocks    map[string]*EditLock
	CellComments []*CommentThread
	ChatLog      []*ChatMessage

	chatCapacity int
}

func newSession(documentID uuid.UUID, chatCapacity int) *Session {
	return &Session{
		DocumentID:   documentID,
		Participants: make(map[uuid.UUID]*Presence),
		Annotations:  make([]*Annotation, 0),
		VoiceNotes:   make([]*VoiceNote, 0),
		CellLocks:    make(map[string]*EditLock),
		CellComments: make([]*CommentThread, 0),
		ChatLog:      make([]*ChatMessage, 0),
		chatCapacity: chatCapacity,
	}
}

// AppendChat adds a message to the bounded log, evicting the oldest entries
// beyond capacity.
func (s *Session) AppendChat(msg *ChatMessage) {
	s.ChatLog = append(s.ChatLog, msg)
	if len(s.ChatLog) > s.chatCapacity {
		s.ChatLog = s.ChatLog[len(s.ChatLog)-s.chatCapacity:]
	}
}

func (s *Session) findComment(id uuid.UUID) *CommentThread {
	for _, thread := range s.CellComments {
		if thread.ID == id {
			return thread
		}
	}
	return nil
}

// followState derives followerId -> leaderId for the session snapshot.
func (s *Session) followState() map[string]string {
	state := make(map[string]string)
	for _, p := range s.Participants {
		if p.FollowingUserID != nil {
			state[p.UserID.String()] = p.FollowingUserID.String()
		}
	}
	return state
}
