package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"csvlens-be/internal/entity"
	"csvlens-be/internal/pkg/auth"
	"csvlens-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

type recordedFrame struct {
	Event   string
	Payload interface{}
}

type fakeConn struct {
	id     string
	frames []recordedFrame
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload interface{}) {
	c.frames = append(c.frames, recordedFrame{Event: event, Payload: payload})
}

func (c *fakeConn) framesOf(event string) []recordedFrame {
	var out []recordedFrame
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) lastOf(event string) (recordedFrame, bool) {
	frames := c.framesOf(event)
	if len(frames) == 0 {
		return recordedFrame{}, false
	}
	return frames[len(frames)-1], true
}

type cellWrite struct {
	datasetID uuid.UUID
	cellID    string
	value     string
	oldValue  string
	editor    contract.CellEditor
}

type fakeStore struct {
	updateErr  error
	commentErr error
	replyErr   error
	resolveErr error

	cellWrites []cellWrite
	comments   []*entity.DatasetComment
	replies    []*entity.DatasetCommentReply
	resolved   map[uuid.UUID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{resolved: make(map[uuid.UUID]bool)}
}

func (s *fakeStore) UpdateCellValue(_ context.Context, datasetId uuid.UUID, cellId string, _ int, _ string, value, oldValue string, editor contract.CellEditor) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.cellWrites = append(s.cellWrites, cellWrite{datasetID: datasetId, cellID: cellId, value: value, oldValue: oldValue, editor: editor})
	return nil
}

func (s *fakeStore) AddCellComment(_ context.Context, comment *entity.DatasetComment) error {
	if s.commentErr != nil {
		return s.commentErr
	}
	s.comments = append(s.comments, comment)
	return nil
}

func (s *fakeStore) AddCommentReply(_ context.Context, reply *entity.DatasetCommentReply) error {
	if s.replyErr != nil {
		return s.replyErr
	}
	s.replies = append(s.replies, reply)
	return nil
}

func (s *fakeStore) ResolveComment(_ context.Context, commentId uuid.UUID, resolved bool) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.resolved[commentId] = resolved
	return nil
}

func newTestHub(store DocumentStore) *Hub {
	return NewHub(NewRegistry(100), store, nil, nil, nopLogger{})
}

func envelopeOf(t *testing.T, event string, payload interface{}) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Event: event, Data: data}
}

func send(t *testing.T, h *Hub, conn *fakeConn, event string, payload interface{}) {
	t.Helper()
	h.process(inbound{conn: conn, envelope: envelopeOf(t, event, payload)})
}

// drainInternal executes one pending completion closure (a finished
// document-store write) on the test goroutine, standing in for the run loop.
func drainInternal(h *Hub) {
	fn := <-h.internal
	fn()
}

func joinUser(t *testing.T, h *Hub, docID uuid.UUID, name string) (*fakeConn, uuid.UUID) {
	t.Helper()
	conn := newFakeConn()
	userID := uuid.New()
	h.addConn(registration{
		conn: conn,
		identity: &auth.Identity{
			UserID:   userID,
			FullName: name,
			Email:    name + "@example.com",
		},
		authenticated: true,
	})
	send(t, h, conn, EventJoinFileSession, JoinPayload{DocumentID: docID})
	return conn, userID
}

func TestJoinRequiresAuthentication(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	conn := newFakeConn()
	h.addConn(registration{conn: conn, authenticated: false})
	send(t, h, conn, EventJoinFileSession, JoinPayload{DocumentID: docID})

	frame, ok := conn.lastOf(EventError)
	require.True(t, ok, "degraded connection should receive an error event")
	assert.Equal(t, CodeAuthRequired, frame.Payload.(ErrorPayload).Code)

	// No session state was created for the rejected join.
	assert.Equal(t, 0, h.registry.Len())
}

func TestJoinBroadcastsToOthersOnly(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, userA := joinUser(t, h, docID, "Alice")
	connB, userB := joinUser(t, h, docID, "Bob")

	// A sees B's join; neither sees their own.
	joined := connA.framesOf(EventUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, userB, joined[0].Payload.(*Presence).UserID)
	assert.Empty(t, connB.framesOf(EventUserJoined))

	// B's snapshot lists A as the only other participant.
	snapshot, ok := connB.lastOf(EventSessionState)
	require.True(t, ok)
	participants := snapshot.Payload.(map[string]interface{})["participants"].([]*Presence)
	require.Len(t, participants, 1)
	assert.Equal(t, userA, participants[0].UserID)
}

func TestSessionStateSnapshotIsComplete(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	send(t, h, connA, EventSendChatMessage, SendChatMessagePayload{Message: "hello"})
	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})

	connB, _ := joinUser(t, h, docID, "Bob")
	snapshot, ok := connB.lastOf(EventSessionState)
	require.True(t, ok)
	payload := snapshot.Payload.(map[string]interface{})

	chatLog := payload["chatLog"].([]*ChatMessage)
	require.Len(t, chatLog, 1)
	assert.Equal(t, "hello", chatLog[0].Text)

	locks := payload["cellLocks"].(map[string]*EditLock)
	require.Contains(t, locks, "2_sales")
}

func TestSecondJoinBySameUserReplacesPresence(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()
	userID := uuid.New()
	identity := &auth.Identity{UserID: userID, FullName: "Alice"}

	first := newFakeConn()
	h.addConn(registration{conn: first, identity: identity, authenticated: true})
	send(t, h, first, EventJoinFileSession, JoinPayload{DocumentID: docID})

	second := newFakeConn()
	h.addConn(registration{conn: second, identity: identity, authenticated: true})
	send(t, h, second, EventJoinFileSession, JoinPayload{DocumentID: docID})

	sess, ok := h.registry.Get(docID)
	require.True(t, ok)
	require.Len(t, sess.Participants, 1)
	assert.Equal(t, second.ID(), sess.Participants[userID].Conn.ID())

	// The stale connection going away must not evict the replacement.
	h.removeConn(first)
	sess, ok = h.registry.Get(docID)
	require.True(t, ok)
	assert.Len(t, sess.Participants, 1)
}

func TestConnectionBelongsToAtMostOneSession(t *testing.T) {
	h := newTestHub(newFakeStore())
	docA := uuid.New()
	docB := uuid.New()

	conn, _ := joinUser(t, h, docA, "Alice")
	send(t, h, conn, EventJoinFileSession, JoinPayload{DocumentID: docB})

	_, stillThere := h.registry.Get(docA)
	assert.False(t, stillThere, "first session should be destroyed once empty")
	sess, ok := h.registry.Get(docB)
	require.True(t, ok)
	assert.Len(t, sess.Participants, 1)
}

func TestCursorMoveBroadcastsToOthers(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, userA := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCursorMove, CursorMovePayload{X: 10, Y: 20, ChartID: "chart-1"})

	frame, ok := connB.lastOf(EventCursorUpdate)
	require.True(t, ok)
	payload := frame.Payload.(map[string]interface{})
	assert.Equal(t, userA, payload["userId"])
	assert.Equal(t, 10.0, payload["x"])
	assert.Empty(t, connA.framesOf(EventCursorUpdate))

	sess, _ := h.registry.Get(docID)
	assert.Equal(t, Position{X: 10, Y: 20}, sess.Participants[userA].Cursor)
	assert.Equal(t, "chart-1", sess.Participants[userA].ActiveChart)
}

func TestCursorMoveWithoutSessionIsNoOp(t *testing.T) {
	h := newTestHub(newFakeStore())

	conn := newFakeConn()
	h.addConn(registration{conn: conn, identity: &auth.Identity{UserID: uuid.New()}, authenticated: true})
	send(t, h, conn, EventCursorMove, CursorMovePayload{X: 1, Y: 2})

	assert.Empty(t, conn.frames)
}

func TestCellEditConflictFirstWriterWins(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, userA := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connB, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})

	frame, ok := connB.lastOf(EventCellEditConflict)
	require.True(t, ok, "second writer should be told about the conflict")
	payload := frame.Payload.(map[string]interface{})
	assert.Equal(t, "2_sales", payload["cellId"])
	assert.Equal(t, userA, payload["editedBy"].(UserRef).ID)

	// No conflict broadcast reaches the holder; lock holder remains A.
	assert.Empty(t, connA.framesOf(EventCellEditConflict))
	sess, _ := h.registry.Get(docID)
	require.Len(t, sess.CellLocks, 1)
	assert.Equal(t, userA, sess.CellLocks["2_sales"].EditedBy.ID)
}

func TestCellEditUpdateOnlyHolderMirrors(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditUpdate, CellEditUpdatePayload{CellID: "2_sales", Value: "12"})

	frame, ok := connB.lastOf(EventCellEditUpdated)
	require.True(t, ok)
	assert.Equal(t, "12", frame.Payload.(map[string]interface{})["value"])

	// A non-holder update is silently ignored.
	send(t, h, connB, EventCellEditUpdate, CellEditUpdatePayload{CellID: "2_sales", Value: "999"})
	assert.Empty(t, connA.framesOf(EventCellEditUpdated))
}

func TestCellEditCommitReleasesLockAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	docID := uuid.New()

	connA, userA := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", OldValue: "100", Row: 2, Column: "sales"})
	drainInternal(h)

	// All participants receive the commit, committer included.
	for _, conn := range []*fakeConn{connA, connB} {
		frame, ok := conn.lastOf(EventCellEditCommitted)
		require.True(t, ok)
		payload := frame.Payload.(map[string]interface{})
		assert.Equal(t, "2_sales", payload["cellId"])
		assert.Equal(t, "120", payload["value"])
	}

	sess, _ := h.registry.Get(docID)
	assert.NotContains(t, sess.CellLocks, "2_sales")

	require.Len(t, store.cellWrites, 1)
	assert.Equal(t, docID, store.cellWrites[0].datasetID)
	assert.Equal(t, "100", store.cellWrites[0].oldValue)
	assert.Equal(t, userA, store.cellWrites[0].editor.UserID)
}

func TestCellEditCommitFailureKeepsLock(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errors.New("connection reset")
	h := newTestHub(store)
	docID := uuid.New()

	connA, userA := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	drainInternal(h)

	frame, ok := connA.lastOf(EventCellEditError)
	require.True(t, ok, "holder should be told the write failed")
	assert.Equal(t, CodePersistenceFailed, frame.Payload.(map[string]interface{})["code"])

	// Failure is local to the holder; the lock survives for retry/cancel.
	assert.Empty(t, connB.framesOf(EventCellEditError))
	assert.Empty(t, connB.framesOf(EventCellEditCommitted))
	sess, _ := h.registry.Get(docID)
	require.Contains(t, sess.CellLocks, "2_sales")
	assert.Equal(t, userA, sess.CellLocks["2_sales"].EditedBy.ID)
}

func TestCancelDuringPendingCommitLeavesNewLockAlone(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, userB := joinUser(t, h, docID, "Bob")

	// A commits, then cancels before the write lands; B re-acquires the cell.
	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCancel, CellEditCancelPayload{CellID: "2_sales"})
	send(t, h, connB, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	drainInternal(h)

	// The late completion must not steal B's lock.
	sess, _ := h.registry.Get(docID)
	require.Contains(t, sess.CellLocks, "2_sales")
	assert.Equal(t, userB, sess.CellLocks["2_sales"].EditedBy.ID)

	// The landed write is reported to the original holder only.
	frame, ok := connA.lastOf(EventCellEditCommitted)
	require.True(t, ok)
	assert.Equal(t, "120", frame.Payload.(map[string]interface{})["value"])
	assert.Empty(t, connB.framesOf(EventCellEditCommitted))
	require.Len(t, store.cellWrites, 1)
}

func TestDisconnectDuringPendingCommitLeavesNewLockAlone(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, userB := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	h.removeConn(connA)
	send(t, h, connB, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	drainInternal(h)

	sess, _ := h.registry.Get(docID)
	require.Contains(t, sess.CellLocks, "2_sales")
	assert.Equal(t, userB, sess.CellLocks["2_sales"].EditedBy.ID)
	assert.Empty(t, connB.framesOf(EventCellEditCommitted))
}

func TestDuplicateCommitWhilePendingIsIgnored(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	drainInternal(h)

	// One write, one completion, one broadcast.
	require.Len(t, store.cellWrites, 1)
	assert.Equal(t, 0, len(h.internal))
	assert.Len(t, connA.framesOf(EventCellEditCommitted), 1)
	sess, _ := h.registry.Get(docID)
	assert.NotContains(t, sess.CellLocks, "2_sales")
}

func TestCommitRetryAllowedAfterFailure(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errors.New("connection reset")
	h := newTestHub(store)
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	drainInternal(h)

	store.updateErr = nil
	send(t, h, connA, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "120", Row: 2, Column: "sales"})
	drainInternal(h)

	require.Len(t, store.cellWrites, 1)
	sess, _ := h.registry.Get(docID)
	assert.NotContains(t, sess.CellLocks, "2_sales")
}

func TestCellEditCommitByNonHolderIgnored(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connB, EventCellEditCommit, CellEditCommitPayload{CellID: "2_sales", Value: "666"})

	assert.Empty(t, store.cellWrites)
	sess, _ := h.registry.Get(docID)
	assert.Contains(t, sess.CellLocks, "2_sales")
}

func TestCellEditCancel(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "0_region", Row: 0, Column: "region"})
	send(t, h, connA, EventCellEditCancel, CellEditCancelPayload{CellID: "0_region"})

	_, ok := connB.lastOf(EventCellEditCancelled)
	assert.True(t, ok)
	sess, _ := h.registry.Get(docID)
	assert.Empty(t, sess.CellLocks)
}

func TestDisconnectReleasesHeldLocks(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "2_sales", Row: 2, Column: "sales"})
	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "3_units", Row: 3, Column: "units"})
	h.removeConn(connA)

	assert.Len(t, connB.framesOf(EventCellEditCancelled), 2)
	_, ok := connB.lastOf(EventUserLeft)
	assert.True(t, ok)

	sess, stillThere := h.registry.Get(docID)
	require.True(t, stillThere)
	assert.Empty(t, sess.CellLocks)
}

func TestSessionDestroyedWhenLastParticipantLeaves(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	send(t, h, connA, EventSendChatMessage, SendChatMessagePayload{Message: "ghost"})
	send(t, h, connA, EventCellEditStart, CellEditStartPayload{CellID: "1_month", Row: 1, Column: "month"})
	h.removeConn(connA)

	assert.Equal(t, 0, h.registry.Len())

	// A fresh join gets a clean session.
	connB, _ := joinUser(t, h, docID, "Bob")
	snapshot, ok := connB.lastOf(EventSessionState)
	require.True(t, ok)
	payload := snapshot.Payload.(map[string]interface{})
	assert.Empty(t, payload["chatLog"])
	assert.Empty(t, payload["cellLocks"])
	assert.Empty(t, payload["annotations"])
}

func TestChatLogBoundedAt100(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	for i := 1; i <= 101; i++ {
		send(t, h, connA, EventSendChatMessage, SendChatMessagePayload{Message: fmt.Sprintf("msg-%d", i)})
	}

	sess, _ := h.registry.Get(docID)
	require.Len(t, sess.ChatLog, 100)
	assert.Equal(t, "msg-2", sess.ChatLog[0].Text)
	assert.Equal(t, "msg-101", sess.ChatLog[99].Text)

	// Sender receives their own messages back.
	assert.Len(t, connA.framesOf(EventChatMessageReceived), 101)
}

func TestAnnotationLifecycle(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventAddAnnotation, AddAnnotationPayload{ChartID: "chart-1", Text: "spike here", Type: "callout"})

	// Author receives their own annotation with its assigned id.
	frameA, ok := connA.lastOf(EventAnnotationAdded)
	require.True(t, ok)
	annotation := frameA.Payload.(*Annotation)
	_, ok = connB.lastOf(EventAnnotationAdded)
	require.True(t, ok)

	// Non-author removal is a silent no-op.
	send(t, h, connB, EventRemoveAnnotation, RemoveAnnotationPayload{AnnotationID: annotation.ID})
	sess, _ := h.registry.Get(docID)
	require.Len(t, sess.Annotations, 1)
	assert.Empty(t, connB.framesOf(EventAnnotationRemoved))
	assert.Empty(t, connB.framesOf(EventError))

	// Author removal succeeds and is broadcast.
	send(t, h, connA, EventRemoveAnnotation, RemoveAnnotationPayload{AnnotationID: annotation.ID})
	assert.Empty(t, sess.Annotations)
	_, ok = connB.lastOf(EventAnnotationRemoved)
	assert.True(t, ok)
}

func TestVoiceCommentAdded(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventAddVoiceComment, AddVoiceCommentPayload{ChartID: "chart-1", AudioBlob: "data:audio/webm;base64,AAAA", Duration: 3.5})

	frame, ok := connB.lastOf(EventVoiceCommentAdded)
	require.True(t, ok)
	assert.Equal(t, 3.5, frame.Payload.(*VoiceNote).Duration)
	sess, _ := h.registry.Get(docID)
	assert.Len(t, sess.VoiceNotes, 1)
}

func TestCellCommentPersistedThenBroadcast(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	docID := uuid.New()

	connA, userA := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventAddCellComment, AddCellCommentPayload{Row: 2, Column: "sales", Text: "looks off"})
	drainInternal(h)

	require.Len(t, store.comments, 1)
	assert.Equal(t, docID, store.comments[0].DatasetId)

	frame, ok := connB.lastOf(EventCellCommentAdded)
	require.True(t, ok)
	thread := frame.Payload.(*CommentThread)
	assert.Equal(t, "looks off", thread.Text)
	assert.Equal(t, userA, thread.Author.ID)

	sess, _ := h.registry.Get(docID)
	require.Len(t, sess.CellComments, 1)

	// Reply and resolve flow through the store as well.
	send(t, h, connB, EventReplyCellComment, ReplyCellCommentPayload{CommentID: thread.ID, Text: "agreed"})
	drainInternal(h)
	require.Len(t, store.replies, 1)
	replyFrame, ok := connA.lastOf(EventCellCommentReplyAdded)
	require.True(t, ok)
	assert.Equal(t, "agreed", replyFrame.Payload.(map[string]interface{})["reply"].(*Reply).Text)

	send(t, h, connA, EventResolveCellComment, ResolveCellCommentPayload{CommentID: thread.ID, Resolved: true})
	drainInternal(h)
	assert.True(t, store.resolved[thread.ID])
	assert.True(t, sess.CellComments[0].Resolved)
	_, ok = connB.lastOf(EventCellCommentResolved)
	assert.True(t, ok)
}

func TestCellCommentPersistenceFailureIsReportedToCaller(t *testing.T) {
	store := newFakeStore()
	store.commentErr = errors.New("document not found")
	h := newTestHub(store)
	docID := uuid.New()

	connA, _ := joinUser(t, h, docID, "Alice")
	connB, _ := joinUser(t, h, docID, "Bob")

	send(t, h, connA, EventAddCellComment, AddCellCommentPayload{Row: 2, Column: "sales", Text: "lost"})
	drainInternal(h)

	frame, ok := connA.lastOf(EventError)
	require.True(t, ok)
	assert.Equal(t, CodePersistenceFailed, frame.Payload.(ErrorPayload).Code)
	assert.Empty(t, connB.framesOf(EventCellCommentAdded))

	sess, _ := h.registry.Get(docID)
	assert.Empty(t, sess.CellComments)
}

func TestFollowMode(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	leaderConn, leaderID := joinUser(t, h, docID, "Leader")
	followerConn, followerID := joinUser(t, h, docID, "Follower")

	send(t, h, followerConn, EventStartFollowMode, StartFollowModePayload{LeaderID: leaderID})

	frame, ok := leaderConn.lastOf(EventFollowerJoined)
	require.True(t, ok)
	assert.Equal(t, followerID, frame.Payload.(map[string]interface{})["followerId"])
	_, ok = followerConn.lastOf(EventFollowModeStarted)
	assert.True(t, ok)

	sess, _ := h.registry.Get(docID)
	require.NotNil(t, sess.Participants[followerID].FollowingUserID)
	assert.Equal(t, leaderID, *sess.Participants[followerID].FollowingUserID)

	send(t, h, followerConn, EventStopFollowMode, struct{}{})
	_, ok = leaderConn.lastOf(EventFollowerLeft)
	assert.True(t, ok)
	assert.Nil(t, sess.Participants[followerID].FollowingUserID)
}

func TestFollowingDepartedLeaderIsLegal(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	followerConn, followerID := joinUser(t, h, docID, "Follower")
	ghost := uuid.New()

	send(t, h, followerConn, EventStartFollowMode, StartFollowModePayload{LeaderID: ghost})

	_, ok := followerConn.lastOf(EventFollowModeStarted)
	assert.True(t, ok, "follow is acknowledged even when the leader is absent")
	sess, _ := h.registry.Get(docID)
	require.NotNil(t, sess.Participants[followerID].FollowingUserID)
}

func TestUnknownEventYieldsBadPayload(t *testing.T) {
	h := newTestHub(newFakeStore())

	conn := newFakeConn()
	h.addConn(registration{conn: conn, identity: &auth.Identity{UserID: uuid.New()}, authenticated: true})
	h.process(inbound{conn: conn, envelope: Envelope{Event: "self-destruct"}})

	frame, ok := conn.lastOf(EventError)
	require.True(t, ok)
	assert.Equal(t, CodeBadPayload, frame.Payload.(ErrorPayload).Code)
}

func TestInvalidPayloadYieldsBadPayload(t *testing.T) {
	h := newTestHub(newFakeStore())
	docID := uuid.New()

	conn, _ := joinUser(t, h, docID, "Alice")
	// cell-edit-start without a column fails validation.
	h.process(inbound{conn: conn, envelope: Envelope{Event: EventCellEditStart, Data: json.RawMessage(`{"cellId":"2_sales"}`)}})

	frame, ok := conn.lastOf(EventError)
	require.True(t, ok)
	assert.Equal(t, CodeBadPayload, frame.Payload.(ErrorPayload).Code)

	sess, _ := h.registry.Get(docID)
	assert.Empty(t, sess.CellLocks)
}
