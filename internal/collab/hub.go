package collab

import (
	"context"
	"encoding/json"
	"time"

	"csvlens-be/internal/entity"
	"csvlens-be/internal/pkg/auth"
	"csvlens-be/internal/pkg/logger"
	"csvlens-be/internal/repository/contract"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// EventsTopic is the in-process bus topic the hub publishes domain events on;
// the forwarder service relays them to the platform event stream.
const EventsTopic = "collab.events"

// DocumentStore is the slice of the dataset repository the hub needs: cell
// commits and comment persistence. Satisfied by contract.DatasetRepository.
type DocumentStore interface {
	UpdateCellValue(ctx context.Context, datasetId uuid.UUID, cellId string, rowIndex int, column, value, oldValue string, editor contract.CellEditor) error
	AddCellComment(ctx context.Context, comment *entity.DatasetComment) error
	AddCommentReply(ctx context.Context, reply *entity.DatasetCommentReply) error
	ResolveComment(ctx context.Context, commentId uuid.UUID, resolved bool) error
}

// StatsReporter mirrors live participant counts to an external sink (Redis)
// for the admin console. Pure reporting; session truth stays in-process.
type StatsReporter interface {
	Report(documentID uuid.UUID, participants int)
}

type registration struct {
	conn          Conn
	identity      *auth.Identity
	authenticated bool
}

type inbound struct {
	conn     Conn
	envelope Envelope
}

// connState tracks one connection's auth result and session membership. The
// conn -> membership index gives O(1) disconnect cleanup.
type connState struct {
	conn          Conn
	identity      *auth.Identity
	authenticated bool
	session       *Session
	presence      *Presence
}

// Hub owns all collaboration session state. A single Run goroutine processes
// one event to completion at a time, so session mutations never need locks.
// Document-store writes are the only suspension points: they run in spawned
// goroutines and re-enter the loop through the internal channel.
type Hub struct {
	register   chan registration
	unregister chan Conn
	inbound    chan inbound
	internal   chan func()

	registry  *Registry
	store     DocumentStore
	publisher message.Publisher
	stats     StatsReporter
	logger    logger.ILogger

	conns map[string]*connState
}

func NewHub(registry *Registry, store DocumentStore, publisher message.Publisher, stats StatsReporter, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan registration),
		unregister: make(chan Conn),
		inbound:    make(chan inbound, 64),
		internal:   make(chan func(), 64),
		registry:   registry,
		store:      store,
		publisher:  publisher,
		stats:      stats,
		logger:     log,
		conns:      make(map[string]*connState),
	}
}

// Register attaches an accepted connection with its handshake auth result.
// Safe to call from any goroutine.
func (h *Hub) Register(conn Conn, identity *auth.Identity, authenticated bool) {
	h.register <- registration{conn: conn, identity: identity, authenticated: authenticated}
}

// Unregister detaches a closed connection. Safe to call from any goroutine.
func (h *Hub) Unregister(conn Conn) {
	h.unregister <- conn
}

// Dispatch queues an inbound event frame. Safe to call from any goroutine.
func (h *Hub) Dispatch(conn Conn, env Envelope) {
	h.inbound <- inbound{conn: conn, envelope: env}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reg := <-h.register:
			h.addConn(reg)
		case conn := <-h.unregister:
			h.removeConn(conn)
		case evt := <-h.inbound:
			h.safeProcess(evt)
		case fn := <-h.internal:
			fn()
		}
	}
}

func (h *Hub) addConn(reg registration) {
	h.conns[reg.conn.ID()] = &connState{
		conn:          reg.conn,
		identity:      reg.identity,
		authenticated: reg.authenticated,
	}
	h.logger.Info("CollabHub", "Connection registered", map[string]interface{}{
		"conn_id":       reg.conn.ID(),
		"authenticated": reg.authenticated,
	})
}

func (h *Hub) removeConn(conn Conn) {
	cs, ok := h.conns[conn.ID()]
	if !ok {
		return
	}
	h.leaveSession(cs)
	delete(h.conns, conn.ID())
	h.logger.Info("CollabHub", "Connection unregistered", map[string]interface{}{"conn_id": conn.ID()})
}

// safeProcess converts a panicking handler into an `error` event instead of
// taking down the loop (no single event may corrupt other participants).
func (h *Hub) safeProcess(evt inbound) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("CollabHub", "Event handler panicked", map[string]interface{}{
				"event": evt.envelope.Event,
				"panic": r,
			})
			evt.conn.Emit(EventError, ErrorPayload{Code: CodeInternal, Message: "internal error"})
		}
	}()
	h.process(evt)
}

func (h *Hub) process(evt inbound) {
	cs, ok := h.conns[evt.conn.ID()]
	if !ok {
		return
	}

	var err error
	switch evt.envelope.Event {
	case EventJoinFileSession:
		var p JoinPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleJoin(cs, p)
		}
	case EventCursorMove:
		var p CursorMovePayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleCursorMove(cs, p)
		}
	case EventChartInteraction:
		var p ChartInteractionPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleChartInteraction(cs, p)
		}
	case EventAddAnnotation:
		var p AddAnnotationPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleAddAnnotation(cs, p)
		}
	case EventRemoveAnnotation:
		var p RemoveAnnotationPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleRemoveAnnotation(cs, p)
		}
	case EventAddVoiceComment:
		var p AddVoiceCommentPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleAddVoiceComment(cs, p)
		}
	case EventCellEditStart:
		var p CellEditStartPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleCellEditStart(cs, p)
		}
	case EventCellEditUpdate:
		var p CellEditUpdatePayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleCellEditUpdate(cs, p)
		}
	case EventCellEditCommit:
		var p CellEditCommitPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleCellEditCommit(cs, p)
		}
	case EventCellEditCancel:
		var p CellEditCancelPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleCellEditCancel(cs, p)
		}
	case EventAddCellComment:
		var p AddCellCommentPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleAddCellComment(cs, p)
		}
	case EventReplyCellComment:
		var p ReplyCellCommentPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleReplyCellComment(cs, p)
		}
	case EventResolveCellComment:
		var p ResolveCellCommentPayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleResolveCellComment(cs, p)
		}
	case EventSendChatMessage:
		var p SendChatMessagePayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleSendChatMessage(cs, p)
		}
	case EventStartFollowMode:
		var p StartFollowModePayload
		if err = decodePayload(evt.envelope.Data, &p); err == nil {
			h.handleStartFollowMode(cs, p)
		}
	case EventStopFollowMode:
		h.handleStopFollowMode(cs)
	default:
		cs.conn.Emit(EventError, ErrorPayload{Code: CodeBadPayload, Message: "unknown event: " + evt.envelope.Event})
		return
	}

	if err != nil {
		h.logger.Warn("CollabHub", "Rejected inbound payload", map[string]interface{}{
			"event": evt.envelope.Event,
			"error": err.Error(),
		})
		cs.conn.Emit(EventError, ErrorPayload{Code: CodeBadPayload, Message: err.Error()})
	}
}

// handleJoin implements session joining: degraded connections are rejected,
// a connection may belong to at most one session, and a second join by the
// same user replaces the previous presence.
func (h *Hub) handleJoin(cs *connState, p JoinPayload) {
	if !cs.authenticated {
		h.logger.Warn("CollabHub", "Join rejected for unauthenticated connection", map[string]interface{}{
			"conn_id":     cs.conn.ID(),
			"document_id": p.DocumentID,
		})
		cs.conn.Emit(EventError, ErrorPayload{Code: CodeAuthRequired, Message: "authentication required to join a session"})
		return
	}

	// A connection belongs to at most one session.
	h.leaveSession(cs)

	sess := h.registry.GetOrCreate(p.DocumentID)

	presence := &Presence{
		UserID:    cs.identity.UserID,
		FullName:  cs.identity.FullName,
		Email:     cs.identity.Email,
		AvatarURL: cs.identity.AvatarURL,
		Color:     AssignColor(cs.identity.UserID),
		JoinedAt:  time.Now(),
		Conn:      cs.conn,
	}
	if presence.FullName == "" {
		presence.FullName = p.UserMeta.FullName
	}
	if presence.AvatarURL == "" {
		presence.AvatarURL = p.UserMeta.AvatarURL
	}

	// Same user joining again replaces the old presence; orphan the stale
	// connection's membership so its disconnect cannot evict the new one.
	if existing, ok := sess.Participants[presence.UserID]; ok && existing.Conn.ID() != cs.conn.ID() {
		if stale, ok := h.conns[existing.Conn.ID()]; ok {
			stale.session = nil
			stale.presence = nil
		}
	}

	sess.Participants[presence.UserID] = presence
	cs.session = sess
	cs.presence = presence

	h.broadcast(sess, presence.UserID, EventUserJoined, presence)

	others := make([]*Presence, 0, len(sess.Participants)-1)
	for uid, p := range sess.Participants {
		if uid != presence.UserID {
			others = append(others, p)
		}
	}
	cs.conn.Emit(EventSessionState, map[string]interface{}{
		"documentId":   sess.DocumentID,
		"participants": others,
		"annotations":  sess.Annotations,
		"voiceNotes":   sess.VoiceNotes,
		"cellLocks":    sess.CellLocks,
		"chatLog":      sess.ChatLog,
		"followState":  sess.followState(),
	})

	h.reportStats(sess)
	h.logger.Info("CollabHub", "User joined session", map[string]interface{}{
		"user_id":      presence.UserID,
		"document_id":  sess.DocumentID,
		"participants": len(sess.Participants),
	})
}

// leaveSession removes the connection's presence, releases any cell locks it
// held, and destroys the session when it becomes empty.
func (h *Hub) leaveSession(cs *connState) {
	if cs.session == nil || cs.presence == nil {
		return
	}
	sess := cs.session
	userID := cs.presence.UserID

	// Holder disconnect auto-releases its locks so cells cannot starve.
	for cellID, lock := range sess.CellLocks {
		if lock.EditedBy.ID == userID {
			delete(sess.CellLocks, cellID)
			h.broadcast(sess, userID, EventCellEditCancelled, map[string]interface{}{
				"cellId":      cellID,
				"cancelledBy": lock.EditedBy,
			})
		}
	}

	if current, ok := sess.Participants[userID]; ok && current == cs.presence {
		delete(sess.Participants, userID)
		h.broadcast(sess, userID, EventUserLeft, map[string]interface{}{"userId": userID})
	}
	cs.session = nil
	cs.presence = nil

	h.reportStats(sess)
	h.registry.ReleaseIfEmpty(sess.DocumentID)
	h.logger.Info("CollabHub", "User left session", map[string]interface{}{
		"user_id":      userID,
		"document_id":  sess.DocumentID,
		"participants": len(sess.Participants),
	})
}

// handleCursorMove is fire-and-forget ephemeral state; no session, no-op.
func (h *Hub) handleCursorMove(cs *connState, p CursorMovePayload) {
	if cs.session == nil {
		return
	}
	cs.presence.Cursor = Position{X: p.X, Y: p.Y}
	cs.presence.ActiveChart = p.ChartID
	h.broadcast(cs.session, cs.presence.UserID, EventCursorUpdate, map[string]interface{}{
		"userId":  cs.presence.UserID,
		"x":       p.X,
		"y":       p.Y,
		"chartId": p.ChartID,
	})
}

func (h *Hub) handleChartInteraction(cs *connState, p ChartInteractionPayload) {
	if cs.session == nil {
		return
	}
	h.broadcast(cs.session, cs.presence.UserID, EventChartInteraction, map[string]interface{}{
		"userId":    cs.presence.UserID,
		"userName":  cs.presence.FullName,
		"type":      p.Type,
		"chartId":   p.ChartID,
		"dataPoint": p.DataPoint,
		"position":  p.Position,
	})
}

// broadcast emits an event to every participant except `except`. Pass
// uuid.Nil to reach everyone.
func (h *Hub) broadcast(sess *Session, except uuid.UUID, event string, payload interface{}) {
	for uid, p := range sess.Participants {
		if uid == except {
			continue
		}
		p.Conn.Emit(event, payload)
	}
}

func (h *Hub) broadcastAll(sess *Session, event string, payload interface{}) {
	h.broadcast(sess, uuid.Nil, event, payload)
}

func (h *Hub) reportStats(sess *Session) {
	if h.stats != nil {
		h.stats.Report(sess.DocumentID, len(sess.Participants))
	}
}

// publishDomainEvent forwards a collaboration outcome to the in-process bus.
// Best-effort; the session broadcast has already happened.
func (h *Hub) publishDomainEvent(eventType string, data map[string]interface{}) {
	if h.publisher == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", eventType)
	if err := h.publisher.Publish(EventsTopic, msg); err != nil {
		h.logger.Warn("CollabHub", "Failed to publish domain event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
