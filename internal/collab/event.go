package collab

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Inbound event names (client -> server). The dispatch switch in hub.go is the
// closed set; unknown names yield a BAD_PAYLOAD error to the sender.
const (
	EventJoinFileSession    = "join-file-session"
	EventCursorMove         = "cursor-move"
	EventChartInteraction   = "chart-interaction"
	EventAddAnnotation      = "add-annotation"
	EventRemoveAnnotation   = "remove-annotation"
	EventAddVoiceComment    = "add-voice-comment"
	EventCellEditStart      = "cell-edit-start"
	EventCellEditUpdate     = "cell-edit-update"
	EventCellEditCommit     = "cell-edit-commit"
	EventCellEditCancel     = "cell-edit-cancel"
	EventAddCellComment     = "add-cell-comment"
	EventReplyCellComment   = "reply-cell-comment"
	EventResolveCellComment = "resolve-cell-comment"
	EventSendChatMessage    = "send-chat-message"
	EventStartFollowMode    = "start-follow-mode"
	EventStopFollowMode     = "stop-follow-mode"
)

// Outbound event names (server -> one or many clients).
const (
	EventSessionState          = "session-state"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventCursorUpdate          = "cursor-update"
	EventAnnotationAdded       = "annotation-added"
	EventAnnotationRemoved     = "annotation-removed"
	EventVoiceCommentAdded     = "voice-comment-added"
	EventCellEditStarted       = "cell-edit-started"
	EventCellEditUpdated       = "cell-edit-updated"
	EventCellEditCommitted     = "cell-edit-committed"
	EventCellEditCancelled     = "cell-edit-cancelled"
	EventCellEditConflict      = "cell-edit-conflict"
	EventCellEditError         = "cell-edit-error"
	EventCellCommentAdded      = "cell-comment-added"
	EventCellCommentReplyAdded = "cell-comment-reply-added"
	EventCellCommentResolved   = "cell-comment-resolved"
	EventChatMessageReceived   = "chat-message-received"
	EventFollowerJoined        = "follower-joined"
	EventFollowerLeft          = "follower-left"
	EventFollowModeStarted     = "follow-mode-started"
	EventFollowModeStopped     = "follow-mode-stopped"
	EventError                 = "error"
)

// Error codes carried by the `error` and `cell-edit-error` events.
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeBadPayload        = "BAD_PAYLOAD"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Envelope is the wire frame for inbound events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UserMeta is the client-asserted identity sent with a join. It is only
// trusted on degraded connections, which cannot join sessions anyway; on
// authenticated connections the verified identity wins.
type UserMeta struct {
	UserID    uuid.UUID `json:"userId"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
}

type JoinPayload struct {
	DocumentID uuid.UUID `json:"documentId" validate:"required"`
	UserMeta   UserMeta  `json:"userMeta"`
}

type CursorMovePayload struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	ChartID string  `json:"chartId"`
}

type ChartInteractionPayload struct {
	Type      string                 `json:"type" validate:"required"`
	ChartID   string                 `json:"chartId"`
	DataPoint map[string]interface{} `json:"dataPoint,omitempty"`
	Position  *Position              `json:"position,omitempty"`
}

type AddAnnotationPayload struct {
	ChartID  string   `json:"chartId" validate:"required"`
	Position Position `json:"position"`
	Text     string   `json:"text" validate:"required"`
	Type     string   `json:"type"`
}

type RemoveAnnotationPayload struct {
	AnnotationID uuid.UUID `json:"annotationId" validate:"required"`
}

type AddVoiceCommentPayload struct {
	ChartID   string   `json:"chartId"`
	Position  Position `json:"position"`
	AudioBlob string   `json:"audioBlob" validate:"required"`
	Duration  float64  `json:"duration"`
}

type CellEditStartPayload struct {
	CellID string `json:"cellId" validate:"required"`
	Row    int    `json:"row"`
	Column string `json:"column" validate:"required"`
}

type CellEditUpdatePayload struct {
	CellID string `json:"cellId" validate:"required"`
	Value  string `json:"value"`
	Row    int    `json:"row"`
	Column string `json:"column"`
}

type CellEditCommitPayload struct {
	CellID   string `json:"cellId" validate:"required"`
	Value    string `json:"value"`
	OldValue string `json:"oldValue"`
	Row      int    `json:"row"`
	Column   string `json:"column"`
}

type CellEditCancelPayload struct {
	CellID string `json:"cellId" validate:"required"`
}

type AddCellCommentPayload struct {
	Row    int    `json:"row"`
	Column string `json:"column" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

type ReplyCellCommentPayload struct {
	CommentID uuid.UUID `json:"commentId" validate:"required"`
	Text      string    `json:"text" validate:"required"`
}

type ResolveCellCommentPayload struct {
	CommentID uuid.UUID `json:"commentId" validate:"required"`
	Resolved  bool      `json:"resolved"`
}

type SendChatMessagePayload struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type StartFollowModePayload struct {
	LeaderID uuid.UUID `json:"leaderId" validate:"required"`
}

var validate = validator.New()

// decodePayload unmarshals and validates an inbound payload at the boundary,
// so handlers only ever see well-formed data.
func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
