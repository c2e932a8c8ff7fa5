package collab

import (
	"time"

	"github.com/google/uuid"
)

// handleSendChatMessage appends to the bounded session log and broadcasts to
// everyone, sender included. Chat is ephemeral; nothing is persisted.
func (h *Hub) handleSendChatMessage(cs *connState, p SendChatMessagePayload) {
	if cs.session == nil {
		return
	}
	msg := &ChatMessage{
		ID:        uuid.New(),
		Text:      p.Message,
		Author:    cs.presence.Ref(),
		Timestamp: time.Now(),
	}
	cs.session.AppendChat(msg)
	h.broadcastAll(cs.session, EventChatMessageReceived, msg)
}
