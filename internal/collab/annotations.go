package collab

import (
	"time"

	"github.com/google/uuid"
)

func (h *Hub) handleAddAnnotation(cs *connState, p AddAnnotationPayload) {
	if cs.session == nil {
		return
	}
	annotation := &Annotation{
		ID:        uuid.New(),
		ChartID:   p.ChartID,
		Position:  p.Position,
		Text:      p.Text,
		Type:      p.Type,
		Author:    cs.presence.Ref(),
		CreatedAt: time.Now(),
	}
	cs.session.Annotations = append(cs.session.Annotations, annotation)

	// The author sees their own annotation come back with its assigned id.
	h.broadcastAll(cs.session, EventAnnotationAdded, annotation)
}

// handleRemoveAnnotation only honors the original author. Anything else is a
// silent no-op so callers cannot fish for other users' annotation ids.
func (h *Hub) handleRemoveAnnotation(cs *connState, p RemoveAnnotationPayload) {
	if cs.session == nil {
		return
	}
	sess := cs.session
	for i, annotation := range sess.Annotations {
		if annotation.ID != p.AnnotationID {
			continue
		}
		if annotation.Author.ID != cs.presence.UserID {
			h.logger.Debug("CollabHub", "Ignored annotation removal by non-author", map[string]interface{}{
				"annotation_id": p.AnnotationID,
				"requested_by":  cs.presence.UserID,
			})
			return
		}
		sess.Annotations = append(sess.Annotations[:i], sess.Annotations[i+1:]...)
		h.broadcastAll(sess, EventAnnotationRemoved, map[string]interface{}{
			"annotationId": p.AnnotationID,
		})
		return
	}
}

func (h *Hub) handleAddVoiceComment(cs *connState, p AddVoiceCommentPayload) {
	if cs.session == nil {
		return
	}
	note := &VoiceNote{
		ID:        uuid.New(),
		ChartID:   p.ChartID,
		Position:  p.Position,
		AudioBlob: p.AudioBlob,
		Duration:  p.Duration,
		Author:    cs.presence.Ref(),
		CreatedAt: time.Now(),
	}
	cs.session.VoiceNotes = append(cs.session.VoiceNotes, note)
	h.broadcastAll(cs.session, EventVoiceCommentAdded, note)
}
