package collab

import (
	"context"
	"time"

	"csvlens-be/internal/entity"

	"github.com/google/uuid"
)

// Comment threads persist to the document store BEFORE broadcasting: the
// session copy only ever mirrors what the store accepted. A failed write is
// reported to the acting connection as a PERSISTENCE_FAILED error.

func (h *Hub) handleAddCellComment(cs *connState, p AddCellCommentPayload) {
	if cs.session == nil {
		return
	}
	sess := cs.session
	author := cs.presence.Ref()
	now := time.Now()

	comment := &entity.DatasetComment{
		Id:         uuid.New(),
		DatasetId:  sess.DocumentID,
		RowIndex:   p.Row,
		Column:     p.Column,
		Text:       p.Text,
		AuthorId:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  now,
	}
	documentID := sess.DocumentID
	caller := cs.conn

	go func() {
		err := h.store.AddCellComment(context.Background(), comment)
		h.internal <- func() {
			if err != nil {
				h.emitPersistenceError(caller, "failed to save comment", documentID, err)
				return
			}
			sess, ok := h.registry.Get(documentID)
			if !ok {
				return
			}
			thread := &CommentThread{
				ID:        comment.Id,
				Row:       p.Row,
				Column:    p.Column,
				Text:      p.Text,
				Author:    author,
				Replies:   make([]*Reply, 0),
				CreatedAt: now,
			}
			sess.CellComments = append(sess.CellComments, thread)
			h.broadcastAll(sess, EventCellCommentAdded, thread)
			h.publishDomainEvent("collab.comment.added", map[string]interface{}{
				"document_id": documentID.String(),
				"comment_id":  comment.Id.String(),
				"author_id":   author.ID.String(),
			})
		}
	}()
}

func (h *Hub) handleReplyCellComment(cs *connState, p ReplyCellCommentPayload) {
	if cs.session == nil {
		return
	}
	sess := cs.session
	if sess.findComment(p.CommentID) == nil {
		return
	}
	author := cs.presence.Ref()
	now := time.Now()

	reply := &entity.DatasetCommentReply{
		Id:         uuid.New(),
		CommentId:  p.CommentID,
		Text:       p.Text,
		AuthorId:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  now,
	}
	documentID := sess.DocumentID
	caller := cs.conn

	go func() {
		err := h.store.AddCommentReply(context.Background(), reply)
		h.internal <- func() {
			if err != nil {
				h.emitPersistenceError(caller, "failed to save reply", documentID, err)
				return
			}
			sess, ok := h.registry.Get(documentID)
			if !ok {
				return
			}
			thread := sess.findComment(p.CommentID)
			if thread == nil {
				return
			}
			threadReply := &Reply{ID: reply.Id, Text: p.Text, Author: author, CreatedAt: now}
			thread.Replies = append(thread.Replies, threadReply)
			h.broadcastAll(sess, EventCellCommentReplyAdded, map[string]interface{}{
				"commentId": p.CommentID,
				"reply":     threadReply,
			})
		}
	}()
}

func (h *Hub) handleResolveCellComment(cs *connState, p ResolveCellCommentPayload) {
	if cs.session == nil {
		return
	}
	sess := cs.session
	if sess.findComment(p.CommentID) == nil {
		return
	}
	documentID := sess.DocumentID
	resolvedBy := cs.presence.Ref()
	caller := cs.conn

	go func() {
		err := h.store.ResolveComment(context.Background(), p.CommentID, p.Resolved)
		h.internal <- func() {
			if err != nil {
				h.emitPersistenceError(caller, "failed to resolve comment", documentID, err)
				return
			}
			sess, ok := h.registry.Get(documentID)
			if !ok {
				return
			}
			thread := sess.findComment(p.CommentID)
			if thread == nil {
				return
			}
			now := time.Now()
			thread.Resolved = p.Resolved
			thread.UpdatedAt = &now
			h.broadcastAll(sess, EventCellCommentResolved, map[string]interface{}{
				"commentId":  p.CommentID,
				"resolved":   p.Resolved,
				"resolvedBy": resolvedBy,
			})
		}
	}()
}

func (h *Hub) emitPersistenceError(caller Conn, message string, documentID uuid.UUID, err error) {
	h.logger.Error("CollabHub", "Comment persistence failed", map[string]interface{}{
		"document_id": documentID,
		"error":       err.Error(),
	})
	caller.Emit(EventError, ErrorPayload{Code: CodePersistenceFailed, Message: message})
}
