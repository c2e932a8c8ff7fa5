package collab

import (
	"context"
	"time"

	"csvlens-be/internal/repository/contract"

	"github.com/google/uuid"
)

// Cell lock state machine: Unlocked -> Locked(holder) -> Unlocked. First
// writer wins; there is no queueing. The lock is the per-cell serialization
// point for commits.

func (h *Hub) handleCellEditStart(cs *connState, p CellEditStartPayload) {
	if cs.session == nil {
		return
	}
	sess := cs.session

	if lock, ok := sess.CellLocks[p.CellID]; ok {
		// Conflict goes to the requester only; no state change.
		cs.conn.Emit(EventCellEditConflict, map[string]interface{}{
			"cellId":   p.CellID,
			"editedBy": lock.EditedBy,
		})
		return
	}

	lock := &EditLock{
		CellID:     p.CellID,
		Row:        p.Row,
		Column:     p.Column,
		EditedBy:   cs.presence.Ref(),
		AcquiredAt: time.Now(),
	}
	sess.CellLocks[p.CellID] = lock

	h.broadcast(sess, cs.presence.UserID, EventCellEditStarted, map[string]interface{}{
		"cellId":   p.CellID,
		"row":      p.Row,
		"column":   p.Column,
		"editedBy": lock.EditedBy,
	})
}

// handleCellEditUpdate mirrors live keystrokes to the rest of the session.
// Only the lock holder may update; anyone else is silently ignored.
func (h *Hub) handleCellEditUpdate(cs *connState, p CellEditUpdatePayload) {
	if cs.session == nil {
		return
	}
	lock, ok := cs.session.CellLocks[p.CellID]
	if !ok || lock.EditedBy.ID != cs.presence.UserID {
		return
	}
	h.broadcast(cs.session, cs.presence.UserID, EventCellEditUpdated, map[string]interface{}{
		"cellId":   p.CellID,
		"value":    p.Value,
		"editedBy": lock.EditedBy,
	})
}

// handleCellEditCommit writes the value to the document store and releases
// the lock on success. The write runs off the loop; the lock stays held and
// marked committing while it is pending, so duplicate commit frames are
// ignored until the completion lands. On write failure the lock is retained
// and only the holder is told, so the uncommitted edit is not silently lost.
func (h *Hub) handleCellEditCommit(cs *connState, p CellEditCommitPayload) {
	if cs.session == nil {
		return
	}
	sess := cs.session
	lock, ok := sess.CellLocks[p.CellID]
	if !ok || lock.EditedBy.ID != cs.presence.UserID {
		return
	}
	if lock.committing {
		// Client retry while the first write is still in flight.
		return
	}
	lock.committing = true

	documentID := sess.DocumentID
	editor := contract.CellEditor{UserID: cs.presence.UserID, Name: cs.presence.FullName}
	holder := cs.conn

	go func() {
		err := h.store.UpdateCellValue(context.Background(), documentID, p.CellID, p.Row, p.Column, p.Value, p.OldValue, editor)
		h.internal <- func() {
			h.finishCellEditCommit(documentID, holder, lock, p, err)
		}
	}()
}

// finishCellEditCommit runs back on the hub loop once the store write ends.
// The cell's lock may have moved on in the meantime (holder cancelled or
// disconnected, someone else re-acquired), so it only releases the exact lock
// the commit was issued under.
func (h *Hub) finishCellEditCommit(documentID uuid.UUID, holder Conn, lock *EditLock, p CellEditCommitPayload, err error) {
	sess, ok := h.registry.Get(documentID)
	if !ok {
		// Everyone left while the write was in flight; the lock died with
		// the session and there is no one to tell.
		return
	}
	current, held := sess.CellLocks[p.CellID]
	sameLock := held && current == lock

	if err != nil {
		h.logger.Error("CollabHub", "Cell commit persistence failed", map[string]interface{}{
			"document_id": documentID,
			"cell_id":     p.CellID,
			"error":       err.Error(),
		})
		if sameLock {
			lock.committing = false
		}
		holder.Emit(EventCellEditError, map[string]interface{}{
			"cellId":  p.CellID,
			"code":    CodePersistenceFailed,
			"message": "failed to save cell value",
		})
		return
	}

	payload := map[string]interface{}{
		"cellId":   p.CellID,
		"row":      p.Row,
		"column":   p.Column,
		"value":    p.Value,
		"editedBy": lock.EditedBy,
	}

	if !sameLock {
		// Orphaned commit: the write landed, but the issuing lock was
		// already released. Tell the original holder and leave whatever
		// lock is on the cell now untouched.
		h.logger.Warn("CollabHub", "Cell commit landed after its lock was released", map[string]interface{}{
			"document_id": documentID,
			"cell_id":     p.CellID,
			"edited_by":   lock.EditedBy.ID,
		})
		holder.Emit(EventCellEditCommitted, payload)
		return
	}

	delete(sess.CellLocks, p.CellID)
	h.broadcastAll(sess, EventCellEditCommitted, payload)

	h.publishDomainEvent("collab.cell.committed", map[string]interface{}{
		"document_id": documentID.String(),
		"cell_id":     p.CellID,
		"value":       p.Value,
	})
}

func (h *Hub) handleCellEditCancel(cs *connState, p CellEditCancelPayload) {
	if cs.session == nil {
		return
	}
	lock, ok := cs.session.CellLocks[p.CellID]
	if !ok || lock.EditedBy.ID != cs.presence.UserID {
		return
	}
	delete(cs.session.CellLocks, p.CellID)
	h.broadcast(cs.session, cs.presence.UserID, EventCellEditCancelled, map[string]interface{}{
		"cellId":      p.CellID,
		"cancelledBy": lock.EditedBy,
	})
}
