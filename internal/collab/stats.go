package collab

import (
	"context"
	"strconv"
	"time"

	"csvlens-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "collab:active_sessions"

type statsUpdate struct {
	documentID   uuid.UUID
	participants int
}

// PresenceReporter mirrors per-document participant counts into a Redis hash
// so the admin console can list live sessions without talking to the hub.
// Updates flow through a single worker goroutine, so mirror writes apply in
// emission order; Redis being down only costs the mirror.
type PresenceReporter struct {
	rdb     *redis.Client
	logger  logger.ILogger
	updates chan statsUpdate
	write   func(ctx context.Context, u statsUpdate) error
}

func NewPresenceReporter(rdb *redis.Client, log logger.ILogger) *PresenceReporter {
	r := &PresenceReporter{
		rdb:     rdb,
		logger:  log,
		updates: make(chan statsUpdate, 256),
	}
	if rdb != nil {
		r.write = r.writeRedis
		go r.run()
	}
	return r
}

// Report implements StatsReporter. Zero participants removes the entry. Never
// blocks the caller; a full queue drops the update.
func (r *PresenceReporter) Report(documentID uuid.UUID, participants int) {
	if r.write == nil {
		return
	}
	select {
	case r.updates <- statsUpdate{documentID: documentID, participants: participants}:
	default:
		r.logger.Warn("PresenceReporter", "Stats queue full, dropping update", map[string]interface{}{
			"document_id": documentID,
		})
	}
}

func (r *PresenceReporter) run() {
	for u := range r.updates {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := r.write(ctx, u)
		cancel()
		if err != nil {
			r.logger.Warn("PresenceReporter", "Failed to mirror session stats", map[string]interface{}{
				"document_id": u.documentID,
				"error":       err.Error(),
			})
		}
	}
}

func (r *PresenceReporter) writeRedis(ctx context.Context, u statsUpdate) error {
	if u.participants == 0 {
		return r.rdb.HDel(ctx, activeSessionsKey, u.documentID.String()).Err()
	}
	return r.rdb.HSet(ctx, activeSessionsKey, u.documentID.String(), u.participants).Err()
}

// ActiveSessions returns documentId -> participant count.
func (r *PresenceReporter) ActiveSessions(ctx context.Context) (map[string]int64, error) {
	if r.rdb == nil {
		return map[string]int64{}, nil
	}
	raw, err := r.rdb.HGetAll(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, err
	}
	sessions := make(map[string]int64, len(raw))
	for docID, count := range raw {
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			continue
		}
		sessions[docID] = n
	}
	return sessions, nil
}
