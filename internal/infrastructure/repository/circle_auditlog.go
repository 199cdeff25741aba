package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/haven/internal/domain"
)

// Oldest entries of a circle are evicted when capacity is exceeded.
type circleAuditLogRepository struct {
	logs     map[string][]domain.CircleAuditLog // circleID -> []CircleAuditLog
	capacity uint
	mu       *sync.RWMutex
}

func NewCircleAuditLogRepository(capacity uint) domain.CircleAuditRepository {
	if capacity == 0 {
		capacity = 100
	}
	return &circleAuditLogRepository{
		capacity: capacity,
		logs:     make(map[string][]domain.CircleAuditLog),
		mu:       &sync.RWMutex{},
	}
}

func (r *circleAuditLogRepository) Log(ctx context.Context, log *domain.CircleAuditLog) error {
	if log == nil || log.CircleID == "" {
		return domain.ErrInvalidInput
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Redelivered events carry the same id.
	for _, e := range r.logs[log.CircleID] {
		if e.ID == log.ID {
			return nil
		}
	}

	entries := append(r.logs[log.CircleID], *log)
	if len(entries) > int(r.capacity) {
		entries = entries[len(entries)-int(r.capacity):]
	}
	r.logs[log.CircleID] = entries

	return nil
}

// GetByCircleID returns the newest entries first.
func (r *circleAuditLogRepository) GetByCircleID(ctx context.Context, circleID string, limit int) ([]domain.CircleAuditLog, error) {
	r.mu.RLock()
	entries := r.logs[circleID]
	out := make([]domain.CircleAuditLog, len(entries))
	copy(out, entries)
	r.mu.RUnlock()

	sortByTimestampDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *circleAuditLogRepository) GetByEventType(ctx context.Context, eventType domain.CircleEventType, from, to time.Time) ([]domain.CircleAuditLog, error) {
	r.mu.RLock()
	out := make([]domain.CircleAuditLog, 0)
	for _, entries := range r.logs {
		for _, e := range entries {
			if e.EventType == eventType && !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
				out = append(out, e)
			}
		}
	}
	r.mu.RUnlock()

	sortByTimestampDesc(out)
	return out, nil
}

func (r *circleAuditLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for circleID, entries := range r.logs {
		kept := entries[:0]
		for _, e := range entries {
			if !e.Timestamp.Before(before) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.logs, circleID)
			continue
		}
		r.logs[circleID] = kept
	}
	return nil
}

func (r *circleAuditLogRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func sortByTimestampDesc(logs []domain.CircleAuditLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
}
