package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hilthontt/haven/internal/domain"
)

// circleRepository keeps circles in process memory. Every mutation runs under one
// lock, so the conditional updates match the single-document updates of the Mongo store.
type circleRepository struct {
	circles       map[string]*domain.Circle // ID -> Circle
	joinCodeIndex map[string]string         // JoinCode -> ID, never released
	channelIndex  map[string]string         // ChannelName -> ID, never released
	quotaIndex    map[string]string         // QuotaHolder -> ID while open
	mu            *sync.RWMutex
}

func NewCircleRepository() domain.CircleRepository {
	return &circleRepository{
		circles:       make(map[string]*domain.Circle),
		joinCodeIndex: make(map[string]string),
		channelIndex:  make(map[string]string),
		quotaIndex:    make(map[string]string),
		mu:            &sync.RWMutex{},
	}
}

// Create stores a circle if its ID, join code, channel name and quota slot are free.
func (r *circleRepository) Create(ctx context.Context, circle *domain.Circle) error {
	if circle == nil || circle.ID == "" || circle.JoinCode == "" || circle.ChannelName == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.circles[circle.ID]; exists {
		return domain.Conflictf("Circle %s already exists", circle.ID)
	}
	if _, exists := r.joinCodeIndex[circle.JoinCode]; exists {
		return domain.ErrDuplicateJoinCode
	}
	if _, exists := r.channelIndex[circle.ChannelName]; exists {
		return domain.ErrDuplicateChannel
	}
	if circle.QuotaHolder != "" {
		if _, exists := r.quotaIndex[circle.QuotaHolder]; exists {
			return domain.ErrCircleQuotaExceeded
		}
		r.quotaIndex[circle.QuotaHolder] = circle.ID
	}

	r.circles[circle.ID] = circle.Clone()
	r.joinCodeIndex[circle.JoinCode] = circle.ID
	r.channelIndex[circle.ChannelName] = circle.ID

	return nil
}

func (r *circleRepository) GetByID(ctx context.Context, id string) (*domain.Circle, error) {
	if id == "" {
		return nil, domain.ErrCircleNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	circle, exists := r.circles[id]
	if !exists {
		return nil, domain.ErrCircleNotFound
	}
	return circle.Clone(), nil
}

func (r *circleRepository) GetByJoinCode(ctx context.Context, joinCode string) (*domain.Circle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.joinCodeIndex[joinCode]
	if !exists {
		return nil, domain.ErrCircleNotFound
	}
	return r.circles[id].Clone(), nil
}

func (r *circleRepository) JoinCodeExists(ctx context.Context, joinCode string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.joinCodeIndex[joinCode]
	return exists, nil
}

func (r *circleRepository) HasOpenCircle(ctx context.Context, hostID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.circles {
		if c.HostID == hostID && c.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

// List returns matching circles, newest first.
func (r *circleRepository) List(ctx context.Context, filter domain.CircleFilter) ([]domain.Circle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Circle, 0)
	for _, c := range r.circles {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, c.Status) {
			continue
		}
		if filter.ViewerID != "" && c.IsPrivate && !c.IsMember(filter.ViewerID) {
			continue
		}
		out = append(out, *c.Clone())
	}

	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *circleRepository) ListByStatus(ctx context.Context, status domain.CircleStatus) ([]domain.Circle, error) {
	return r.List(ctx, domain.CircleFilter{Statuses: []domain.CircleStatus{status}})
}

func (r *circleRepository) AddParticipant(ctx context.Context, id string, p domain.Participant) (*domain.Circle, bool, error) {
	var joined bool
	circle, err := r.update(id, func(c *domain.Circle) error {
		var err error
		joined, err = c.AddParticipant(p)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return circle, joined, nil
}

func (r *circleRepository) RemoveParticipant(ctx context.Context, id, userID string) (*domain.Circle, error) {
	return r.update(id, func(c *domain.Circle) error {
		c.RemoveParticipant(userID)
		return nil
	})
}

func (r *circleRepository) Transition(ctx context.Context, id string, next domain.CircleStatus, at time.Time) (*domain.Circle, bool, error) {
	var changed bool
	circle, err := r.update(id, func(c *domain.Circle) error {
		holder := c.QuotaHolder

		var err error
		changed, err = c.Transition(next, at)
		if err != nil {
			return err
		}
		if changed && holder != "" && c.QuotaHolder == "" {
			delete(r.quotaIndex, holder)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return circle, changed, nil
}

func (r *circleRepository) AppendFlag(ctx context.Context, id string, flag domain.Flag) error {
	_, err := r.update(id, func(c *domain.Circle) error {
		c.Flags = append(c.Flags, flag)
		return nil
	})
	return err
}

// update applies fn to the stored circle under the write lock and returns a copy of the result.
// The stored circle is left untouched when fn fails.
func (r *circleRepository) update(id string, fn func(*domain.Circle) error) (*domain.Circle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.circles[id]
	if !exists {
		return nil, domain.ErrCircleNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.circles[id] = working
	return working.Clone(), nil
}

func sortNewestFirst(circles []domain.Circle) {
	sort.SliceStable(circles, func(i, j int) bool {
		if circles[i].CreatedAt.Equal(circles[j].CreatedAt) {
			return circles[i].ID > circles[j].ID
		}
		return circles[i].CreatedAt.After(circles[j].CreatedAt)
	})
}
