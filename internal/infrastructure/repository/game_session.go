package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/haven/internal/domain"
)

type gameSessionRepository struct {
	sessions  map[string]*domain.GameSession // ID -> GameSession
	openIndex map[string]string              // RoomID -> ID of the open session
	mu        sync.RWMutex
}

func NewGameSessionRepository() domain.GameSessionRepository {
	return &gameSessionRepository{
		sessions:  make(map[string]*domain.GameSession),
		openIndex: make(map[string]string),
	}
}

func (r *gameSessionRepository) FindOrCreateOpen(ctx context.Context, session *domain.GameSession) (*domain.GameSession, bool, error) {
	if session == nil || session.ID == "" || session.RoomID == "" {
		return nil, false, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.openIndex[session.RoomID]; exists {
		return r.sessions[id].Clone(), false, nil
	}

	stored := session.Clone()
	stored.OpenRoomID = stored.RoomID
	r.sessions[stored.ID] = stored
	r.openIndex[stored.RoomID] = stored.ID

	return stored.Clone(), true, nil
}

func (r *gameSessionRepository) GetByID(ctx context.Context, id string) (*domain.GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (r *gameSessionRepository) GetOpenByRoomID(ctx context.Context, roomID string) (*domain.GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.openIndex[roomID]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return r.sessions[id].Clone(), nil
}

func (r *gameSessionRepository) SetStatus(ctx context.Context, id string, next domain.SessionStatus, at time.Time) (*domain.GameSession, error) {
	return r.update(id, func(s *domain.GameSession) error {
		return s.SetStatus(next, at)
	})
}

func (r *gameSessionRepository) Start(ctx context.Context, id string, at time.Time, gameData map[string]any) (*domain.GameSession, error) {
	return r.update(id, func(s *domain.GameSession) error {
		return s.Start(at, gameData)
	})
}

func (r *gameSessionRepository) SetRoles(ctx context.Context, id string, roles map[string]string) (*domain.GameSession, error) {
	return r.update(id, func(s *domain.GameSession) error {
		return s.AssignRoles(roles)
	})
}

func (r *gameSessionRepository) SetVote(ctx context.Context, id, voterID, targetID string) (*domain.GameSession, error) {
	return r.update(id, func(s *domain.GameSession) error {
		return s.CastVote(voterID, targetID)
	})
}

func (r *gameSessionRepository) UpdatePhase(ctx context.Context, id, phase string, gameData map[string]any) (*domain.GameSession, error) {
	return r.update(id, func(s *domain.GameSession) error {
		return s.UpdatePhase(phase, gameData)
	})
}

func (r *gameSessionRepository) NewRound(ctx context.Context, id string, gameData map[string]any) (*domain.GameSession, error) {
	return r.update(id, func(s *domain.GameSession) error {
		return s.NewRound(gameData)
	})
}

func (r *gameSessionRepository) End(ctx context.Context, id string, at time.Time, results map[string]any) (*domain.GameSession, bool, error) {
	var changed bool
	session, err := r.update(id, func(s *domain.GameSession) error {
		changed = s.End(at, results)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return session, changed, nil
}

// update applies fn under the write lock and keeps the open-session index in step with the status.
func (r *gameSessionRepository) update(id string, fn func(*domain.GameSession) error) (*domain.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.sessions[id] = working
	if !working.IsOpen() && r.openIndex[working.RoomID] == working.ID {
		delete(r.openIndex, working.RoomID)
	}

	return working.Clone(), nil
}
