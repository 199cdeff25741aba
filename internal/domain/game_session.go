package domain

import (
	"context"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionStarting SessionStatus = "starting"
	SessionActive   SessionStatus = "active"
	SessionPaused   SessionStatus = "paused"
	SessionEnded    SessionStatus = "ended"
)

const PhaseSetup = "setup"

// CanTransition reports whether a session may move from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionWaiting:
		return next == SessionStarting || next == SessionActive || next == SessionEnded
	case SessionStarting:
		return next == SessionActive || next == SessionEnded
	case SessionActive:
		return next == SessionPaused || next == SessionEnded
	case SessionPaused:
		return next == SessionActive || next == SessionEnded
	}
	return false
}

type Player struct {
	UserID   string    `bson:"user_id" json:"userId"`
	Role     *string   `bson:"role" json:"role"`
	Score    int       `bson:"score" json:"score"`
	IsAlive  bool      `bson:"is_alive" json:"isAlive"`
	JoinedAt time.Time `bson:"joined_at" json:"joinedAt"`
}

// GameSession is the durable state of one game played inside a circle.
// GameData and Results are opaque to the platform.
type GameSession struct {
	ID        string            `bson:"_id" json:"id"`
	RoomID    string            `bson:"room_id" json:"roomId"`
	GameType  GameType          `bson:"game_type" json:"gameType"`
	Status    SessionStatus     `bson:"status" json:"status"`
	Round     int               `bson:"round" json:"round"`
	Phase     string            `bson:"phase" json:"phase"`
	Players   []Player          `bson:"players" json:"players"`
	GameData  map[string]any    `bson:"game_data" json:"gameData"`
	Votes     map[string]string `bson:"votes" json:"votes"`
	Results   map[string]any    `bson:"results,omitempty" json:"results"`
	StartedAt *time.Time        `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	EndedAt   *time.Time        `bson:"ended_at,omitempty" json:"endedAt,omitempty"`
	CreatedAt time.Time         `bson:"created_at" json:"createdAt"`

	// OpenRoomID mirrors RoomID until the session ends. A sparse unique index on it
	// keeps at most one open session per room.
	OpenRoomID string `bson:"open_room_id,omitempty" json:"-"`
}

type GameSessionRepository interface {
	// FindOrCreateOpen returns the open session of session.RoomID, inserting session when there is none.
	FindOrCreateOpen(ctx context.Context, session *GameSession) (found *GameSession, created bool, err error)
	GetByID(ctx context.Context, id string) (*GameSession, error)
	GetOpenByRoomID(ctx context.Context, roomID string) (*GameSession, error)
	SetStatus(ctx context.Context, id string, next SessionStatus, at time.Time) (*GameSession, error)
	Start(ctx context.Context, id string, at time.Time, gameData map[string]any) (*GameSession, error)
	SetRoles(ctx context.Context, id string, roles map[string]string) (*GameSession, error)
	SetVote(ctx context.Context, id, voterID, targetID string) (*GameSession, error)
	UpdatePhase(ctx context.Context, id, phase string, gameData map[string]any) (*GameSession, error)
	NewRound(ctx context.Context, id string, gameData map[string]any) (*GameSession, error)
	// End closes the session. changed is false when it had already ended.
	End(ctx context.Context, id string, at time.Time, results map[string]any) (session *GameSession, changed bool, err error)
}

// NewGameSession seeds a waiting session from the circle's participants.
func NewGameSession(id string, circle *Circle, now time.Time) *GameSession {
	players := make([]Player, 0, len(circle.Participants))
	for _, p := range circle.Participants {
		players = append(players, Player{
			UserID:   p.UserID,
			IsAlive:  true,
			JoinedAt: now,
		})
	}

	return &GameSession{
		ID:         id,
		RoomID:     circle.ID,
		GameType:   circle.GameType,
		Status:     SessionWaiting,
		Round:      1,
		Players:    players,
		GameData:   map[string]any{},
		Votes:      map[string]string{},
		CreatedAt:  now,
		OpenRoomID: circle.ID,
	}
}

func (s *GameSession) IsOpen() bool {
	return s.Status != SessionEnded
}

func (s *GameSession) FindPlayer(userID string) *Player {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *GameSession) IsPlayer(userID string) bool {
	return s.FindPlayer(userID) != nil
}

// MergeGameData shallow-merges data into GameData.
func (s *GameSession) MergeGameData(data map[string]any) {
	if len(data) == 0 {
		return
	}
	if s.GameData == nil {
		s.GameData = make(map[string]any, len(data))
	}
	for k, v := range data {
		s.GameData[k] = v
	}
}

// SetStatus applies a status change with the timestamps that go with it.
func (s *GameSession) SetStatus(next SessionStatus, at time.Time) error {
	if s.Status == SessionEnded {
		return ErrSessionEnded
	}
	if !s.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	s.Status = next
	switch next {
	case SessionActive:
		if s.StartedAt == nil {
			s.StartedAt = &at
		}
	case SessionEnded:
		s.EndedAt = &at
		s.OpenRoomID = ""
	}
	return nil
}

// Start moves a waiting or starting session into play.
func (s *GameSession) Start(at time.Time, gameData map[string]any) error {
	if s.Status == SessionEnded {
		return ErrSessionEnded
	}
	if s.Status != SessionWaiting && s.Status != SessionStarting {
		return ErrInvalidTransition
	}
	s.Status = SessionActive
	s.StartedAt = &at
	s.Round = 1
	s.Phase = PhaseSetup
	s.MergeGameData(gameData)
	return nil
}

// AssignRoles sets the role of every player named in roles. Others keep theirs.
func (s *GameSession) AssignRoles(roles map[string]string) error {
	if s.Status == SessionEnded {
		return ErrSessionEnded
	}
	for i := range s.Players {
		if role, ok := roles[s.Players[i].UserID]; ok {
			r := role
			s.Players[i].Role = &r
		}
	}
	return nil
}

// CastVote records voterID's latest vote.
func (s *GameSession) CastVote(voterID, targetID string) error {
	if s.Status == SessionEnded {
		return ErrSessionEnded
	}
	if !s.IsPlayer(voterID) {
		return ErrNotPlayer
	}
	if s.Votes == nil {
		s.Votes = map[string]string{}
	}
	s.Votes[voterID] = targetID
	return nil
}

func (s *GameSession) UpdatePhase(phase string, gameData map[string]any) error {
	if s.Status == SessionEnded {
		return ErrSessionEnded
	}
	s.Phase = phase
	s.MergeGameData(gameData)
	return nil
}

// NewRound resets per-round state for a replay.
func (s *GameSession) NewRound(gameData map[string]any) error {
	if s.Status == SessionEnded {
		return ErrSessionEnded
	}
	if s.Status != SessionActive && s.Status != SessionPaused {
		return ErrInvalidTransition
	}
	s.Round++
	s.Phase = PhaseSetup
	s.Votes = map[string]string{}
	for i := range s.Players {
		s.Players[i].Role = nil
		s.Players[i].IsAlive = true
	}
	s.MergeGameData(gameData)
	return nil
}

// End closes the session. It returns false when the session had already ended.
func (s *GameSession) End(at time.Time, results map[string]any) bool {
	if s.Status == SessionEnded {
		return false
	}
	s.Status = SessionEnded
	s.EndedAt = &at
	s.OpenRoomID = ""
	if results != nil {
		s.Results = results
	}
	return true
}

// ValidateGameDataKeys rejects keys that cannot be stored as document field names.
func ValidateGameDataKeys(data map[string]any) error {
	for k := range data {
		if k == "" || strings.Contains(k, ".") || strings.HasPrefix(k, "$") {
			return ErrInvalidGameDataKey
		}
	}
	return nil
}

// Clone returns a copy whose maps and slices are not shared with s.
func (s *GameSession) Clone() *GameSession {
	cp := *s
	cp.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		if p.Role != nil {
			r := *p.Role
			p.Role = &r
		}
		cp.Players[i] = p
	}
	cp.GameData = cloneMap(s.GameData)
	cp.Results = cloneMap(s.Results)
	if s.Votes != nil {
		cp.Votes = make(map[string]string, len(s.Votes))
		for k, v := range s.Votes {
			cp.Votes[k] = v
		}
	}
	cp.StartedAt = cloneTime(s.StartedAt)
	cp.EndedAt = cloneTime(s.EndedAt)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
