package domain

import "time"

// Envelope types the server sends over a circle's signaling channel.
const (
	SignalParticipantJoined = "circle.participant_joined"
	SignalParticipantLeft   = "circle.participant_left"
	SignalCircleEnded       = "circle.ended"

	SignalGameSession = "game.session"
	SignalGameStarted = "game.started"
	SignalGamePhase   = "game.phase"
	SignalGameRole    = "game.role"
	SignalGameVote    = "game.vote"
	SignalGameRound   = "game.round"
	SignalGameStatus  = "game.status"
	SignalGameEnded   = "game.ended"
)

type ParticipantSignal struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Count       int    `json:"count"`
}

type CircleEndedSignal struct {
	CircleID string       `json:"circleId"`
	Status   CircleStatus `json:"status"`
	EndedAt  *time.Time   `json:"endedAt,omitempty"`
}

type VoteSignal struct {
	SessionID string `json:"sessionId"`
	VoterID   string `json:"voterId"`
	TargetID  string `json:"targetId"`
}

type RoleSignal struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
}

type PhaseSignal struct {
	SessionID string         `json:"sessionId"`
	Phase     string         `json:"phase"`
	Round     int            `json:"round"`
	GameData  map[string]any `json:"gameData,omitempty"`
}

type SessionSignal struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	Round     int           `json:"round"`
	Phase     string        `json:"phase"`
}

type GameEndedSignal struct {
	SessionID string         `json:"sessionId"`
	Results   map[string]any `json:"results,omitempty"`
}
