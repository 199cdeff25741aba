package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestSession() *GameSession {
	c := &Circle{
		ID:           "circle-1",
		GameType:     GameImposter,
		Participants: []Participant{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}},
	}
	return NewGameSession("session-1", c, time.Now())
}

func TestSessionStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{SessionWaiting, SessionActive, true},
		{SessionStarting, SessionActive, true},
		{SessionActive, SessionPaused, true},
		{SessionPaused, SessionActive, true},
		{SessionPaused, SessionEnded, true},
		{SessionActive, SessionWaiting, false},
		{SessionEnded, SessionActive, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNewGameSessionSeedsPlayers(t *testing.T) {
	s := newTestSession()

	if s.Status != SessionWaiting || s.Round != 1 || s.OpenRoomID != "circle-1" {
		t.Fatalf("unexpected seed: %+v", s)
	}
	if len(s.Players) != 3 || !s.Players[0].IsAlive || s.Players[0].Role != nil {
		t.Fatalf("unexpected players: %+v", s.Players)
	}
}

func TestSessionVotingAndRounds(t *testing.T) {
	s := newTestSession()
	if err := s.Start(time.Now(), map[string]any{"word": "apple"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(time.Now(), nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second start: expected ErrInvalidTransition, got %v", err)
	}

	if err := s.CastVote("a", "b"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := s.CastVote("a", "c"); err != nil {
		t.Fatalf("revote: %v", err)
	}
	if s.Votes["a"] != "c" || len(s.Votes) != 1 {
		t.Fatalf("latest vote should win: %v", s.Votes)
	}
	if err := s.CastVote("outsider", "a"); !errors.Is(err, ErrNotPlayer) {
		t.Fatalf("expected ErrNotPlayer, got %v", err)
	}

	_ = s.AssignRoles(map[string]string{"a": "imposter"})
	s.Players[1].IsAlive = false
	if err := s.NewRound(nil); err != nil {
		t.Fatalf("NewRound: %v", err)
	}
	if s.Round != 2 || len(s.Votes) != 0 || s.Players[0].Role != nil || !s.Players[1].IsAlive {
		t.Fatalf("round not reset: %+v", s)
	}
	if s.GameData["word"] != "apple" {
		t.Fatal("game data should survive a new round")
	}
}

func TestSessionEnd(t *testing.T) {
	s := newTestSession()
	at := time.Now()

	if !s.End(at, map[string]any{"winner": "crewmates"}) {
		t.Fatal("first End should change the session")
	}
	if s.End(at.Add(time.Minute), map[string]any{"winner": "imposter"}) {
		t.Fatal("second End should be a no-op")
	}
	if s.Results["winner"] != "crewmates" || s.OpenRoomID != "" {
		t.Fatalf("unexpected state after end: %+v", s)
	}
	if err := s.CastVote("a", "b"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestValidateGameDataKeys(t *testing.T) {
	if err := ValidateGameDataKeys(map[string]any{"discussionEndsAt": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "a.b", "$where"} {
		if err := ValidateGameDataKeys(map[string]any{bad: 1}); !errors.Is(err, ErrInvalidGameDataKey) {
			t.Fatalf("key %q: expected ErrInvalidGameDataKey, got %v", bad, err)
		}
	}
}

func TestCloneDoesNotShareState(t *testing.T) {
	s := newTestSession()
	_ = s.AssignRoles(map[string]string{"a": "crewmate"})

	cp := s.Clone()
	*cp.Players[0].Role = "imposter"
	cp.GameData["k"] = "v"
	cp.Votes["a"] = "b"

	if *s.Players[0].Role != "crewmate" || len(s.GameData) != 0 || len(s.Votes) != 0 {
		t.Fatal("clone shares state with the original")
	}
}
