package games

import (
	"errors"
	"testing"
	"time"

	"github.com/hilthontt/haven/internal/domain"
)

func sessionWith(ids ...string) *domain.GameSession {
	s := &domain.GameSession{Status: domain.SessionActive, Round: 1}
	for _, id := range ids {
		s.Players = append(s.Players, domain.Player{UserID: id, IsAlive: true})
	}
	return s
}

func TestImposter_ValidatePhase(t *testing.T) {
	g := NewImposter(0)
	for _, phase := range []string{"setup", "tasks", "discussion", "voting", "results"} {
		if err := g.ValidatePhase(phase); err != nil {
			t.Fatalf("ValidatePhase(%q) error = %v", phase, err)
		}
	}
	if err := g.ValidatePhase("lobby"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ValidatePhase(lobby) error = %v", err)
	}
}

func TestImposter_ValidateRoles(t *testing.T) {
	g := NewImposter(0)
	s := sessionWith("a", "b", "c", "d")

	if err := g.ValidateRoles(s, map[string]string{"a": RoleImposter, "b": RoleCrewmate}); err != nil {
		t.Fatalf("partial assignment error = %v", err)
	}
	if err := g.ValidateRoles(s, map[string]string{"a": RoleImposter, "b": RoleImposter}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("two imposters error = %v", err)
	}
	if err := g.ValidateRoles(s, map[string]string{"a": "wizard"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown label error = %v", err)
	}
	if err := g.ValidateRoles(s, map[string]string{"zed": RoleCrewmate}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("non-player error = %v", err)
	}

	existing := RoleImposter
	s.Players[0].Role = &existing
	if err := g.ValidateRoles(s, map[string]string{"b": RoleImposter}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("second imposter on top of an existing one error = %v", err)
	}
	if err := g.ValidateRoles(s, map[string]string{"a": RoleCrewmate, "b": RoleImposter}); err != nil {
		t.Fatalf("moving the imposter error = %v", err)
	}
}

func TestImposter_PhaseData(t *testing.T) {
	g := NewImposter(2 * time.Minute)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	data := g.PhaseData(PhaseDiscussion, now)
	if data["discussionEndsAt"] != "2025-01-01T10:02:00Z" {
		t.Fatalf("discussionEndsAt = %v", data["discussionEndsAt"])
	}
	if g.PhaseData(PhaseVoting, now) != nil {
		t.Fatal("voting should not add game data")
	}
}

func TestImposter_RandomRoles(t *testing.T) {
	g := NewImposter(0)
	s := sessionWith("a", "b", "c", "d")

	for i := 0; i < 20; i++ {
		roles, err := g.RandomRoles(s.Players)
		if err != nil {
			t.Fatalf("RandomRoles() error = %v", err)
		}
		imposters := 0
		for _, role := range roles {
			if role == RoleImposter {
				imposters++
			}
		}
		if len(roles) != 4 || imposters != 1 {
			t.Fatalf("roles = %v", roles)
		}
	}

	if _, err := g.RandomRoles(sessionWith("a", "b").Players); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("too few players error = %v", err)
	}
}

func TestImposter_Resolve(t *testing.T) {
	g := NewImposter(0)
	s := sessionWith("a", "b", "c", "d")
	if err := s.AssignRoles(map[string]string{"a": RoleImposter, "b": RoleCrewmate, "c": RoleCrewmate, "d": RoleCrewmate}); err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}

	results, err := g.Resolve(s, Tally(map[string]string{"a": "b", "b": "a", "c": "a", "d": "a"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if results["winner"] != WinnerCrewmates || results["votedOut"] != "a" || results["imposterId"] != "a" {
		t.Fatalf("results = %v", results)
	}

	results, err = g.Resolve(s, Tally(map[string]string{"a": "b", "b": "c", "c": "b", "d": "c"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if results["winner"] != WinnerImposter || results["resolved"] != false {
		t.Fatalf("tied results = %v", results)
	}

	if _, err := g.Resolve(sessionWith("a", "b", "c"), Tally(nil)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Resolve() without imposter error = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewImposter(0))
	if _, ok := r.Lookup(domain.GameImposter); !ok {
		t.Fatal("imposter rules missing")
	}
	if _, ok := r.Lookup(domain.GameTwoTruths); ok {
		t.Fatal("two_truths should be generic")
	}

	var nilRegistry *Registry
	if _, ok := nilRegistry.Lookup(domain.GameImposter); ok {
		t.Fatal("nil registry should have no rules")
	}
}
