// Package games holds the per-game rules that sit above the game-agnostic session manager.
package games

import (
	"time"

	"github.com/hilthontt/haven/internal/domain"
)

// Rules validates game-specific state. The session manager only consults it; it never
// interprets roles, phases or game data itself.
type Rules interface {
	GameType() domain.GameType
	MinPlayers() int
	ValidatePhase(phase string) error
	// ValidateRoles checks roles as they would stand after being applied to session.
	ValidateRoles(session *domain.GameSession, roles map[string]string) error
	// PhaseData returns game data to merge when the session enters phase.
	PhaseData(phase string, now time.Time) map[string]any
	RandomRoles(players []domain.Player) (map[string]string, error)
	Resolve(session *domain.GameSession, tally TallyResult) (map[string]any, error)
}

type Registry struct {
	rules map[domain.GameType]Rules
}

func NewRegistry(rules ...Rules) *Registry {
	r := &Registry{rules: make(map[domain.GameType]Rules, len(rules))}
	for _, rule := range rules {
		r.rules[rule.GameType()] = rule
	}
	return r
}

// Lookup returns the rules of gameType. Games without rules are handled generically.
func (r *Registry) Lookup(gameType domain.GameType) (Rules, bool) {
	if r == nil {
		return nil, false
	}
	rules, ok := r.rules[gameType]
	return rules, ok
}

// GenericResults reports a tally for games that have no rules of their own.
func GenericResults(tally TallyResult) map[string]any {
	results := map[string]any{
		"votes":    tally.Counts,
		"resolved": tally.Resolved(),
	}
	if tally.Resolved() {
		results["leader"] = tally.Leader
	} else if len(tally.Tied) > 0 {
		results["tied"] = tally.Tied
	}
	return results
}
