package games

import (
	"crypto/rand"
	"math/big"
	"slices"
	"time"

	"github.com/hilthontt/haven/internal/domain"
)

const (
	PhaseTasks      = "tasks"
	PhaseDiscussion = "discussion"
	PhaseVoting     = "voting"
	PhaseResults    = "results"

	RoleImposter = "imposter"
	RoleCrewmate = "crewmate"

	WinnerCrewmates = "crewmates"
	WinnerImposter  = "imposter"

	DefaultDiscussionDuration = 2 * time.Minute
)

var imposterPhases = []string{domain.PhaseSetup, PhaseTasks, PhaseDiscussion, PhaseVoting, PhaseResults}

type Imposter struct {
	discussion time.Duration
}

var _ Rules = (*Imposter)(nil)

func NewImposter(discussion time.Duration) *Imposter {
	if discussion <= 0 {
		discussion = DefaultDiscussionDuration
	}
	return &Imposter{discussion: discussion}
}

func (g *Imposter) GameType() domain.GameType {
	return domain.GameImposter
}

func (g *Imposter) MinPlayers() int {
	return 3
}

func (g *Imposter) ValidatePhase(phase string) error {
	if !slices.Contains(imposterPhases, phase) {
		return domain.Validationf("Phase must be one of: setup, tasks, discussion, voting, results")
	}
	return nil
}

// ValidateRoles allows partial assignment but never more than one imposter.
func (g *Imposter) ValidateRoles(session *domain.GameSession, roles map[string]string) error {
	for userID, role := range roles {
		if role != RoleImposter && role != RoleCrewmate {
			return domain.Validationf("Role must be imposter or crewmate")
		}
		if !session.IsPlayer(userID) {
			return domain.Validationf("User %s is not a player in this game", userID)
		}
	}

	imposters := 0
	for _, p := range session.Players {
		role, ok := roles[p.UserID]
		if !ok && p.Role != nil {
			role = *p.Role
		}
		if role == RoleImposter {
			imposters++
		}
	}
	if imposters > 1 {
		return domain.Validationf("Only one imposter can be assigned")
	}
	return nil
}

func (g *Imposter) PhaseData(phase string, now time.Time) map[string]any {
	if phase != PhaseDiscussion {
		return nil
	}
	return map[string]any{
		"discussionEndsAt": now.Add(g.discussion).UTC().Format(time.RFC3339),
	}
}

// RandomRoles picks one imposter uniformly at random and makes everyone else crew.
func (g *Imposter) RandomRoles(players []domain.Player) (map[string]string, error) {
	if len(players) < g.MinPlayers() {
		return nil, domain.Validationf("At least %d players are needed", g.MinPlayers())
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(players))))
	if err != nil {
		return nil, err
	}
	pick := int(n.Int64())

	roles := make(map[string]string, len(players))
	for i, p := range players {
		if i == pick {
			roles[p.UserID] = RoleImposter
			continue
		}
		roles[p.UserID] = RoleCrewmate
	}
	return roles, nil
}

// Resolve decides the winning side. The crew wins only when the imposter alone got the most votes.
func (g *Imposter) Resolve(session *domain.GameSession, tally TallyResult) (map[string]any, error) {
	var imposters []string
	for _, p := range session.Players {
		if p.Role != nil && *p.Role == RoleImposter {
			imposters = append(imposters, p.UserID)
		}
	}
	if len(imposters) != 1 {
		return nil, domain.Validationf("Exactly one imposter must be assigned before resolving")
	}
	imposter := imposters[0]

	winner := WinnerImposter
	if tally.Leader == imposter {
		winner = WinnerCrewmates
	}

	results := map[string]any{
		"imposterId": imposter,
		"winner":     winner,
		"votes":      tally.Counts,
		"resolved":   tally.Resolved(),
		"round":      session.Round,
	}
	if tally.Resolved() {
		results["votedOut"] = tally.Leader
	} else if len(tally.Tied) > 0 {
		results["tied"] = tally.Tied
	}
	return results, nil
}
