package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/haven/internal/application/games"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/metrics"
	"github.com/hilthontt/haven/internal/infrastructure/validate"
)

type GameUseCase interface {
	GetOrCreate(ctx context.Context, p domain.Principal, roomID string, gameType domain.GameType) (*domain.GameSession, error)
	Get(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error)
	Start(ctx context.Context, p domain.Principal, sessionID string, gameData map[string]any) (*domain.GameSession, error)
	AssignRoles(ctx context.Context, p domain.Principal, sessionID string, roles map[string]string) (*domain.GameSession, error)
	AssignRandomRoles(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error)
	Vote(ctx context.Context, p domain.Principal, sessionID, targetID string) (*domain.GameSession, error)
	UpdatePhase(ctx context.Context, p domain.Principal, sessionID, phase string, gameData map[string]any) (*domain.GameSession, error)
	Pause(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error)
	Resume(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error)
	NewRound(ctx context.Context, p domain.Principal, sessionID string, gameData map[string]any) (*domain.GameSession, error)
	End(ctx context.Context, p domain.Principal, sessionID string, results map[string]any) (*domain.GameSession, error)
	Resolve(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error)
}

type Dependencies struct {
	Circles   domain.CircleRepository
	Sessions  domain.GameSessionRepository
	Publisher domain.CircleEventPublisher
	Signaler  domain.Signaler
	Rules     *games.Registry
	Metrics   *metrics.Metrics
	Logger    logging.Logger
	Now       func() time.Time
}

type gameUseCase struct {
	circles   domain.CircleRepository
	sessions  domain.GameSessionRepository
	publisher domain.CircleEventPublisher
	signaler  domain.Signaler
	rules     *games.Registry
	metrics   *metrics.Metrics
	logger    logging.Logger
	now       func() time.Time
}

func NewGameUseCase(deps Dependencies) GameUseCase {
	return newGameUseCase(deps)
}

func newGameUseCase(deps Dependencies) *gameUseCase {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &gameUseCase{
		circles:   deps.Circles,
		sessions:  deps.Sessions,
		publisher: deps.Publisher,
		signaler:  deps.Signaler,
		rules:     deps.Rules,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

var phaseValidator = validate.Field("Phase",
	validate.Required(),
	validate.MaxLength(50),
	validate.Printable(),
)

// GetOrCreate returns the room's open session, creating it from the current participants
// when there is none. Every reconnecting client converges on the same session.
func (uc *gameUseCase) GetOrCreate(ctx context.Context, p domain.Principal, roomID string, gameType domain.GameType) (*domain.GameSession, error) {
	if p.ID == "" {
		return nil, domain.ErrUnauthenticated
	}

	circle, err := uc.loadCircle(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !circle.IsMember(p.ID) {
		if !circle.VisibleTo(p) {
			return nil, domain.ErrCircleNotFound
		}
		return nil, domain.ErrNotCircleMember
	}
	if !circle.Status.Open() {
		return nil, domain.ErrCircleClosed
	}
	if gameType == "" || gameType == domain.GameNone || gameType != circle.GameType {
		return nil, domain.ErrGameTypeMismatch
	}

	now := uc.now()
	session, created, err := uc.sessions.FindOrCreateOpen(ctx, domain.NewGameSession(uuid.NewString(), circle, now))
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		uc.logger.Error(logging.Game, logging.SessionLifecycle, "Failed to get or create session", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: roomID,
		}))
		return nil, fmt.Errorf("failed to get or create session: %w", err)
	}

	if created {
		// The circle may have closed while the session was being created.
		current, err := uc.loadCircle(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if !current.Status.Open() {
			if _, _, err := uc.sessions.End(ctx, session.ID, now, map[string]any{"reason": "circle_closed"}); err != nil {
				uc.logger.Warn(logging.Game, logging.SessionLifecycle, "Failed to end session of closed circle", logging.WithError(err, map[logging.ExtraKey]any{
					logging.CircleID:  roomID,
					logging.SessionID: session.ID,
				}))
			}
			return nil, domain.ErrCircleClosed
		}

		uc.metrics.GameEvent(string(session.GameType), "created")
		uc.signal(circle.ChannelName, p.ID, domain.SignalGameSession, sessionSignal(session))
		uc.logger.Info(logging.Game, logging.SessionLifecycle, "Game session created", map[logging.ExtraKey]any{
			logging.CircleID:  roomID,
			logging.SessionID: session.ID,
			logging.Count:     len(session.Players),
		})
	}

	return redact(session, p.ID, circle.IsHost(p.ID)), nil
}

func (uc *gameUseCase) Get(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error) {
	session, circle, err := uc.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !circle.IsMember(p.ID) && !session.IsPlayer(p.ID) {
		if !circle.VisibleTo(p) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.ErrNotCircleMember
	}
	return redact(session, p.ID, circle.IsHost(p.ID)), nil
}

func (uc *gameUseCase) Start(ctx context.Context, p domain.Principal, sessionID string, gameData map[string]any) (*domain.GameSession, error) {
	if err := domain.ValidateGameDataKeys(gameData); err != nil {
		return nil, err
	}

	session, circle, err := uc.loadPlayable(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if rules, ok := uc.rules.Lookup(session.GameType); ok && len(session.Players) < rules.MinPlayers() {
		return nil, domain.Validationf("At least %d players are needed to start", rules.MinPlayers())
	}

	now := uc.now()
	started, err := uc.sessions.Start(ctx, sessionID, now, gameData)
	if err != nil {
		return nil, uc.fail(err, logging.SessionLifecycle, "Failed to start session", sessionID)
	}

	uc.metrics.GameEvent(string(started.GameType), "started")
	uc.publish(ctx, domain.NewGameStartedLog(started, p.ID, now))
	uc.signal(circle.ChannelName, p.ID, domain.SignalGameStarted, domain.PhaseSignal{
		SessionID: started.ID,
		Phase:     started.Phase,
		Round:     started.Round,
		GameData:  started.GameData,
	})

	return started, nil
}

// AssignRoles sets the named players' roles and sends each one their role privately.
func (uc *gameUseCase) AssignRoles(ctx context.Context, p domain.Principal, sessionID string, roles map[string]string) (*domain.GameSession, error) {
	if len(roles) == 0 {
		return nil, domain.Validationf("Roles are required")
	}
	for userID, role := range roles {
		if strings.TrimSpace(userID) == "" || strings.TrimSpace(role) == "" {
			return nil, domain.Validationf("Roles must map user ids to non-empty labels")
		}
	}

	session, circle, err := uc.loadPlayable(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, domain.ErrSessionEnded
	}
	if rules, ok := uc.rules.Lookup(session.GameType); ok {
		if err := rules.ValidateRoles(session, roles); err != nil {
			return nil, err
		}
	}

	return uc.applyRoles(ctx, circle, sessionID, roles)
}

// AssignRandomRoles lets the game's rules deal every player a role.
func (uc *gameUseCase) AssignRandomRoles(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error) {
	session, circle, err := uc.loadPlayable(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, domain.ErrSessionEnded
	}

	rules, ok := uc.rules.Lookup(session.GameType)
	if !ok {
		return nil, domain.Validationf("Game %s has no role rules", session.GameType)
	}
	roles, err := rules.RandomRoles(session.Players)
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to deal roles: %w", err)
	}

	return uc.applyRoles(ctx, circle, sessionID, roles)
}

func (uc *gameUseCase) applyRoles(ctx context.Context, circle *domain.Circle, sessionID string, roles map[string]string) (*domain.GameSession, error) {
	updated, err := uc.sessions.SetRoles(ctx, sessionID, roles)
	if err != nil {
		return nil, uc.fail(err, logging.RoleAssignment, "Failed to assign roles", sessionID)
	}

	delivered := 0
	for userID, role := range roles {
		if !updated.IsPlayer(userID) || uc.signaler == nil {
			continue
		}
		if uc.signaler.Direct(circle.ChannelName, userID, domain.Envelope{
			Type:    domain.SignalGameRole,
			Payload: domain.RoleSignal{SessionID: sessionID, Role: role},
		}) {
			delivered++
		}
	}

	uc.logger.Info(logging.Game, logging.RoleAssignment, "Roles assigned", map[logging.ExtraKey]any{
		logging.SessionID: sessionID,
		logging.Count:     len(roles),
		"Delivered":       delivered,
	})
	return updated, nil
}

// Vote records the requester's latest vote. Only players may vote.
func (uc *gameUseCase) Vote(ctx context.Context, p domain.Principal, sessionID, targetID string) (*domain.GameSession, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, domain.Validationf("Target is required")
	}

	session, circle, err := uc.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsPlayer(p.ID) {
		return nil, domain.ErrNotPlayer
	}
	if !circle.Status.Open() {
		return nil, domain.ErrCircleClosed
	}

	updated, err := uc.sessions.SetVote(ctx, sessionID, p.ID, targetID)
	if err != nil {
		return nil, uc.fail(err, logging.Voting, "Failed to record vote", sessionID)
	}

	uc.metrics.GameEvent(string(updated.GameType), "vote")
	uc.signal(circle.ChannelName, p.ID, domain.SignalGameVote, domain.VoteSignal{
		SessionID: sessionID,
		VoterID:   p.ID,
		TargetID:  targetID,
	})

	return redact(updated, p.ID, circle.IsHost(p.ID)), nil
}

// UpdatePhase stores phase as given. Games with rules restrict it to their own phases.
func (uc *gameUseCase) UpdatePhase(ctx context.Context, p domain.Principal, sessionID, phase string, gameData map[string]any) (*domain.GameSession, error) {
	phase = strings.TrimSpace(phase)
	if err := phaseValidator(phase); err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}
	if err := domain.ValidateGameDataKeys(gameData); err != nil {
		return nil, err
	}

	session, circle, err := uc.loadPlayable(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}

	data := gameData
	if rules, ok := uc.rules.Lookup(session.GameType); ok {
		if err := rules.ValidatePhase(phase); err != nil {
			return nil, err
		}
		if extra := rules.PhaseData(phase, uc.now()); len(extra) > 0 {
			data = make(map[string]any, len(gameData)+len(extra))
			for k, v := range gameData {
				data[k] = v
			}
			for k, v := range extra {
				data[k] = v
			}
		}
	}

	updated, err := uc.sessions.UpdatePhase(ctx, sessionID, phase, data)
	if err != nil {
		return nil, uc.fail(err, logging.SessionLifecycle, "Failed to update phase", sessionID)
	}

	uc.signal(circle.ChannelName, p.ID, domain.SignalGamePhase, domain.PhaseSignal{
		SessionID: sessionID,
		Phase:     updated.Phase,
		Round:     updated.Round,
		GameData:  data,
	})
	return updated, nil
}

func (uc *gameUseCase) Pause(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error) {
	return uc.setStatus(ctx, p, sessionID, domain.SessionPaused)
}

func (uc *gameUseCase) Resume(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error) {
	return uc.setStatus(ctx, p, sessionID, domain.SessionActive)
}

func (uc *gameUseCase) setStatus(ctx context.Context, p domain.Principal, sessionID string, next domain.SessionStatus) (*domain.GameSession, error) {
	_, circle, err := uc.loadPlayable(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}

	updated, err := uc.sessions.SetStatus(ctx, sessionID, next, uc.now())
	if err != nil {
		return nil, uc.fail(err, logging.SessionLifecycle, "Failed to change session status", sessionID)
	}

	uc.signal(circle.ChannelName, p.ID, domain.SignalGameStatus, sessionSignal(updated))
	return updated, nil
}

// NewRound starts a replay with roles and votes cleared.
func (uc *gameUseCase) NewRound(ctx context.Context, p domain.Principal, sessionID string, gameData map[string]any) (*domain.GameSession, error) {
	if err := domain.ValidateGameDataKeys(gameData); err != nil {
		return nil, err
	}

	_, circle, err := uc.loadPlayable(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}

	updated, err := uc.sessions.NewRound(ctx, sessionID, gameData)
	if err != nil {
		return nil, uc.fail(err, logging.SessionLifecycle, "Failed to start new round", sessionID)
	}

	uc.metrics.GameEvent(string(updated.GameType), "round")
	uc.signal(circle.ChannelName, p.ID, domain.SignalGameRound, sessionSignal(updated))
	return updated, nil
}

// End closes the session with the caller's results. Ending an ended session returns it unchanged.
func (uc *gameUseCase) End(ctx context.Context, p domain.Principal, sessionID string, results map[string]any) (*domain.GameSession, error) {
	if err := domain.ValidateGameDataKeys(results); err != nil {
		return nil, err
	}

	_, circle, err := uc.loadAsHost(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	return uc.end(ctx, p, circle, sessionID, results)
}

// Resolve tallies the votes and ends the session with the outcome.
func (uc *gameUseCase) Resolve(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, error) {
	session, circle, err := uc.loadAsHost(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, domain.ErrSessionEnded
	}

	tally := games.Tally(session.Votes)

	var results map[string]any
	if rules, ok := uc.rules.Lookup(session.GameType); ok {
		if results, err = rules.Resolve(session, tally); err != nil {
			return nil, err
		}
	} else {
		results = games.GenericResults(tally)
	}

	uc.logger.Info(logging.Game, logging.Voting, "Votes tallied", map[logging.ExtraKey]any{
		logging.SessionID: sessionID,
		logging.Count:     len(session.Votes),
		"Leader":          tally.Leader,
	})
	return uc.end(ctx, p, circle, sessionID, results)
}

func (uc *gameUseCase) end(ctx context.Context, p domain.Principal, circle *domain.Circle, sessionID string, results map[string]any) (*domain.GameSession, error) {
	now := uc.now()
	ended, changed, err := uc.sessions.End(ctx, sessionID, now, results)
	if err != nil {
		return nil, uc.fail(err, logging.SessionLifecycle, "Failed to end session", sessionID)
	}
	if !changed {
		return ended, nil
	}

	uc.metrics.GameEvent(string(ended.GameType), "ended")
	uc.publish(ctx, domain.NewGameEndedLog(ended, p.ID, now))
	uc.signal(circle.ChannelName, p.ID, domain.SignalGameEnded, domain.GameEndedSignal{
		SessionID: ended.ID,
		Results:   ended.Results,
	})
	uc.logger.Info(logging.Game, logging.SessionLifecycle, "Game session ended", map[logging.ExtraKey]any{
		logging.SessionID: ended.ID,
		logging.CircleID:  ended.RoomID,
	})
	return ended, nil
}

func (uc *gameUseCase) load(ctx context.Context, sessionID string) (*domain.GameSession, *domain.Circle, error) {
	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if domain.IsKnown(err) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	circle, err := uc.loadCircle(ctx, session.RoomID)
	if err != nil {
		return nil, nil, err
	}
	return session, circle, nil
}

// loadAsHost loads the session and checks that p hosts its room.
func (uc *gameUseCase) loadAsHost(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, *domain.Circle, error) {
	session, circle, err := uc.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !circle.IsHost(p.ID) {
		return nil, nil, domain.ErrNotCircleHost
	}
	return session, circle, nil
}

// loadPlayable is loadAsHost for operations that advance play. They need an open circle.
func (uc *gameUseCase) loadPlayable(ctx context.Context, p domain.Principal, sessionID string) (*domain.GameSession, *domain.Circle, error) {
	session, circle, err := uc.loadAsHost(ctx, p, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !circle.Status.Open() {
		return nil, nil, domain.ErrCircleClosed
	}
	return session, circle, nil
}

func (uc *gameUseCase) loadCircle(ctx context.Context, roomID string) (*domain.Circle, error) {
	circle, err := uc.circles.GetByID(ctx, roomID)
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	return circle, nil
}

// fail passes domain errors through and logs and wraps everything else.
func (uc *gameUseCase) fail(err error, sub logging.SubCategory, msg, sessionID string) error {
	if domain.IsKnown(err) {
		return err
	}
	uc.logger.Error(logging.Game, sub, msg, logging.WithError(err, map[logging.ExtraKey]any{
		logging.SessionID: sessionID,
	}))
	return fmt.Errorf("%s: %w", strings.ToLower(msg), err)
}

func (uc *gameUseCase) publish(ctx context.Context, log *domain.CircleAuditLog) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, log); err != nil {
		uc.logger.Warn(logging.RabbitMQ, logging.Publish, "Failed to publish game event", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID:  log.CircleID,
			logging.EventType: string(log.EventType),
		}))
	}
}

func (uc *gameUseCase) signal(channelName, from, kind string, payload any) {
	if uc.signaler == nil {
		return
	}
	uc.signaler.Publish(channelName, domain.Envelope{Type: kind, Payload: payload, From: from})
}

func sessionSignal(s *domain.GameSession) domain.SessionSignal {
	return domain.SessionSignal{
		SessionID: s.ID,
		Status:    s.Status,
		Round:     s.Round,
		Phase:     s.Phase,
	}
}

// redact hides other players' roles from everyone but the host until the session ends.
func redact(s *domain.GameSession, viewerID string, isHost bool) *domain.GameSession {
	if isHost || !s.IsOpen() {
		return s
	}
	out := s.Clone()
	for i := range out.Players {
		if out.Players[i].UserID != viewerID {
			out.Players[i].Role = nil
		}
	}
	return out
}
