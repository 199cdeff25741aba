package circle

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/metrics"
	"github.com/hilthontt/haven/internal/infrastructure/validate"
)

type CircleUseCase interface {
	Create(ctx context.Context, p domain.Principal, in CreateInput) (*domain.Circle, error)
	Get(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error)
	List(ctx context.Context, p domain.Principal, in ListInput) ([]domain.Circle, error)
	Join(ctx context.Context, p domain.Principal, id, joinCode string) (*domain.Circle, error)
	JoinByCode(ctx context.Context, p domain.Principal, joinCode string) (*domain.Circle, error)
	Leave(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error)
	End(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error)
	Cancel(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error)
	Flag(ctx context.Context, p domain.Principal, id, reason string) error
	IssueAudioToken(ctx context.Context, p domain.Principal, id string, channelType domain.AudioChannelType) (*domain.AudioCredentials, error)
	AuthorizeSignal(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error)
	ExpireDue(ctx context.Context) (SweepResult, error)
}

type CreateInput struct {
	Topic           string          `json:"topic"`
	Description     string          `json:"description"`
	Duration        int             `json:"duration"`
	MaxParticipants int             `json:"maxParticipants"`
	IsPrivate       bool            `json:"isPrivate"`
	AnonymousMode   bool            `json:"anonymousMode"`
	AIModeration    bool            `json:"aiModeration"`
	GameType        domain.GameType `json:"gameType"`
}

type ListInput struct {
	// Statuses is honoured for privileged callers only.
	Statuses []domain.CircleStatus
}

// SweepResult summarises one expiry pass.
type SweepResult struct {
	Checked int
	Expired int
	Failed  int
}

// Moderator screens free text. *profanity.Filter satisfies it.
type Moderator interface {
	Contains(texts ...string) bool
}

type Config struct {
	DefaultMaxParticipants int
	JoinCodeAttempts       int
	ListLimit              int
	PrivilegedListLimit    int
}

func DefaultConfig() Config {
	return Config{
		DefaultMaxParticipants: domain.DefaultMaxParticipants,
		JoinCodeAttempts:       10,
		ListLimit:              50,
		PrivilegedListLimit:    200,
	}
}

type Dependencies struct {
	Circles   domain.CircleRepository
	Sessions  domain.GameSessionRepository
	Publisher domain.CircleEventPublisher
	Signaler  domain.Signaler
	Audio     domain.AudioTokenProvider
	Moderator Moderator
	Metrics   *metrics.Metrics
	Logger    logging.Logger
	Now       func() time.Time
}

type circleUseCase struct {
	circles   domain.CircleRepository
	sessions  domain.GameSessionRepository
	publisher domain.CircleEventPublisher
	signaler  domain.Signaler
	audio     domain.AudioTokenProvider
	moderator Moderator
	metrics   *metrics.Metrics
	logger    logging.Logger
	now       func() time.Time
	cfg       Config

	newJoinCode    func() (string, error)
	newChannelName func(time.Time) (string, error)
}

func NewCircleUseCase(deps Dependencies, cfg Config) CircleUseCase {
	return newCircleUseCase(deps, cfg)
}

func newCircleUseCase(deps Dependencies, cfg Config) *circleUseCase {
	defaults := DefaultConfig()
	if cfg.DefaultMaxParticipants <= 0 {
		cfg.DefaultMaxParticipants = defaults.DefaultMaxParticipants
	}
	if cfg.JoinCodeAttempts <= 0 {
		cfg.JoinCodeAttempts = defaults.JoinCodeAttempts
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaults.ListLimit
	}
	if cfg.PrivilegedListLimit <= 0 {
		cfg.PrivilegedListLimit = defaults.PrivilegedListLimit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}

	return &circleUseCase{
		circles:        deps.Circles,
		sessions:       deps.Sessions,
		publisher:      deps.Publisher,
		signaler:       deps.Signaler,
		audio:          deps.Audio,
		moderator:      deps.Moderator,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		now:            deps.Now,
		cfg:            cfg,
		newJoinCode:    domain.GenerateJoinCode,
		newChannelName: domain.GenerateChannelName,
	}
}

var (
	topicValidator = validate.Field("Topic",
		validate.Required(),
		validate.LengthBetween(domain.MinTopicLength, domain.MaxTopicLength),
		validate.Printable(),
	)
	descriptionValidator = validate.Field("Description",
		validate.Optional(validate.MaxLength(domain.MaxDescriptionLength), validate.Printable()),
	)
	flagReasonValidator = validate.Field("Reason",
		validate.Required(),
		validate.LengthBetween(3, 500),
	)
)

func (uc *circleUseCase) Create(ctx context.Context, p domain.Principal, in CreateInput) (*domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	in.Topic = strings.TrimSpace(in.Topic)
	in.Description = strings.TrimSpace(in.Description)
	if err := topicValidator(in.Topic); err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}
	if err := descriptionValidator(in.Description); err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}
	if err := domain.ValidateDuration(p.Role, in.Duration); err != nil {
		uc.metrics.CircleRejected("duration")
		return nil, err
	}

	if in.MaxParticipants == 0 {
		in.MaxParticipants = uc.cfg.DefaultMaxParticipants
	}
	if err := validate.IntBetween("Max participants", in.MaxParticipants, domain.MinParticipants, domain.MaxParticipantsLimit); err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}

	if in.GameType == "" {
		in.GameType = domain.GameNone
	}
	if !in.GameType.Valid() {
		return nil, domain.Validationf("Game type %q is not supported", in.GameType)
	}

	if in.AIModeration && uc.moderator != nil && uc.moderator.Contains(in.Topic, in.Description) {
		uc.metrics.CircleRejected("moderation")
		return nil, domain.Validationf("Topic or description contains inappropriate language")
	}

	quotaHolder := ""
	if !p.Role.Elevated() {
		open, err := uc.circles.HasOpenCircle(ctx, p.ID)
		if err != nil {
			uc.logger.Error(logging.Circle, logging.CreateCircle, "Failed to check open circles", logging.WithError(err, map[logging.ExtraKey]any{
				logging.UserID: p.ID,
			}))
			return nil, fmt.Errorf("failed to check open circles: %w", err)
		}
		if open {
			uc.metrics.CircleRejected("quota")
			return nil, domain.ErrCircleQuotaExceeded
		}
		quotaHolder = p.ID
	}

	now := uc.now()
	circle := &domain.Circle{
		ID:              uuid.NewString(),
		Topic:           in.Topic,
		Description:     in.Description,
		HostID:          p.ID,
		HostName:        p.PublicName(),
		Duration:        in.Duration,
		MaxParticipants: in.MaxParticipants,
		IsPrivate:       in.IsPrivate,
		AnonymousMode:   in.AnonymousMode,
		AIModeration:    in.AIModeration,
		GameType:        in.GameType,
		Status:          domain.CircleActive,
		StartedAt:       &now,
		Flags:           []domain.Flag{},
		CreatedAt:       now,
		QuotaHolder:     quotaHolder,
	}

	host := domain.Participant{UserID: p.ID, JoinedAt: now, DisplayName: p.PublicName()}
	if circle.AnonymousMode {
		host.DisplayName = domain.AnonymousName(1)
		circle.HostName = host.DisplayName
	}
	circle.Participants = []domain.Participant{host}
	circle.CurrentParticipants = 1

	if err := uc.insertWithUniqueCodes(ctx, circle); err != nil {
		if errors.Is(err, domain.ErrCircleQuotaExceeded) {
			uc.metrics.CircleRejected("quota")
			return nil, err
		}
		if errors.Is(err, domain.ErrJoinCodeExhausted) {
			uc.logger.Error(logging.Circle, logging.CreateCircle, "Join code attempts exhausted", map[logging.ExtraKey]any{
				logging.UserID: p.ID,
				logging.Count:  uc.cfg.JoinCodeAttempts,
			})
			return nil, err
		}
		uc.logger.Error(logging.Circle, logging.CreateCircle, "Failed to create circle", logging.WithError(err, map[logging.ExtraKey]any{
			logging.UserID: p.ID,
		}))
		return nil, fmt.Errorf("failed to create circle: %w", err)
	}

	uc.metrics.CircleEvent(string(domain.EventCircleCreated))
	uc.publish(ctx, domain.NewCircleCreatedLog(circle))
	uc.logger.Info(logging.Circle, logging.CreateCircle, "Circle created", map[logging.ExtraKey]any{
		logging.CircleID:    circle.ID,
		logging.UserID:      p.ID,
		logging.ChannelName: circle.ChannelName,
		logging.Duration:    circle.Duration,
	})

	return circle, nil
}

// insertWithUniqueCodes allocates a join code and channel name and stores the circle.
// The store's unique indexes are authoritative; the existence check only saves round trips.
func (uc *circleUseCase) insertWithUniqueCodes(ctx context.Context, circle *domain.Circle) error {
	for attempt := 0; attempt < uc.cfg.JoinCodeAttempts; attempt++ {
		code, err := uc.newJoinCode()
		if err != nil {
			return fmt.Errorf("failed to generate join code: %w", err)
		}

		exists, err := uc.circles.JoinCodeExists(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to check join code: %w", err)
		}
		if exists {
			uc.metrics.JoinCodeCollision()
			continue
		}

		if circle.ChannelName == "" {
			if circle.ChannelName, err = uc.newChannelName(circle.CreatedAt); err != nil {
				return fmt.Errorf("failed to generate channel name: %w", err)
			}
		}
		circle.JoinCode = code

		err = uc.circles.Create(ctx, circle)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrDuplicateJoinCode):
			uc.metrics.JoinCodeCollision()
		case errors.Is(err, domain.ErrDuplicateChannel):
			circle.ChannelName = ""
		default:
			return err
		}
	}

	circle.JoinCode = ""
	return domain.ErrJoinCodeExhausted
}

func (uc *circleUseCase) Get(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error) {
	circle, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !circle.VisibleTo(p) {
		return nil, domain.ErrCircleNotFound
	}
	return circle, nil
}

func (uc *circleUseCase) List(ctx context.Context, p domain.Principal, in ListInput) ([]domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	filter := domain.CircleFilter{
		Statuses: domain.OpenStatuses,
		ViewerID: p.ID,
		Limit:    uc.cfg.ListLimit,
	}
	if p.Role.Privileged() {
		filter.ViewerID = ""
		filter.Limit = uc.cfg.PrivilegedListLimit
		if len(in.Statuses) > 0 {
			filter.Statuses = in.Statuses
		}
	}

	circles, err := uc.circles.List(ctx, filter)
	if err != nil {
		uc.logger.Error(logging.Circle, logging.Lookup, "Failed to list circles", logging.WithError(err, nil))
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	return circles, nil
}

func (uc *circleUseCase) Join(ctx context.Context, p domain.Principal, id, joinCode string) (*domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	circle, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !circle.Status.Open() {
		return nil, domain.ErrCircleClosed
	}
	if circle.IsPrivate && !circle.IsMember(p.ID) && !codesMatch(circle.JoinCode, joinCode) {
		uc.metrics.CircleRejected("join_code")
		return nil, domain.ErrInvalidJoinCode
	}

	return uc.join(ctx, p, circle)
}

func (uc *circleUseCase) JoinByCode(ctx context.Context, p domain.Principal, joinCode string) (*domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	joinCode = strings.TrimSpace(joinCode)
	if !domain.IsJoinCode(joinCode) {
		return nil, domain.Validationf("Join code must be 6 digits")
	}

	circle, err := uc.circles.GetByJoinCode(ctx, joinCode)
	if err != nil {
		if errors.Is(err, domain.ErrCircleNotFound) {
			uc.metrics.CircleRejected("join_code")
			return nil, domain.ErrInvalidJoinCode
		}
		return nil, fmt.Errorf("failed to get circle by join code: %w", err)
	}
	if !circle.Status.Open() {
		return nil, domain.ErrCircleClosed
	}

	return uc.join(ctx, p, circle)
}

func (uc *circleUseCase) join(ctx context.Context, p domain.Principal, circle *domain.Circle) (*domain.Circle, error) {
	now := uc.now()
	updated, joined, err := uc.circles.AddParticipant(ctx, circle.ID, domain.Participant{
		UserID:      p.ID,
		JoinedAt:    now,
		DisplayName: p.PublicName(),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCircleFull):
			uc.metrics.CircleRejected("full")
			uc.publish(ctx, domain.NewCircleFullRejectionLog(circle.ID, p.ID, now))
			return nil, err
		case domain.IsKnown(err):
			return nil, err
		}
		uc.logger.Error(logging.Circle, logging.JoinCircle, "Failed to add participant", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: circle.ID,
			logging.UserID:   p.ID,
		}))
		return nil, fmt.Errorf("failed to join circle: %w", err)
	}

	if !joined {
		return updated, nil
	}

	participant := updated.FindParticipant(p.ID)
	displayName := p.DisplayName
	if participant != nil {
		displayName = participant.DisplayName
	}

	uc.metrics.CircleEvent(string(domain.EventParticipantJoined))
	uc.publish(ctx, domain.NewParticipantJoinedLog(updated.ID, p.ID, updated.CurrentParticipants, now))
	uc.signal(updated.ChannelName, domain.Envelope{
		Type: domain.SignalParticipantJoined,
		Payload: domain.ParticipantSignal{
			UserID:      p.ID,
			DisplayName: displayName,
			Count:       updated.CurrentParticipants,
		},
	})
	uc.logger.Info(logging.Circle, logging.JoinCircle, "Participant joined", map[logging.ExtraKey]any{
		logging.CircleID: updated.ID,
		logging.UserID:   p.ID,
		logging.Count:    updated.CurrentParticipants,
	})

	return updated, nil
}

func (uc *circleUseCase) Leave(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	circle, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !circle.IsParticipant(p.ID) {
		if !circle.VisibleTo(p) {
			return nil, domain.ErrCircleNotFound
		}
		return circle, nil
	}

	updated, err := uc.circles.RemoveParticipant(ctx, id, p.ID)
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		uc.logger.Error(logging.Circle, logging.LeaveCircle, "Failed to remove participant", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: id,
			logging.UserID:   p.ID,
		}))
		return nil, fmt.Errorf("failed to leave circle: %w", err)
	}

	now := uc.now()
	uc.metrics.CircleEvent(string(domain.EventParticipantLeft))
	uc.publish(ctx, domain.NewParticipantLeftLog(id, p.ID, updated.CurrentParticipants, now))
	uc.signal(updated.ChannelName, domain.Envelope{
		Type: domain.SignalParticipantLeft,
		Payload: domain.ParticipantSignal{
			UserID: p.ID,
			Count:  updated.CurrentParticipants,
		},
	})
	if !updated.IsMember(p.ID) && uc.signaler != nil {
		uc.signaler.Disconnect(updated.ChannelName, p.ID)
	}

	return updated, nil
}

// End closes the circle for good. Ending a circle that is already ended or cancelled
// returns it unchanged.
func (uc *circleUseCase) End(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error) {
	return uc.close(ctx, p, id, domain.CircleEnded, domain.EventCircleEnded)
}

func (uc *circleUseCase) Cancel(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error) {
	return uc.close(ctx, p, id, domain.CircleCancelled, domain.EventCircleCancelled)
}

func (uc *circleUseCase) close(ctx context.Context, p domain.Principal, id string, next domain.CircleStatus, event domain.CircleEventType) (*domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	circle, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !circle.CanManage(p) {
		if !circle.VisibleTo(p) {
			return nil, domain.ErrCircleNotFound
		}
		return nil, domain.ErrNotCircleHost
	}

	updated, changed, err := uc.circles.Transition(ctx, id, next, uc.now())
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		uc.logger.Error(logging.Circle, logging.EndCircle, "Failed to close circle", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: id,
			logging.UserID:   p.ID,
		}))
		return nil, fmt.Errorf("failed to close circle: %w", err)
	}
	if changed {
		uc.afterClose(ctx, updated, p.ID, event)
	}

	return updated, nil
}

// afterClose runs the side effects of a circle reaching a terminal status.
func (uc *circleUseCase) afterClose(ctx context.Context, circle *domain.Circle, actorID string, event domain.CircleEventType) {
	uc.metrics.CircleEvent(string(event))
	uc.publish(ctx, domain.NewCircleClosedLog(circle, actorID, event))
	uc.endOpenSession(ctx, circle, actorID)

	uc.signal(circle.ChannelName, domain.Envelope{
		Type: domain.SignalCircleEnded,
		Payload: domain.CircleEndedSignal{
			CircleID: circle.ID,
			Status:   circle.Status,
			EndedAt:  circle.EndedAt,
		},
	})
	if uc.signaler != nil {
		uc.signaler.Close(circle.ChannelName)
	}

	uc.logger.Info(logging.Circle, logging.EndCircle, "Circle closed", map[logging.ExtraKey]any{
		logging.CircleID: circle.ID,
		logging.UserID:   actorID,
		logging.EventType: string(event),
	})
}

func (uc *circleUseCase) endOpenSession(ctx context.Context, circle *domain.Circle, actorID string) {
	if uc.sessions == nil {
		return
	}

	session, err := uc.sessions.GetOpenByRoomID(ctx, circle.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			uc.logger.Warn(logging.Game, logging.SessionLifecycle, "Failed to look up open session", logging.WithError(err, map[logging.ExtraKey]any{
				logging.CircleID: circle.ID,
			}))
		}
		return
	}

	now := uc.now()
	results := map[string]any{"reason": "circle_closed"}
	ended, changed, err := uc.sessions.End(ctx, session.ID, now, results)
	if err != nil {
		uc.logger.Warn(logging.Game, logging.SessionLifecycle, "Failed to end session of closed circle", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID:  circle.ID,
			logging.SessionID: session.ID,
		}))
		return
	}
	if !changed {
		return
	}

	uc.metrics.GameEvent(string(ended.GameType), "ended")
	uc.publish(ctx, domain.NewGameEndedLog(ended, actorID, now))
	uc.signal(circle.ChannelName, domain.Envelope{
		Type:    domain.SignalGameEnded,
		Payload: domain.GameEndedSignal{SessionID: ended.ID, Results: ended.Results},
	})
}

// ExpireDue ends every active circle whose duration has elapsed. A failure on one circle is
// logged and the sweep moves on.
func (uc *circleUseCase) ExpireDue(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	active, err := uc.circles.ListByStatus(ctx, domain.CircleActive)
	if err != nil {
		uc.logger.Error(logging.Sweeper, logging.ExpireCircle, "Failed to list active circles", logging.WithError(err, nil))
		return result, fmt.Errorf("failed to list active circles: %w", err)
	}

	now := uc.now()
	for i := range active {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		circle := &active[i]
		result.Checked++
		if !circle.Expired(now) {
			continue
		}

		updated, changed, err := uc.circles.Transition(ctx, circle.ID, domain.CircleEnded, now)
		if err != nil {
			result.Failed++
			uc.logger.Error(logging.Sweeper, logging.ExpireCircle, "Failed to expire circle", logging.WithError(err, map[logging.ExtraKey]any{
				logging.CircleID: circle.ID,
			}))
			continue
		}
		if !changed {
			continue
		}

		result.Expired++
		uc.afterClose(ctx, updated, "", domain.EventCircleExpired)
	}

	return result, nil
}

func (uc *circleUseCase) Flag(ctx context.Context, p domain.Principal, id, reason string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	if err := flagReasonValidator(reason); err != nil {
		return domain.Validationf("%s", err.Error())
	}

	circle, err := uc.memberCircle(ctx, p, id)
	if err != nil {
		return err
	}

	if err := uc.circles.AppendFlag(ctx, circle.ID, domain.Flag{
		UserID:    p.ID,
		Reason:    reason,
		Timestamp: uc.now(),
	}); err != nil {
		if domain.IsKnown(err) {
			return err
		}
		uc.logger.Error(logging.Circle, logging.FlagCircle, "Failed to flag circle", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: id,
		}))
		return fmt.Errorf("failed to flag circle: %w", err)
	}

	uc.logger.Warn(logging.Circle, logging.FlagCircle, "Circle flagged", map[logging.ExtraKey]any{
		logging.CircleID: id,
		logging.UserID:   p.ID,
	})
	return nil
}

func (uc *circleUseCase) IssueAudioToken(ctx context.Context, p domain.Principal, id string, channelType domain.AudioChannelType) (*domain.AudioCredentials, error) {
	if channelType == "" {
		channelType = domain.AudioRTC
	}
	if channelType != domain.AudioRTC && channelType != domain.AudioRTM {
		return nil, domain.Validationf("Channel type must be rtc or rtm")
	}

	circle, err := uc.AuthorizeSignal(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if uc.audio == nil {
		return nil, domain.ErrAudioUnavailable
	}

	creds, err := uc.audio.Issue(circle.ChannelName, channelType, p)
	if err != nil {
		uc.logger.Error(logging.Circle, logging.AudioToken, "Failed to issue audio token", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID:    id,
			logging.ChannelName: circle.ChannelName,
		}))
		return nil, domain.ErrAudioUnavailable
	}
	return creds, nil
}

// AuthorizeSignal returns the circle when p may use its realtime channels.
func (uc *circleUseCase) AuthorizeSignal(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error) {
	circle, err := uc.memberCircle(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !circle.Status.Open() {
		return nil, domain.ErrCircleClosed
	}
	return circle, nil
}

// memberCircle loads the circle and checks that p is its host or a participant.
func (uc *circleUseCase) memberCircle(ctx context.Context, p domain.Principal, id string) (*domain.Circle, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	circle, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !circle.IsMember(p.ID) {
		if !circle.VisibleTo(p) {
			return nil, domain.ErrCircleNotFound
		}
		return nil, domain.ErrNotCircleMember
	}
	return circle, nil
}

func (uc *circleUseCase) load(ctx context.Context, id string) (*domain.Circle, error) {
	circle, err := uc.circles.GetByID(ctx, id)
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		uc.logger.Error(logging.Circle, logging.Lookup, "Failed to get circle", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: id,
		}))
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	return circle, nil
}

// publish hands the event to the broker. Lifecycle changes are already committed, so a
// publish failure is logged and swallowed.
func (uc *circleUseCase) publish(ctx context.Context, log *domain.CircleAuditLog) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, log); err != nil {
		uc.logger.Warn(logging.RabbitMQ, logging.Publish, "Failed to publish circle event", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID:  log.CircleID,
			logging.EventType: string(log.EventType),
		}))
	}
}

func (uc *circleUseCase) signal(channelName string, env domain.Envelope) {
	if uc.signaler == nil || channelName == "" {
		return
	}
	uc.signaler.Publish(channelName, env)
}

func requirePrincipal(p domain.Principal) error {
	if p.ID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

func codesMatch(expected, given string) bool {
	given = strings.TrimSpace(given)
	if given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
