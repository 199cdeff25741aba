package domain

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	joinCodeLength = 6
	joinCodeDigits = "0123456789"

	channelSuffixLength = 9
	channelSuffixChars  = "abcdefghijklmnopqrstuvwxyz0123456789"

	MinTopicLength       = 3
	MaxTopicLength       = 100
	MaxDescriptionLength = 500

	MinParticipants        = 3
	MaxParticipantsLimit   = 30
	DefaultMaxParticipants = 15

	RegularDuration       = 20
	MinElevatedDuration   = 5
	MaxLeaderDuration     = 45
	MaxPrivilegedDuration = 120
)

type CircleStatus string

const (
	CircleScheduled CircleStatus = "scheduled"
	CircleActive    CircleStatus = "active"
	CircleEnded     CircleStatus = "ended"
	CircleCancelled CircleStatus = "cancelled"
)

// OpenStatuses are the statuses a circle can be joined in.
var OpenStatuses = []CircleStatus{CircleScheduled, CircleActive}

func (s CircleStatus) Open() bool {
	return s == CircleScheduled || s == CircleActive
}

func (s CircleStatus) Terminal() bool {
	return s == CircleEnded || s == CircleCancelled
}

// CanTransition reports whether a circle may move from s to next.
func (s CircleStatus) CanTransition(next CircleStatus) bool {
	switch s {
	case CircleScheduled:
		return next == CircleActive || next == CircleEnded || next == CircleCancelled
	case CircleActive:
		return next == CircleEnded || next == CircleCancelled
	}
	return false
}

type GameType string

const (
	GameNone           GameType = "none"
	GameImposter       GameType = "imposter"
	GameWouldYouRather GameType = "would_you_rather"
	GameTwoTruths      GameType = "two_truths"
)

func (g GameType) Valid() bool {
	switch g {
	case GameNone, GameImposter, GameWouldYouRather, GameTwoTruths:
		return true
	}
	return false
}

type Participant struct {
	UserID      string    `bson:"user_id" json:"userId"`
	JoinedAt    time.Time `bson:"joined_at" json:"joinedAt"`
	IsMuted     bool      `bson:"is_muted" json:"isMuted"`
	DisplayName string    `bson:"display_name" json:"displayName"`
}

type Flag struct {
	UserID    string    `bson:"user_id" json:"userId"`
	Reason    string    `bson:"reason" json:"reason"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Circle is a time-boxed support room.
type Circle struct {
	ID                  string        `bson:"_id" json:"id"`
	Topic               string        `bson:"topic" json:"topic"`
	Description         string        `bson:"description,omitempty" json:"description,omitempty"`
	HostID              string        `bson:"host_id" json:"hostId"`
	HostName            string        `bson:"host_name" json:"hostName"`
	ChannelName         string        `bson:"channel_name" json:"channelName"`
	JoinCode            string        `bson:"join_code" json:"joinCode"`
	Duration            int           `bson:"duration" json:"duration"`
	MaxParticipants     int           `bson:"max_participants" json:"maxParticipants"`
	CurrentParticipants int           `bson:"current_participants" json:"currentParticipants"`
	IsPrivate           bool          `bson:"is_private" json:"isPrivate"`
	AnonymousMode       bool          `bson:"anonymous_mode" json:"anonymousMode"`
	AIModeration        bool          `bson:"ai_moderation" json:"aiModeration"`
	GameType            GameType      `bson:"game_type" json:"gameType"`
	Status              CircleStatus  `bson:"status" json:"status"`
	ScheduledStart      *time.Time    `bson:"scheduled_start,omitempty" json:"scheduledStart,omitempty"`
	StartedAt           *time.Time    `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	EndedAt             *time.Time    `bson:"ended_at,omitempty" json:"endedAt,omitempty"`
	Participants        []Participant `bson:"participants" json:"participants"`
	Flags               []Flag        `bson:"flags" json:"-"`
	CreatedAt           time.Time     `bson:"created_at" json:"createdAt"`

	// QuotaHolder is the host id while a regular user's circle is open, empty otherwise.
	// A sparse unique index on it enforces one open circle per regular user.
	QuotaHolder string `bson:"quota_holder,omitempty" json:"-"`
}

type CircleFilter struct {
	Statuses []CircleStatus
	// ViewerID restricts private circles to ones the viewer hosts or joined. Empty means no restriction.
	ViewerID string
	Limit    int
}

type CircleRepository interface {
	Create(ctx context.Context, circle *Circle) error
	GetByID(ctx context.Context, id string) (*Circle, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*Circle, error)
	JoinCodeExists(ctx context.Context, joinCode string) (bool, error)
	HasOpenCircle(ctx context.Context, hostID string) (bool, error)
	List(ctx context.Context, filter CircleFilter) ([]Circle, error)
	ListByStatus(ctx context.Context, status CircleStatus) ([]Circle, error)
	// AddParticipant appends p only if the circle is open, p is not already present and there is room,
	// as one atomic step. joined is false when p was already a participant.
	AddParticipant(ctx context.Context, id string, p Participant) (circle *Circle, joined bool, err error)
	RemoveParticipant(ctx context.Context, id, userID string) (*Circle, error)
	// Transition moves an open circle to next. changed is false when the circle was already terminal.
	Transition(ctx context.Context, id string, next CircleStatus, at time.Time) (circle *Circle, changed bool, err error)
	AppendFlag(ctx context.Context, id string, flag Flag) error
}

// DurationBounds returns the inclusive duration range in minutes a role may request.
func DurationBounds(role Role) (lo, hi int) {
	switch {
	case role.Privileged():
		return MinElevatedDuration, MaxPrivilegedDuration
	case role.Elevated():
		return MinElevatedDuration, MaxLeaderDuration
	default:
		return RegularDuration, RegularDuration
	}
}

func ValidateDuration(role Role, duration int) error {
	lo, hi := DurationBounds(role)
	if duration >= lo && duration <= hi {
		return nil
	}
	if lo == hi {
		return Validationf("Duration must be %d minutes for regular users", lo)
	}
	return Validationf("Duration must be between %d and %d minutes", lo, hi)
}

func (c *Circle) IsHost(userID string) bool {
	return userID != "" && c.HostID == userID
}

func (c *Circle) IsParticipant(userID string) bool {
	return c.FindParticipant(userID) != nil
}

func (c *Circle) FindParticipant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// IsMember is true for the host and every current participant.
func (c *Circle) IsMember(userID string) bool {
	return c.IsHost(userID) || c.IsParticipant(userID)
}

// CanManage reports whether p may end or cancel the circle.
func (c *Circle) CanManage(p Principal) bool {
	return c.IsHost(p.ID) || p.Role.Privileged()
}

// VisibleTo applies the listing policy to a single circle.
func (c *Circle) VisibleTo(p Principal) bool {
	return !c.IsPrivate || p.Role.Privileged() || c.IsMember(p.ID)
}

// Expired reports whether an active circle has used up its duration at now.
func (c *Circle) Expired(now time.Time) bool {
	if c.Status != CircleActive || c.StartedAt == nil {
		return false
	}
	elapsed := now.Sub(*c.StartedAt).Milliseconds() / 60000
	return elapsed >= int64(c.Duration)
}

// AddParticipant applies the join rules to an in-memory circle.
func (c *Circle) AddParticipant(p Participant) (bool, error) {
	if !c.Status.Open() {
		return false, ErrCircleClosed
	}
	if c.IsParticipant(p.UserID) {
		return false, nil
	}
	if c.CurrentParticipants >= c.MaxParticipants {
		return false, ErrCircleFull
	}
	if c.AnonymousMode {
		p.DisplayName = AnonymousName(c.CurrentParticipants + 1)
	}
	c.Participants = append(c.Participants, p)
	c.CurrentParticipants = len(c.Participants)
	return true, nil
}

// RemoveParticipant drops userID if present and keeps the counter in sync.
func (c *Circle) RemoveParticipant(userID string) bool {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			c.CurrentParticipants = len(c.Participants)
			return true
		}
	}
	return false
}

// Transition applies a status change. It returns false when the circle is already terminal.
func (c *Circle) Transition(next CircleStatus, at time.Time) (bool, error) {
	if c.Status.Terminal() {
		return false, nil
	}
	if !c.Status.CanTransition(next) {
		return false, Conflictf("Circle cannot move from %s to %s", c.Status, next)
	}
	c.Status = next
	switch next {
	case CircleActive:
		c.StartedAt = &at
	case CircleEnded, CircleCancelled:
		c.EndedAt = &at
		c.QuotaHolder = ""
	}
	return true, nil
}

func AnonymousName(n int) string {
	return fmt.Sprintf("User %d", n)
}

// GenerateJoinCode returns a random 6-digit numeric code.
func GenerateJoinCode() (string, error) {
	return randomString(joinCodeLength, joinCodeDigits)
}

// GenerateChannelName returns a fresh channel identifier of the form circle-<unixms>-<random>.
func GenerateChannelName(now time.Time) (string, error) {
	suffix, err := randomString(channelSuffixLength, channelSuffixChars)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("circle-%d-%s", now.UnixMilli(), suffix), nil
}

// IsJoinCode reports whether s has the shape of a join code.
func IsJoinCode(s string) bool {
	if len(s) != joinCodeLength {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func randomString(length int, charset string) (string, error) {
	var sb strings.Builder
	sb.Grow(length)

	n := big.NewInt(int64(len(charset)))
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		sb.WriteByte(charset[idx.Int64()])
	}

	return sb.String(), nil
}

// Clone returns a deep copy safe to hand across goroutines.
func (c *Circle) Clone() *Circle {
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.Flags = append([]Flag(nil), c.Flags...)
	cp.ScheduledStart = cloneTime(c.ScheduledStart)
	cp.StartedAt = cloneTime(c.StartedAt)
	cp.EndedAt = cloneTime(c.EndedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
