package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/haven/internal/application/games"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/repository"
)

type directMessage struct {
	userID string
	env    domain.Envelope
}

type recordingSignaler struct {
	mu     sync.Mutex
	sent   []domain.Envelope
	direct []directMessage
}

func (s *recordingSignaler) Publish(channelName string, env domain.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
}

func (s *recordingSignaler) Direct(channelName, userID string, env domain.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = append(s.direct, directMessage{userID: userID, env: env})
	return true
}

func (s *recordingSignaler) Disconnect(channelName, userID string) {}

func (s *recordingSignaler) Close(channelName string) {}

func (s *recordingSignaler) last() domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return domain.Envelope{}
	}
	return s.sent[len(s.sent)-1]
}

type harness struct {
	uc       *gameUseCase
	circles  domain.CircleRepository
	sessions domain.GameSessionRepository
	signaler *recordingSignaler
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		circles:  repository.NewCircleRepository(),
		sessions: repository.NewGameSessionRepository(),
		signaler: &recordingSignaler{},
		now:      time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
	}
	h.uc = newGameUseCase(Dependencies{
		Circles:  h.circles,
		Sessions: h.sessions,
		Signaler: h.signaler,
		Rules:    games.NewRegistry(games.NewImposter(2 * time.Minute)),
		Now:      func() time.Time { return h.now },
	})
	return h
}

func player(id string) domain.Principal {
	return domain.Principal{ID: id, Role: domain.RoleUser, DisplayName: id}
}

// seedCircle stores an open circle hosted by "host" with the given extra participants.
func seedCircle(t *testing.T, h *harness, gameType domain.GameType, participants ...string) *domain.Circle {
	t.Helper()

	c := &domain.Circle{
		ID:              "circle-1",
		Topic:           "Game night",
		HostID:          "host",
		ChannelName:     "circle-1-chan",
		JoinCode:        "123456",
		Duration:        20,
		MaxParticipants: 10,
		GameType:        gameType,
		Status:          domain.CircleActive,
		StartedAt:       &h.now,
		CreatedAt:       h.now,
	}
	for _, id := range append([]string{"host"}, participants...) {
		c.Participants = append(c.Participants, domain.Participant{UserID: id, JoinedAt: h.now})
	}
	c.CurrentParticipants = len(c.Participants)

	if err := h.circles.Create(context.Background(), c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

func mustSession(t *testing.T, h *harness, c *domain.Circle) *domain.GameSession {
	t.Helper()
	s, err := h.uc.GetOrCreate(context.Background(), player("host"), c.ID, c.GameType)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	return s
}

func TestGetOrCreate_ReturnsSameOpenSession(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")

	first := mustSession(t, h, c)
	second, err := h.uc.GetOrCreate(context.Background(), player("a"), c.ID, domain.GameImposter)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("session ids differ: %s vs %s", first.ID, second.ID)
	}

	if first.Status != domain.SessionWaiting || first.Round != 1 || len(first.Players) != 4 {
		t.Fatalf("new session = %+v", first)
	}
	for _, p := range first.Players {
		if p.Role != nil || p.Score != 0 || !p.IsAlive {
			t.Fatalf("player not seeded clean: %+v", p)
		}
	}
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")

	ids := make(chan string, 4)
	var wg sync.WaitGroup
	for _, id := range []string{"host", "a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s, err := h.uc.GetOrCreate(context.Background(), player(id), c.ID, domain.GameImposter)
			if err != nil {
				t.Errorf("GetOrCreate(%s) error = %v", id, err)
				return
			}
			ids <- s.ID
		}(id)
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("got sessions %s and %s, want one", first, id)
		}
	}
}

func TestGetOrCreate_Preconditions(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a")

	if _, err := h.uc.GetOrCreate(context.Background(), player("outsider"), c.ID, domain.GameImposter); !errors.Is(err, domain.ErrNotCircleMember) {
		t.Fatalf("outsider error = %v, want not member", err)
	}
	if _, err := h.uc.GetOrCreate(context.Background(), player("a"), c.ID, domain.GameTwoTruths); !errors.Is(err, domain.ErrGameTypeMismatch) {
		t.Fatalf("mismatch error = %v, want game type mismatch", err)
	}
	if _, err := h.uc.GetOrCreate(context.Background(), player("a"), "missing", domain.GameImposter); !errors.Is(err, domain.ErrCircleNotFound) {
		t.Fatalf("missing circle error = %v", err)
	}
}

func TestGetOrCreate_NewSessionAfterEnd(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")

	first := mustSession(t, h, c)
	if _, err := h.uc.End(context.Background(), player("host"), first.ID, nil); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	second := mustSession(t, h, c)
	if second.ID == first.ID {
		t.Fatal("play again should create a fresh session")
	}
}

func TestStart(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)

	if _, err := h.uc.Start(context.Background(), player("a"), s.ID, nil); !errors.Is(err, domain.ErrNotCircleHost) {
		t.Fatalf("Start() by player error = %v", err)
	}
	if _, err := h.uc.Start(context.Background(), player("host"), s.ID, map[string]any{"$set": 1}); !errors.Is(err, domain.ErrInvalidGameDataKey) {
		t.Fatalf("Start() bad key error = %v", err)
	}

	started, err := h.uc.Start(context.Background(), player("host"), s.ID, map[string]any{"word": "apple"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != domain.SessionActive || started.Phase != domain.PhaseSetup || started.Round != 1 {
		t.Fatalf("started = %+v", started)
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(h.now) || started.GameData["word"] != "apple" {
		t.Fatalf("started = %+v", started)
	}
	if h.signaler.last().Type != domain.SignalGameStarted {
		t.Fatalf("last signal = %q", h.signaler.last().Type)
	}

	if _, err := h.uc.Start(context.Background(), player("host"), s.ID, nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second Start() error = %v, want invalid transition", err)
	}
}

func TestStart_RequiresMinimumPlayers(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a")
	s := mustSession(t, h, c)

	if _, err := h.uc.Start(context.Background(), player("host"), s.ID, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Start() error = %v, want too few players", err)
	}
}

func TestImposterRound(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")
	ctx := context.Background()
	host := player("host")

	s := mustSession(t, h, c)
	if _, err := h.uc.Start(ctx, host, s.ID, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	roles := map[string]string{"host": "crewmate", "a": "crewmate", "b": "imposter", "c": "crewmate"}
	if _, err := h.uc.AssignRoles(ctx, host, s.ID, roles); err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}
	if len(h.signaler.direct) != 4 {
		t.Fatalf("direct role messages = %d, want 4", len(h.signaler.direct))
	}
	for _, msg := range h.signaler.direct {
		if got := msg.env.Payload.(domain.RoleSignal).Role; got != roles[msg.userID] {
			t.Fatalf("%s got role %q, want %q", msg.userID, got, roles[msg.userID])
		}
	}

	for _, voter := range []string{"host", "a", "b", "c"} {
		if _, err := h.uc.Vote(ctx, player(voter), s.ID, "b"); err != nil {
			t.Fatalf("Vote(%s) error = %v", voter, err)
		}
	}

	ended, err := h.uc.Resolve(ctx, host, s.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ended.Status != domain.SessionEnded || ended.EndedAt == nil {
		t.Fatalf("session not ended: %+v", ended)
	}
	if ended.Results["winner"] != games.WinnerCrewmates || ended.Results["votedOut"] != "b" || ended.Results["imposterId"] != "b" {
		t.Fatalf("results = %v", ended.Results)
	}
	if h.signaler.last().Type != domain.SignalGameEnded {
		t.Fatalf("last signal = %q", h.signaler.last().Type)
	}
}

func TestImposterRound_WrongTargetAndHostSuppliedResults(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")
	ctx := context.Background()
	host := player("host")

	s := mustSession(t, h, c)
	if _, err := h.uc.AssignRoles(ctx, host, s.ID, map[string]string{"host": "crewmate", "a": "imposter", "b": "crewmate", "c": "crewmate"}); err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}
	for _, voter := range []string{"host", "a", "b", "c"} {
		if _, err := h.uc.Vote(ctx, player(voter), s.ID, "c"); err != nil {
			t.Fatalf("Vote(%s) error = %v", voter, err)
		}
	}

	session, err := h.sessions.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	tally := games.Tally(session.Votes)
	results := map[string]any{"votedOut": tally.Leader, "winner": "imposter"}

	ended, err := h.uc.End(ctx, host, s.ID, results)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Results["votedOut"] != "c" || ended.Results["winner"] != "imposter" {
		t.Fatalf("results = %v", ended.Results)
	}

	again, err := h.uc.End(ctx, host, s.ID, map[string]any{"winner": "crewmates"})
	if err != nil {
		t.Fatalf("second End() error = %v", err)
	}
	if again.Results["winner"] != "imposter" || !again.EndedAt.Equal(*ended.EndedAt) {
		t.Fatalf("second End() changed the session: %+v", again)
	}
}

func TestAssignRoles_Rules(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)
	host := player("host")

	if _, err := h.uc.AssignRoles(context.Background(), player("a"), s.ID, map[string]string{"a": "imposter"}); !errors.Is(err, domain.ErrNotCircleHost) {
		t.Fatalf("non-host error = %v", err)
	}
	if _, err := h.uc.AssignRoles(context.Background(), host, s.ID, map[string]string{"a": "imposter", "b": "imposter"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("two imposters error = %v", err)
	}

	if _, err := h.uc.AssignRoles(context.Background(), host, s.ID, map[string]string{"a": "imposter"}); err != nil {
		t.Fatalf("partial assignment error = %v", err)
	}
	got, err := h.uc.AssignRoles(context.Background(), host, s.ID, map[string]string{"b": "crewmate"})
	if err != nil {
		t.Fatalf("second partial assignment error = %v", err)
	}
	if r := got.FindPlayer("a").Role; r == nil || *r != "imposter" {
		t.Fatalf("a's role = %v, want kept imposter", r)
	}
	if got.FindPlayer("host").Role != nil {
		t.Fatal("unnamed player should keep a nil role")
	}
}

func TestAssignRoles_GenericGamesAcceptAnyLabels(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameWouldYouRather, "a")
	s := mustSession(t, h, c)

	got, err := h.uc.AssignRoles(context.Background(), player("host"), s.ID, map[string]string{"a": "asker", "host": "asker"})
	if err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}
	if r := got.FindPlayer("a").Role; r == nil || *r != "asker" {
		t.Fatalf("role = %v", r)
	}
}

func TestAssignRandomRoles(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")
	s := mustSession(t, h, c)

	got, err := h.uc.AssignRandomRoles(context.Background(), player("host"), s.ID)
	if err != nil {
		t.Fatalf("AssignRandomRoles() error = %v", err)
	}
	imposters := 0
	for _, p := range got.Players {
		if p.Role == nil {
			t.Fatalf("%s has no role", p.UserID)
		}
		if *p.Role == games.RoleImposter {
			imposters++
		}
	}
	if imposters != 1 {
		t.Fatalf("imposters = %d, want 1", imposters)
	}
}

func TestVote_LatestWins(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)

	if _, err := h.uc.Vote(context.Background(), player("outsider"), s.ID, "a"); !errors.Is(err, domain.ErrNotPlayer) {
		t.Fatalf("outsider Vote() error = %v", err)
	}
	if _, err := h.uc.Vote(context.Background(), player("a"), s.ID, " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank Vote() error = %v", err)
	}

	if _, err := h.uc.Vote(context.Background(), player("a"), s.ID, "b"); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	got, err := h.uc.Vote(context.Background(), player("a"), s.ID, "host")
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if len(got.Votes) != 1 || got.Votes["a"] != "host" {
		t.Fatalf("votes = %v", got.Votes)
	}
}

func TestUpdatePhase(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)
	host := player("host")

	if _, err := h.uc.UpdatePhase(context.Background(), host, s.ID, "lobby", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown phase error = %v", err)
	}

	got, err := h.uc.UpdatePhase(context.Background(), host, s.ID, "tasks", map[string]any{"taskCount": 3})
	if err != nil {
		t.Fatalf("UpdatePhase() error = %v", err)
	}
	got, err = h.uc.UpdatePhase(context.Background(), host, s.ID, "discussion", map[string]any{"topic": "who"})
	if err != nil {
		t.Fatalf("UpdatePhase() error = %v", err)
	}

	if got.Phase != "discussion" {
		t.Fatalf("Phase = %q", got.Phase)
	}
	if got.GameData["taskCount"] != 3 || got.GameData["topic"] != "who" {
		t.Fatalf("game data not merged: %v", got.GameData)
	}
	if got.GameData["discussionEndsAt"] != "2025-03-01T18:02:00Z" {
		t.Fatalf("discussionEndsAt = %v", got.GameData["discussionEndsAt"])
	}
}

func TestUpdatePhase_FreeFormForGenericGames(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameTwoTruths, "a")
	s := mustSession(t, h, c)

	got, err := h.uc.UpdatePhase(context.Background(), player("host"), s.ID, "guessing", nil)
	if err != nil {
		t.Fatalf("UpdatePhase() error = %v", err)
	}
	if got.Phase != "guessing" {
		t.Fatalf("Phase = %q", got.Phase)
	}
}

func TestPauseResumeAndNewRound(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)
	host := player("host")
	ctx := context.Background()

	if _, err := h.uc.Pause(ctx, host, s.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Pause() while waiting error = %v", err)
	}
	if _, err := h.uc.Start(ctx, host, s.ID, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := h.uc.AssignRoles(ctx, host, s.ID, map[string]string{"a": "imposter"}); err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}
	if _, err := h.uc.Vote(ctx, player("b"), s.ID, "a"); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}

	paused, err := h.uc.Pause(ctx, host, s.ID)
	if err != nil || paused.Status != domain.SessionPaused {
		t.Fatalf("Pause() = %v, %v", paused, err)
	}
	resumed, err := h.uc.Resume(ctx, host, s.ID)
	if err != nil || resumed.Status != domain.SessionActive {
		t.Fatalf("Resume() = %v, %v", resumed, err)
	}

	next, err := h.uc.NewRound(ctx, host, s.ID, nil)
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	if next.Round != 2 || next.Phase != domain.PhaseSetup || len(next.Votes) != 0 || next.FindPlayer("a").Role != nil {
		t.Fatalf("new round = %+v", next)
	}
}

func TestGet_RedactsOtherRoles(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)

	if _, err := h.uc.AssignRoles(context.Background(), player("host"), s.ID, map[string]string{"a": "imposter", "b": "crewmate"}); err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}

	got, err := h.uc.Get(context.Background(), player("b"), s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.FindPlayer("a").Role != nil {
		t.Fatal("b must not see a's role")
	}
	if r := got.FindPlayer("b").Role; r == nil || *r != "crewmate" {
		t.Fatalf("b's own role = %v", r)
	}

	hostView, err := h.uc.Get(context.Background(), player("host"), s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hostView.FindPlayer("a").Role == nil {
		t.Fatal("host should see every role")
	}

	if _, err := h.uc.Get(context.Background(), player("outsider"), s.ID); !errors.Is(err, domain.ErrNotCircleMember) {
		t.Fatalf("outsider Get() error = %v", err)
	}
}

func TestResolve_TieMeansImposterWins(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")
	s := mustSession(t, h, c)
	ctx := context.Background()

	if _, err := h.uc.AssignRoles(ctx, player("host"), s.ID, map[string]string{"a": "imposter"}); err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}
	votes := map[string]string{"host": "a", "a": "b", "b": "a", "c": "b"}
	for voter, target := range votes {
		if _, err := h.uc.Vote(ctx, player(voter), s.ID, target); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}
	}

	ended, err := h.uc.Resolve(ctx, player("host"), s.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ended.Results["winner"] != games.WinnerImposter || ended.Results["resolved"] != false {
		t.Fatalf("results = %v", ended.Results)
	}
	if _, ok := ended.Results["votedOut"]; ok {
		t.Fatal("a tie must not vote anyone out")
	}

	if _, err := h.uc.Resolve(ctx, player("host"), s.ID); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("Resolve() after end error = %v", err)
	}
}

func TestResolve_GenericGame(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameWouldYouRather, "a", "b")
	s := mustSession(t, h, c)
	ctx := context.Background()

	for _, voter := range []string{"a", "b"} {
		if _, err := h.uc.Vote(ctx, player(voter), s.ID, "host"); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}
	}

	ended, err := h.uc.Resolve(ctx, player("host"), s.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ended.Results["leader"] != "host" {
		t.Fatalf("results = %v", ended.Results)
	}
}

func TestMutationsAfterEnd(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	s := mustSession(t, h, c)
	ctx := context.Background()

	if _, err := h.uc.End(ctx, player("host"), s.ID, nil); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, err := h.uc.Vote(ctx, player("a"), s.ID, "b"); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("Vote() after end error = %v", err)
	}
	if _, err := h.uc.UpdatePhase(ctx, player("host"), s.ID, "voting", nil); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("UpdatePhase() after end error = %v", err)
	}
	if _, err := h.uc.AssignRoles(ctx, player("host"), s.ID, map[string]string{"a": "crewmate"}); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("AssignRoles() after end error = %v", err)
	}
}

// closingSessions ends the circle right before a session is created, as a concurrent End would.
type closingSessions struct {
	domain.GameSessionRepository
	circles domain.CircleRepository
	at      time.Time
}

func (s *closingSessions) FindOrCreateOpen(ctx context.Context, session *domain.GameSession) (*domain.GameSession, bool, error) {
	if _, _, err := s.circles.Transition(ctx, session.RoomID, domain.CircleEnded, s.at); err != nil {
		return nil, false, err
	}
	return s.GameSessionRepository.FindOrCreateOpen(ctx, session)
}

func TestGetOrCreate_CircleEndsDuringCreate(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b")
	h.uc.sessions = &closingSessions{GameSessionRepository: h.sessions, circles: h.circles, at: h.now}

	if _, err := h.uc.GetOrCreate(context.Background(), player("host"), c.ID, domain.GameImposter); !errors.Is(err, domain.ErrCircleClosed) {
		t.Fatalf("GetOrCreate() error = %v, want circle closed", err)
	}
	if _, err := h.sessions.GetOpenByRoomID(context.Background(), c.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("GetOpenByRoomID() error = %v, want no open session", err)
	}
}

func TestMutationsOnClosedCircle(t *testing.T) {
	h := newHarness(t)
	c := seedCircle(t, h, domain.GameImposter, "a", "b", "c")
	s := mustSession(t, h, c)
	ctx := context.Background()

	if _, _, err := h.circles.Transition(ctx, c.ID, domain.CircleEnded, h.now); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	if _, err := h.uc.Start(ctx, player("host"), s.ID, nil); !errors.Is(err, domain.ErrCircleClosed) {
		t.Fatalf("Start() error = %v, want circle closed", err)
	}
	if _, err := h.uc.Vote(ctx, player("a"), s.ID, "b"); !errors.Is(err, domain.ErrCircleClosed) {
		t.Fatalf("Vote() error = %v, want circle closed", err)
	}
	if _, err := h.uc.UpdatePhase(ctx, player("host"), s.ID, "voting", nil); !errors.Is(err, domain.ErrCircleClosed) {
		t.Fatalf("UpdatePhase() error = %v, want circle closed", err)
	}
	if _, err := h.uc.NewRound(ctx, player("host"), s.ID, nil); !errors.Is(err, domain.ErrCircleClosed) {
		t.Fatalf("NewRound() error = %v, want circle closed", err)
	}

	// The host can still close out the session.
	ended, err := h.uc.End(ctx, player("host"), s.ID, nil)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != domain.SessionEnded {
		t.Fatalf("status = %s, want ended", ended.Status)
	}
}
