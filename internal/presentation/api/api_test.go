package api

import (
	"bytes"
	encjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hilthontt/haven/internal/application/games"
	"github.com/hilthontt/haven/internal/application/usecases/circle"
	"github.com/hilthontt/haven/internal/application/usecases/game"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/auth"
	"github.com/hilthontt/haven/internal/infrastructure/configs"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/haven/internal/infrastructure/repository"
	"github.com/hilthontt/haven/internal/infrastructure/ws"
	circlesHandler "github.com/hilthontt/haven/internal/presentation/handler/circles"
	gamesHandler "github.com/hilthontt/haven/internal/presentation/handler/games"
	healthHandler "github.com/hilthontt/haven/internal/presentation/handler/health"
	signalHandler "github.com/hilthontt/haven/internal/presentation/handler/signal"
)

type testServer struct {
	handler http.Handler
	tokens  *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logging.NewNopLogger()
	circles := repository.NewCircleRepository()
	sessions := repository.NewGameSessionRepository()
	rl := ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1000, MaxBurst: 1000})
	core := ws.NewCore(rl, nil, logger)

	circleUseCase := circle.NewCircleUseCase(circle.Dependencies{
		Circles:  circles,
		Sessions: sessions,
		Signaler: core,
		Logger:   logger,
	}, circle.DefaultConfig())
	gameUseCase := game.NewGameUseCase(game.Dependencies{
		Circles:  circles,
		Sessions: sessions,
		Signaler: core,
		Rules:    games.NewRegistry(games.NewImposter(time.Minute)),
		Logger:   logger,
	})

	joinLimiter := ratelimiter.NewFixedWindowRateLimiter(20, time.Minute)
	t.Cleanup(joinLimiter.Close)

	tokens := auth.NewJWTManager("test-secret", "haven", time.Hour)
	app := NewApplication(
		configs.Config{},
		circlesHandler.NewHandler(circleUseCase, joinLimiter, logger),
		gamesHandler.NewHandler(gameUseCase, logger),
		signalHandler.NewHandler(circleUseCase, core, nil, logger),
		healthHandler.NewHandler(nil),
		tokens,
		logger,
		rl,
		nil,
	)

	return &testServer{handler: app.Mount(), tokens: tokens}
}

func (s *testServer) token(t *testing.T, id string) string {
	t.Helper()
	token, err := s.tokens.Generate(domain.Principal{ID: id, Role: domain.RoleUser, DisplayName: "Name " + id})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := encjson.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := encjson.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodGet, "/api/circles", "", nil), http.StatusUnauthorized)
	expectStatus(t, s.do(t, http.MethodGet, "/api/circles", "garbage", nil), http.StatusUnauthorized)
	expectStatus(t, s.do(t, http.MethodGet, "/api/circles/c1/signal", "", nil), http.StatusUnauthorized)
	expectStatus(t, s.do(t, http.MethodGet, "/api/health", "", nil), http.StatusOK)
}

func TestCircleLifecycle(t *testing.T) {
	s := newTestServer(t)
	host, member := s.token(t, "host"), s.token(t, "member")

	rec := s.do(t, http.MethodPost, "/api/circles", host, map[string]any{
		"topic":    "Evening check-in",
		"duration": 20,
	})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[domain.Circle](t, rec)
	if created.JoinCode == "" || created.Status != domain.CircleActive || created.CurrentParticipants != 1 {
		t.Fatalf("unexpected circle: %+v", created)
	}

	expectStatus(t, s.do(t, http.MethodPost, "/api/circles", host, map[string]any{
		"topic":    "Second circle",
		"duration": 20,
	}), http.StatusConflict)

	rec = s.do(t, http.MethodPost, "/api/circles/join", member, map[string]string{"joinCode": created.JoinCode})
	expectStatus(t, rec, http.StatusOK)
	if joined := decode[domain.Circle](t, rec); joined.CurrentParticipants != 2 {
		t.Fatalf("participants = %d, want 2", joined.CurrentParticipants)
	}

	rec = s.do(t, http.MethodGet, "/api/circles/"+created.ID, member, nil)
	expectStatus(t, rec, http.StatusOK)
	if seen := decode[domain.Circle](t, rec); len(seen.Participants) != 2 || seen.Participants[1].UserID != "member" {
		t.Fatalf("unexpected participants: %+v", seen.Participants)
	}

	expectStatus(t, s.do(t, http.MethodPost, "/api/circles/"+created.ID+"/end", member, nil), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodPost, "/api/circles/"+created.ID+"/end", host, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, "/api/circles/"+created.ID+"/join", s.token(t, "late"), nil), http.StatusConflict)

	expectStatus(t, s.do(t, http.MethodPost, "/api/circles", host, map[string]any{
		"topic":    "Another evening",
		"duration": 20,
	}), http.StatusCreated)
}

func TestCircleRequestValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "u1")

	expectStatus(t, s.do(t, http.MethodPost, "/api/circles", token, map[string]any{
		"topic":    "Evening check-in",
		"duration": 45,
	}), http.StatusBadRequest)

	expectStatus(t, s.do(t, http.MethodPost, "/api/circles", token, map[string]any{
		"topic":   "Evening check-in",
		"unknown": true,
	}), http.StatusBadRequest)

	expectStatus(t, s.do(t, http.MethodPost, "/api/circles/join", token, map[string]string{"joinCode": "12ab"}), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodGet, "/api/circles?status=bogus", token, nil), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodGet, "/api/circles/missing", token, nil), http.StatusNotFound)
}

func TestGameSessionFlow(t *testing.T) {
	s := newTestServer(t)
	host, a, b := s.token(t, "host"), s.token(t, "a"), s.token(t, "b")

	rec := s.do(t, http.MethodPost, "/api/circles", host, map[string]any{
		"topic":    "Game night",
		"duration": 20,
		"gameType": "imposter",
	})
	expectStatus(t, rec, http.StatusCreated)
	c := decode[domain.Circle](t, rec)

	for _, token := range []string{a, b} {
		expectStatus(t, s.do(t, http.MethodPost, "/api/circles/"+c.ID+"/join", token, nil), http.StatusOK)
	}

	rec = s.do(t, http.MethodPost, "/api/circles/"+c.ID+"/game", a, map[string]string{"gameType": "imposter"})
	expectStatus(t, rec, http.StatusOK)
	session := decode[domain.GameSession](t, rec)
	if len(session.Players) != 3 || session.Status != domain.SessionWaiting {
		t.Fatalf("unexpected session: %+v", session)
	}

	rec = s.do(t, http.MethodPost, "/api/circles/"+c.ID+"/game", b, map[string]string{"gameType": "imposter"})
	expectStatus(t, rec, http.StatusOK)
	if again := decode[domain.GameSession](t, rec); again.ID != session.ID {
		t.Fatal("every member should converge on the same open session")
	}

	base := "/api/games/" + session.ID
	expectStatus(t, s.do(t, http.MethodPost, base+"/start", a, nil), http.StatusForbidden)
	rec = s.do(t, http.MethodPost, base+"/start", host, nil)
	expectStatus(t, rec, http.StatusOK)
	if started := decode[domain.GameSession](t, rec); started.Status != domain.SessionActive || started.Round != 1 {
		t.Fatalf("unexpected started session: %+v", started)
	}

	expectStatus(t, s.do(t, http.MethodPost, base+"/vote", s.token(t, "stranger"), map[string]string{"targetId": "a"}), http.StatusForbidden)
	rec = s.do(t, http.MethodPost, base+"/vote", a, map[string]string{"targetId": "b"})
	expectStatus(t, rec, http.StatusOK)
	if voted := decode[domain.GameSession](t, rec); voted.Votes["a"] != "b" {
		t.Fatalf("vote not recorded: %+v", voted.Votes)
	}

	expectStatus(t, s.do(t, http.MethodPost, base+"/end", host, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, base+"/vote", b, map[string]string{"targetId": "a"}), http.StatusConflict)
}
