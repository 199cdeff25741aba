package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/haven/internal/application/usecases/circle"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/repository"
)

type countingSweeper struct {
	mu     sync.Mutex
	calls  int
	err    error
	called chan struct{}
}

func (s *countingSweeper) ExpireDue(ctx context.Context) (circle.SweepResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.called != nil {
		select {
		case s.called <- struct{}{}:
		default:
		}
	}
	return circle.SweepResult{Checked: 1, Expired: 1}, s.err
}

func TestCircleExpiryJob_RunsImmediatelyAndStops(t *testing.T) {
	sweeper := &countingSweeper{called: make(chan struct{}, 1)}
	job := NewCircleExpiryJob(sweeper, nil, logging.NewNopLogger(), time.Hour)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	select {
	case <-sweeper.called:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not sweep on start")
	}

	job.Stop()
	job.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop")
	}
}

func TestCircleExpiryJob_StopsOnContextCancel(t *testing.T) {
	job := NewCircleExpiryJob(&countingSweeper{}, nil, logging.NewNopLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job ignored context cancellation")
	}
}

func TestCircleExpiryJob_RunOnceReportsResult(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("store down")}
	job := NewCircleExpiryJob(sweeper, nil, logging.NewNopLogger(), 0)

	res := job.RunOnce(context.Background())
	if res.Expired != 1 || sweeper.calls != 1 {
		t.Fatalf("RunOnce() = %+v after %d calls", res, sweeper.calls)
	}
}

func TestCircleExpiryJob_ExpiresCirclesWithFakeClock(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	circles := repository.NewCircleRepository()
	uc := circle.NewCircleUseCase(circle.Dependencies{
		Circles:  circles,
		Sessions: repository.NewGameSessionRepository(),
		Now:      func() time.Time { return now },
	}, circle.DefaultConfig())

	host := domain.Principal{ID: "host", Role: domain.RoleUser, DisplayName: "Host"}
	c, err := uc.Create(context.Background(), host, circle.CreateInput{Topic: "Morning calm", Duration: 20})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	job := NewCircleExpiryJob(uc, nil, logging.NewNopLogger(), time.Minute)
	if res := job.RunOnce(context.Background()); res.Expired != 0 {
		t.Fatalf("fresh circle expired: %+v", res)
	}

	now = now.Add(20 * time.Minute)
	if res := job.RunOnce(context.Background()); res.Expired != 1 {
		t.Fatalf("RunOnce() = %+v, want one expiry", res)
	}

	got, err := circles.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.CircleEnded {
		t.Fatalf("Status = %s, want ended", got.Status)
	}
}

func TestAuditRetentionJob(t *testing.T) {
	audit := repository.NewCircleAuditLogRepository(10)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	old := &domain.CircleAuditLog{ID: "old", CircleID: "c1", EventType: domain.EventCircleCreated, Timestamp: now.Add(-100 * 24 * time.Hour)}
	fresh := &domain.CircleAuditLog{ID: "fresh", CircleID: "c1", EventType: domain.EventCircleEnded, Timestamp: now.Add(-time.Hour)}
	for _, l := range []*domain.CircleAuditLog{old, fresh} {
		if err := audit.Log(context.Background(), l); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	job := NewAuditRetentionJob(audit, logging.NewNopLogger(), 90*24*time.Hour, time.Hour)
	job.now = func() time.Time { return now }
	job.RunOnce(context.Background())

	got, err := audit.GetByCircleID(context.Background(), "c1", 0)
	if err != nil {
		t.Fatalf("GetByCircleID() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("remaining = %+v", got)
	}
}
