package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/haven/internal/domain"
)

func newStoredCircle(t *testing.T, repo domain.CircleRepository, id string, max int) *domain.Circle {
	t.Helper()

	now := time.Now()
	c := &domain.Circle{
		ID:              id,
		HostID:          "host-" + id,
		ChannelName:     "circle-" + id,
		JoinCode:        "code-" + id,
		Duration:        20,
		MaxParticipants: max,
		Status:          domain.CircleActive,
		StartedAt:       &now,
		CreatedAt:       now,
		QuotaHolder:     "host-" + id,
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return c
}

func TestCircleRepositoryUniqueness(t *testing.T) {
	repo := NewCircleRepository()
	c := newStoredCircle(t, repo, "c1", 5)

	dupCode := *c
	dupCode.ID, dupCode.ChannelName, dupCode.QuotaHolder = "c2", "circle-c2", ""
	if err := repo.Create(context.Background(), &dupCode); !errors.Is(err, domain.ErrDuplicateJoinCode) {
		t.Fatalf("expected ErrDuplicateJoinCode, got %v", err)
	}

	dupChannel := *c
	dupChannel.ID, dupChannel.JoinCode, dupChannel.QuotaHolder = "c3", "999999", ""
	if err := repo.Create(context.Background(), &dupChannel); !errors.Is(err, domain.ErrDuplicateChannel) {
		t.Fatalf("expected ErrDuplicateChannel, got %v", err)
	}

	dupQuota := *c
	dupQuota.ID, dupQuota.JoinCode, dupQuota.ChannelName = "c4", "888888", "circle-c4"
	if err := repo.Create(context.Background(), &dupQuota); !errors.Is(err, domain.ErrCircleQuotaExceeded) {
		t.Fatalf("expected ErrCircleQuotaExceeded, got %v", err)
	}

	if _, _, err := repo.Transition(context.Background(), c.ID, domain.CircleEnded, time.Now()); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := repo.Create(context.Background(), &dupQuota); err != nil {
		t.Fatalf("quota should be free after end: %v", err)
	}

	exists, _ := repo.JoinCodeExists(context.Background(), c.JoinCode)
	if !exists {
		t.Fatal("join codes of ended circles stay reserved")
	}
}

func TestCircleRepositoryConcurrentJoinsRespectCapacity(t *testing.T) {
	repo := NewCircleRepository()
	c := newStoredCircle(t, repo, "c1", 10)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := repo.AddParticipant(context.Background(), c.ID, domain.Participant{UserID: fmt.Sprintf("u%d", i)})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrCircleFull):
				full++
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			case ok:
				joined++
			}
		}(i)
	}
	wg.Wait()

	if joined != 10 || full != 30 {
		t.Fatalf("joined=%d full=%d, want 10 and 30", joined, full)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.CurrentParticipants != len(stored.Participants) || stored.CurrentParticipants != 10 {
		t.Fatalf("counter out of sync: %d vs %d", stored.CurrentParticipants, len(stored.Participants))
	}
}

func TestCircleRepositoryReturnsCopies(t *testing.T) {
	repo := NewCircleRepository()
	c := newStoredCircle(t, repo, "c1", 5)

	got, _ := repo.GetByID(context.Background(), c.ID)
	got.Participants = append(got.Participants, domain.Participant{UserID: "sneaky"})
	got.Status = domain.CircleEnded

	again, _ := repo.GetByID(context.Background(), c.ID)
	if len(again.Participants) != 0 || again.Status != domain.CircleActive {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestCircleRepositoryListFilters(t *testing.T) {
	repo := NewCircleRepository()
	public := newStoredCircle(t, repo, "c1", 5)
	private := &domain.Circle{
		ID: "c2", HostID: "host-c2", ChannelName: "circle-c2", JoinCode: "222222",
		MaxParticipants: 5, Status: domain.CircleActive, IsPrivate: true,
		CreatedAt: public.CreatedAt.Add(time.Second),
	}
	if err := repo.Create(context.Background(), private); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, _ := repo.List(context.Background(), domain.CircleFilter{ViewerID: "stranger"})
	if len(list) != 1 || list[0].ID != "c1" {
		t.Fatalf("stranger should only see the public circle, got %d", len(list))
	}

	list, _ = repo.List(context.Background(), domain.CircleFilter{ViewerID: "host-c2"})
	if len(list) != 2 || list[0].ID != "c2" {
		t.Fatalf("expected newest first with the private circle, got %+v", list)
	}

	list, _ = repo.List(context.Background(), domain.CircleFilter{Limit: 1})
	if len(list) != 1 {
		t.Fatalf("limit not applied: %d", len(list))
	}
}
