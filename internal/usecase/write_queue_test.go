package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/matchlive/internal/domain/match"
	"github.com/riskibarqy/matchlive/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

func newTestQueue(t *testing.T, cfg WriteQueueConfig, repo match.Repository) *WriteQueue {
	t.Helper()
	queue, err := NewWriteQueue(cfg, repo, logging.NewNop())
	if err != nil {
		t.Fatalf("build write queue: %v", err)
	}
	return queue
}

func seedMatch(t *testing.T, repo *memory.LiveStateRepository, matchID string) {
	t.Helper()
	if err := repo.Create(t.Context(), match.LiveState{MatchID: matchID, Status: match.StatusFirstHalf}); err != nil {
		t.Fatalf("seed match: %v", err)
	}
}

func TestWriteQueue_CoalescesBurstIntoOneWrite(t *testing.T) {
	repo := memory.NewLiveStateRepository()
	seedMatch(t, repo, "m-1")
	queue := newTestQueue(t, WriteQueueConfig{BatchSize: 100}, repo)

	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		stats := []match.StatLine{{Type: 23, Home: i, Away: 0}}
		if err := queue.Enqueue("m-1", match.Update{
			Statistics:         &stats,
			ProviderUpdateTime: int64Ptr(base + int64(i)),
			IngestedAt:         base + int64(i),
			GuardWindow:        5 * time.Second,
		}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if got := queue.PendingMatches(); got != 1 {
		t.Fatalf("five bursts for one match should hold one batch, got %d", got)
	}

	queue.Flush(t.Context())

	state, ok, err := repo.Get(t.Context(), "m-1")
	if err != nil || !ok {
		t.Fatalf("load state: ok=%t err=%v", ok, err)
	}
	// Last value wins for the stats, max wins for the provider timestamp.
	if len(state.Statistics) != 1 || state.Statistics[0].Home != 4 {
		t.Fatalf("unexpected statistics: %+v", state.Statistics)
	}
	if state.ProviderUpdateTime != base+4 {
		t.Fatalf("unexpected provider timestamp: %d, want %d", state.ProviderUpdateTime, base+4)
	}
	if got := queue.PendingMatches(); got != 0 {
		t.Fatalf("flush should drain pending batches, got %d", got)
	}
}

func TestWriteQueue_BatchSizeTriggersFlush(t *testing.T) {
	repo := memory.NewLiveStateRepository()
	queue := newTestQueue(t, WriteQueueConfig{BatchSize: 3, FlushInterval: time.Hour}, repo)

	for i, matchID := range []string{"m-1", "m-2", "m-3"} {
		seedMatch(t, repo, matchID)
		stats := []match.StatLine{{Type: 23, Home: 1}}
		if err := queue.Enqueue(matchID, match.Update{
			Statistics: &stats,
			IngestedAt: time.Now().Unix(),
		}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	// The size-triggered flush runs on its own goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for queue.PendingMatches() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := queue.PendingMatches(); got != 0 {
		t.Fatalf("batch-size flush did not drain the queue, %d pending", got)
	}

	for _, matchID := range []string{"m-1", "m-2", "m-3"} {
		state, ok, _ := repo.Get(t.Context(), matchID)
		if !ok || len(state.Statistics) != 1 {
			t.Fatalf("match %s not written: ok=%t stats=%+v", matchID, ok, state.Statistics)
		}
	}
}

func TestWriteQueue_StopFlushesPendingWork(t *testing.T) {
	repo := memory.NewLiveStateRepository()
	seedMatch(t, repo, "m-1")
	queue := newTestQueue(t, WriteQueueConfig{BatchSize: 100, FlushInterval: time.Hour}, repo)
	queue.Start()

	timeline := []match.TimelineEntry{{Time: "90", Text: "Full time."}}
	if err := queue.Enqueue("m-1", match.Update{
		Timeline:   &timeline,
		IngestedAt: time.Now().Unix(),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	queue.Stop(context.Background())

	state, ok, _ := repo.Get(t.Context(), "m-1")
	if !ok || len(state.Timeline) != 1 {
		t.Fatalf("stop did not flush pending batch: ok=%t timeline=%+v", ok, state.Timeline)
	}

	if err := queue.Enqueue("m-1", match.Update{Timeline: &timeline, IngestedAt: time.Now().Unix()}); err == nil {
		t.Fatal("enqueue after stop should fail")
	}
}

// gatedRepo blocks the first ApplyUpdate until released so a flush can be
// held in flight while more work arrives.
type gatedRepo struct {
	inner   *memory.LiveStateRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedRepo) Get(ctx context.Context, matchID string) (match.LiveState, bool, error) {
	return r.inner.Get(ctx, matchID)
}

func (r *gatedRepo) Create(ctx context.Context, state match.LiveState) error {
	return r.inner.Create(ctx, state)
}

func (r *gatedRepo) ApplyUpdate(ctx context.Context, matchID string, upd match.Update) (bool, error) {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return r.inner.ApplyUpdate(ctx, matchID, upd)
}

func TestWriteQueue_StopWaitsForInFlightFlush(t *testing.T) {
	repo := &gatedRepo{
		inner:   memory.NewLiveStateRepository(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	seedMatch(t, repo.inner, "m-1")
	seedMatch(t, repo.inner, "m-2")
	queue := newTestQueue(t, WriteQueueConfig{BatchSize: 1, FlushInterval: time.Hour}, repo)
	queue.Start()

	timeline := []match.TimelineEntry{{Time: "45", Text: "Half time."}}
	if err := queue.Enqueue("m-1", match.Update{Timeline: &timeline, IngestedAt: time.Now().Unix()}); err != nil {
		t.Fatalf("enqueue m-1: %v", err)
	}
	<-repo.entered

	// The first flush is stuck in storage; this batch misses its snapshot.
	if err := queue.Enqueue("m-2", match.Update{Timeline: &timeline, IngestedAt: time.Now().Unix()}); err != nil {
		t.Fatalf("enqueue m-2: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		queue.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a flush was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(repo.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not finish after the in-flight flush released")
	}

	for _, matchID := range []string{"m-1", "m-2"} {
		state, ok, _ := repo.inner.Get(t.Context(), matchID)
		if !ok || len(state.Timeline) != 1 {
			t.Fatalf("match %s not written on shutdown: ok=%t timeline=%+v", matchID, ok, state.Timeline)
		}
	}
}

func TestWriteQueue_RejectsEmptyUpdate(t *testing.T) {
	queue := newTestQueue(t, WriteQueueConfig{}, memory.NewLiveStateRepository())
	if err := queue.Enqueue("m-1", match.Update{}); err == nil {
		t.Fatal("empty update should be rejected")
	}
	if err := queue.Enqueue("", match.Update{IngestedAt: 1}); err == nil {
		t.Fatal("missing match id should be rejected")
	}
}

func int64Ptr(v int64) *int64 { return &v }
