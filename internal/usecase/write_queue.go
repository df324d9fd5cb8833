package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/riskibarqy/matchlive/internal/domain/match"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

type WriteQueueConfig struct {
	// BatchSize is the number of distinct matches with pending batches that
	// triggers an immediate flush.
	BatchSize int
	// FlushInterval is the background flush cadence.
	FlushInterval time.Duration
	// Workers caps concurrent per-match writes during a flush.
	Workers int
}

func NormalizeWriteQueueConfig(cfg WriteQueueConfig) WriteQueueConfig {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	return cfg
}

// WriteQueue coalesces per-match storage mutations so that a score, a stat
// batch and an incident batch arriving within milliseconds cost one write,
// not three. Each match holds at most one pending batch; merging is
// last-value-wins per field and max-wins per timestamp.
type WriteQueue struct {
	cfg    WriteQueueConfig
	repo   match.Repository
	logger *logging.Logger
	pool   *ants.Pool

	mu      sync.Mutex
	pending map[string]*match.Update

	flushMu  sync.Mutex
	stopOnce sync.Once
	stopped  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

func NewWriteQueue(cfg WriteQueueConfig, repo match.Repository, logger *logging.Logger) (*WriteQueue, error) {
	cfg = NormalizeWriteQueueConfig(cfg)
	if repo == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidInput)
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create flush worker pool: %w", err)
	}

	return &WriteQueue{
		cfg:     cfg,
		repo:    repo,
		logger:  logger,
		pool:    pool,
		pending: make(map[string]*match.Update),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the periodic flush timer.
func (q *WriteQueue) Start() {
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.Flush(context.Background())
			case <-q.stop:
				return
			}
		}
	}()
}

// Enqueue merges the update into the match's pending batch. It never
// blocks on storage; when the number of matches with pending work reaches
// the batch size the flush runs on a separate goroutine.
func (q *WriteQueue) Enqueue(matchID string, upd match.Update) error {
	if matchID == "" || upd.IsEmpty() {
		return fmt.Errorf("%w: match id and a non-empty update are required", ErrInvalidInput)
	}
	q.mu.Lock()
	// Checked under the batch lock so an insert cannot slip in after Stop's
	// final drain observed an empty map.
	if q.stopped.Load() {
		q.mu.Unlock()
		return fmt.Errorf("%w: write queue is stopped", ErrDependencyUnavailable)
	}
	batch, ok := q.pending[matchID]
	if !ok {
		batch = &match.Update{}
		q.pending[matchID] = batch
	}
	mergeUpdate(batch, upd)
	full := len(q.pending) >= q.cfg.BatchSize
	q.mu.Unlock()

	if full {
		go q.Flush(context.Background())
	}
	return nil
}

// Flush applies every pending batch, one conditional write per match. A
// flush already in progress makes concurrent calls no-ops; batches
// enqueued meanwhile start fresh and are picked up by the next flush.
func (q *WriteQueue) Flush(ctx context.Context) {
	if !q.flushMu.TryLock() {
		return
	}
	defer q.flushMu.Unlock()
	q.flushLocked(ctx)
}

func (q *WriteQueue) flushLocked(ctx context.Context) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batches := q.pending
	q.pending = make(map[string]*match.Update)
	q.mu.Unlock()

	var wg sync.WaitGroup
	for matchID, batch := range batches {
		matchID, batch := matchID, batch
		wg.Add(1)
		if err := q.pool.Submit(func() {
			defer wg.Done()
			q.apply(ctx, matchID, *batch)
		}); err != nil {
			wg.Done()
			// Pool saturated or released; apply inline rather than drop.
			q.apply(ctx, matchID, *batch)
		}
	}
	wg.Wait()
}

func (q *WriteQueue) apply(ctx context.Context, matchID string, upd match.Update) {
	accepted, err := q.repo.ApplyUpdate(ctx, matchID, upd)
	if err != nil {
		q.logger.ErrorContext(ctx, "flush batch failed",
			"match_id", matchID,
			"error", err,
		)
		return
	}
	if !accepted {
		q.logger.DebugContext(ctx, "flush batch rejected as stale", "match_id", matchID)
	}
}

// PendingMatches reports how many matches currently hold a pending batch.
func (q *WriteQueue) PendingMatches() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop cancels the timer, waits out any flush still in flight, drains every
// remaining batch and releases the worker pool. The queue rejects enqueues
// afterwards.
func (q *WriteQueue) Stop(ctx context.Context) {
	q.stopOnce.Do(func() {
		q.stopped.Store(true)
		close(q.stop)
		<-q.done
		// A size-triggered flush may have snapshotted the map before the
		// last enqueues landed; loop until nothing is left behind it.
		for {
			q.flushMu.Lock()
			q.flushLocked(ctx)
			q.flushMu.Unlock()
			if q.PendingMatches() == 0 {
				break
			}
		}
		q.pool.Release()
	})
}

// mergeUpdate folds next into batch: last value wins for every field, the
// maximum wins for every timestamp.
func mergeUpdate(batch *match.Update, next match.Update) {
	if next.Status != nil {
		batch.Status = next.Status
	}
	if next.Score != nil {
		batch.Score = next.Score
	}
	if next.FirstHalfKickoff != nil {
		batch.FirstHalfKickoff = next.FirstHalfKickoff
	}
	if next.SecondHalfKickoff != nil {
		batch.SecondHalfKickoff = next.SecondHalfKickoff
	}
	if next.OvertimeKickoff != nil {
		batch.OvertimeKickoff = next.OvertimeKickoff
	}
	if next.Incidents != nil {
		batch.Incidents = next.Incidents
	}
	if next.Statistics != nil {
		batch.Statistics = next.Statistics
	}
	if next.Timeline != nil {
		batch.Timeline = next.Timeline
	}
	if next.ProviderUpdateTime != nil {
		if batch.ProviderUpdateTime == nil || *next.ProviderUpdateTime > *batch.ProviderUpdateTime {
			value := *next.ProviderUpdateTime
			batch.ProviderUpdateTime = &value
		}
	}
	if next.IngestedAt > batch.IngestedAt {
		batch.IngestedAt = next.IngestedAt
	}
	if next.GuardWindow > 0 {
		batch.GuardWindow = next.GuardWindow
	}
}
