package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/riskibarqy/matchlive/internal/domain/event"
	"github.com/riskibarqy/matchlive/internal/domain/match"
	"github.com/riskibarqy/matchlive/internal/feed"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
	"github.com/riskibarqy/matchlive/internal/platform/resilience"
)

type IngestConfig struct {
	// EndedKeepalive is how long an ENDED match is watched for a
	// resurrection into overtime or penalties before it is treated as
	// terminal.
	EndedKeepalive time.Duration
	// GuardWindow protects timestamp-less writes from clobbering fresher
	// data: such a write is only accepted when the local clock is more
	// than this far past the stored ingestion time.
	GuardWindow time.Duration
	// TimelineScanDepth is how many of the newest timeline entries are
	// scanned for phase keywords.
	TimelineScanDepth int
}

func NormalizeIngestConfig(cfg IngestConfig) IngestConfig {
	if cfg.EndedKeepalive <= 0 {
		cfg.EndedKeepalive = 20 * time.Minute
	}
	if cfg.GuardWindow <= 0 {
		cfg.GuardWindow = 5 * time.Second
	}
	if cfg.TimelineScanDepth < 1 {
		cfg.TimelineScanDepth = 5
	}
	return cfg
}

// matchRuntime is the in-process view of one match: the last persisted
// status and score plus the resurrection keepalive timer. It exists so
// transitions can be detected without re-reading storage per message.
type matchRuntime struct {
	status    match.Status
	score     match.ScorePair
	firstHalf bool
	secondHlf bool
	overtime  bool
	keepalive *time.Timer
}

// IngestService coordinates the live pipeline: it parses broker payloads,
// runs the per-match state machine, persists through freshness-guarded
// conditional writes and emits domain events once those writes are
// accepted.
type IngestService struct {
	cfg      IngestConfig
	repo     match.Repository
	queue    *WriteQueue
	detector *Detector
	bus      *EventBus
	logger   *logging.Logger

	mu      sync.Mutex
	runtime map[string]*matchRuntime
	flight  resilience.SingleFlight

	now func() time.Time
}

func NewIngestService(
	cfg IngestConfig,
	repo match.Repository,
	queue *WriteQueue,
	detector *Detector,
	bus *EventBus,
	logger *logging.Logger,
) (*IngestService, error) {
	if repo == nil || queue == nil || detector == nil || bus == nil {
		return nil, fmt.Errorf("%w: repository, queue, detector and bus are required", ErrInvalidInput)
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &IngestService{
		cfg:      NormalizeIngestConfig(cfg),
		repo:     repo,
		queue:    queue,
		detector: detector,
		bus:      bus,
		logger:   logger,
		runtime:  make(map[string]*matchRuntime),
		now:      time.Now,
	}, nil
}

// HandlePayload is the transport callback. One payload may carry several
// messages; a failure in one never cancels the rest.
func (s *IngestService) HandlePayload(ctx context.Context, raw []byte) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestService.HandlePayload")
	defer span.End()

	result, err := feed.Parse(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "payload dropped", "error", err, "bytes", len(raw))
		return
	}
	for _, warning := range result.Warnings {
		s.logger.WarnContext(ctx, "sub-message skipped", "reason", warning)
	}

	for _, msg := range result.Messages {
		s.handleMessage(ctx, msg)
	}
}

func (s *IngestService) handleMessage(ctx context.Context, msg feed.Message) {
	var err error
	switch typed := msg.(type) {
	case feed.ScoreMessage:
		err = s.handleScore(ctx, typed)
	case feed.StatsMessage:
		err = s.handleStats(ctx, typed)
	case feed.IncidentsMessage:
		err = s.handleIncidents(ctx, typed)
	case feed.TimelineMessage:
		err = s.handleTimeline(ctx, typed)
	default:
		s.logger.WarnContext(ctx, "unhandled message type", "type", fmt.Sprintf("%T", msg))
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "message dropped",
			"match_id", msg.MatchID(),
			"error", err,
		)
	}
}

// handleScore runs the state machine for a score-channel message and
// persists status, score and kickoff stamps in one conditional write.
func (s *IngestService) handleScore(ctx context.Context, msg feed.ScoreMessage) error {
	rt, err := s.ensureRuntime(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("load match runtime: %w", err)
	}

	now := s.now()
	upd := match.Update{
		Score:       &match.ScorePair{Home: msg.Home, Away: msg.Away},
		IngestedAt:  now.Unix(),
		GuardWindow: s.cfg.GuardWindow,
	}
	if msg.Timestamp > 0 {
		ts := msg.Timestamp
		upd.ProviderUpdateTime = &ts
	}

	s.mu.Lock()
	prevStatus := rt.status
	prevScore := rt.score
	s.mu.Unlock()

	newStatus := msg.Status
	if newStatus != prevStatus {
		upd.Status = &newStatus
		s.stampKickoffs(rt, &upd, newStatus, msg.Timestamp, now)
	}

	accepted, err := s.repo.ApplyUpdate(ctx, msg.ID, upd)
	if err != nil {
		return fmt.Errorf("apply score update: %w", err)
	}
	if !accepted {
		s.logger.DebugContext(ctx, "score update rejected as stale",
			"match_id", msg.ID,
			"provider_ts", msg.Timestamp,
		)
		return nil
	}

	s.markAccepted(rt, upd)

	if upd.Status != nil {
		s.onStatusAccepted(msg.ID, rt, prevStatus, newStatus)
	}
	for _, evt := range s.detector.FromScoreDelta(msg.ID, prevScore, *upd.Score) {
		s.bus.Publish(evt)
	}
	return nil
}

// stampKickoffs adds write-once kickoff timestamps for the phase that just
// started. The store fills them only when still unset, so a replayed
// message cannot move an already-stamped kickoff. The runtime flags are
// set later, once the write is accepted.
func (s *IngestService) stampKickoffs(rt *matchRuntime, upd *match.Update, status match.Status, providerTS int64, now time.Time) {
	kickoff := providerTS
	if kickoff <= 0 {
		kickoff = now.Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case match.StatusFirstHalf:
		if !rt.firstHalf {
			upd.FirstHalfKickoff = &kickoff
		}
	case match.StatusSecondHalf:
		if !rt.secondHlf {
			upd.SecondHalfKickoff = &kickoff
		}
	case match.StatusOvertime:
		if !rt.overtime {
			upd.OvertimeKickoff = &kickoff
		}
	}
}

// markAccepted folds an accepted write back into the runtime.
func (s *IngestService) markAccepted(rt *matchRuntime, upd match.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if upd.Status != nil {
		rt.status = *upd.Status
	}
	if upd.Score != nil {
		rt.score = *upd.Score
	}
	if upd.FirstHalfKickoff != nil {
		rt.firstHalf = true
	}
	if upd.SecondHalfKickoff != nil {
		rt.secondHlf = true
	}
	if upd.OvertimeKickoff != nil {
		rt.overtime = true
	}
}

// onStatusAccepted manages the keepalive timer and emits the state-change
// event after the status write has been durably accepted.
func (s *IngestService) onStatusAccepted(matchID string, rt *matchRuntime, from, to match.Status) {
	s.mu.Lock()
	if match.IsResurrection(from, to) {
		if rt.keepalive != nil {
			rt.keepalive.Stop()
			rt.keepalive = nil
		}
		s.logger.Info("match resurrected",
			"match_id", matchID,
			"from", string(from),
			"to", string(to),
		)
	}
	switch {
	case to == match.StatusEnded:
		if rt.keepalive == nil {
			rt.keepalive = time.AfterFunc(s.cfg.EndedKeepalive, func() {
				s.confirmEnded(matchID)
			})
		}
	case match.IsTerminal(to):
		if rt.keepalive != nil {
			rt.keepalive.Stop()
			rt.keepalive = nil
		}
		delete(s.runtime, matchID)
	}
	s.mu.Unlock()

	s.bus.Publish(event.Event{
		ID:         s.detector.newEventID(),
		Kind:       event.KindMatchStateChange,
		MatchID:    matchID,
		Timestamp:  s.now().UnixMilli(),
		FromStatus: from,
		ToStatus:   to,
	})
}

// confirmEnded fires when an ENDED match saw no resurrection for the whole
// keepalive. It performs no write: ENDED is already persisted, the expiry
// only releases the in-memory runtime.
func (s *IngestService) confirmEnded(matchID string) {
	s.mu.Lock()
	rt, ok := s.runtime[matchID]
	if ok && rt.status == match.StatusEnded {
		rt.keepalive = nil
		delete(s.runtime, matchID)
	}
	s.mu.Unlock()

	if ok {
		s.logger.Info("match end confirmed", "match_id", matchID)
	}
}

func (s *IngestService) handleStats(ctx context.Context, msg feed.StatsMessage) error {
	if _, err := s.ensureRuntime(ctx, msg.ID); err != nil {
		return fmt.Errorf("load match runtime: %w", err)
	}

	stats := msg.Stats
	return s.queue.Enqueue(msg.ID, match.Update{
		Statistics:  &stats,
		IngestedAt:  s.now().Unix(),
		GuardWindow: s.cfg.GuardWindow,
	})
}

// handleIncidents replaces the stored incident list through the write
// queue and emits goal/card/substitution events for the batch.
func (s *IngestService) handleIncidents(ctx context.Context, msg feed.IncidentsMessage) error {
	if _, err := s.ensureRuntime(ctx, msg.ID); err != nil {
		return fmt.Errorf("load match runtime: %w", err)
	}

	incidents := msg.Incidents
	if err := s.queue.Enqueue(msg.ID, match.Update{
		Incidents:   &incidents,
		IngestedAt:  s.now().Unix(),
		GuardWindow: s.cfg.GuardWindow,
	}); err != nil {
		return err
	}

	for _, evt := range s.detector.FromIncidents(msg.ID, msg.Incidents) {
		s.bus.Publish(evt)
	}
	return nil
}

// handleTimeline replaces the stored timeline and additionally mines the
// newest entries for phase announcements: the commentary channel often
// reports half-time or full-time before the score channel does.
func (s *IngestService) handleTimeline(ctx context.Context, msg feed.TimelineMessage) error {
	rt, err := s.ensureRuntime(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("load match runtime: %w", err)
	}

	entries := msg.Entries
	if err := s.queue.Enqueue(msg.ID, match.Update{
		Timeline:    &entries,
		IngestedAt:  s.now().Unix(),
		GuardWindow: s.cfg.GuardWindow,
	}); err != nil {
		return err
	}

	inferred, ok := s.inferTimelineStatus(msg.Entries)
	if !ok {
		return nil
	}

	s.mu.Lock()
	prevStatus := rt.status
	s.mu.Unlock()

	if !timelineTransitionAllowed(prevStatus, inferred) {
		return nil
	}

	now := s.now()
	upd := match.Update{
		Status:      &inferred,
		IngestedAt:  now.Unix(),
		GuardWindow: s.cfg.GuardWindow,
	}
	s.stampKickoffs(rt, &upd, inferred, 0, now)

	accepted, err := s.repo.ApplyUpdate(ctx, msg.ID, upd)
	if err != nil {
		return fmt.Errorf("apply timeline status update: %w", err)
	}
	if !accepted {
		s.logger.DebugContext(ctx, "timeline status update rejected as stale",
			"match_id", msg.ID,
			"status", string(inferred),
		)
		return nil
	}

	s.markAccepted(rt, upd)
	s.onStatusAccepted(msg.ID, rt, prevStatus, inferred)
	return nil
}

// phaseKeywords maps commentary substrings to phases. The heuristic is
// best-effort by nature; it only ever drives forward transitions and its
// write carries no provider timestamp, so a fresher score-channel status
// inside the guard window always wins.
var phaseKeywords = []struct {
	keyword string
	status  match.Status
}{
	{"half time", match.StatusHalfTime},
	{"halftime", match.StatusHalfTime},
	{"half-time", match.StatusHalfTime},
	{"second half", match.StatusSecondHalf},
	{"2nd half", match.StatusSecondHalf},
	{"full time", match.StatusEnded},
	{"full-time", match.StatusEnded},
	{"match ends", match.StatusEnded},
	{"match finished", match.StatusEnded},
	{"extra time", match.StatusOvertime},
	{"overtime", match.StatusOvertime},
	{"penalty shootout", match.StatusPenaltyShootout},
	{"penalty shoot-out", match.StatusPenaltyShootout},
}

func (s *IngestService) inferTimelineStatus(entries []match.TimelineEntry) (match.Status, bool) {
	start := len(entries) - s.cfg.TimelineScanDepth
	if start < 0 {
		start = 0
	}
	// Newest entries first so the latest announcement wins.
	for i := len(entries) - 1; i >= start; i-- {
		text := strings.ToLower(entries[i].Text)
		for _, candidate := range phaseKeywords {
			if strings.Contains(text, candidate.keyword) {
				return candidate.status, true
			}
		}
	}
	return "", false
}

var statusRank = map[match.Status]int{
	match.StatusNotStarted:      0,
	match.StatusFirstHalf:       1,
	match.StatusHalfTime:        2,
	match.StatusSecondHalf:      3,
	match.StatusEnded:           4,
	match.StatusOvertime:        5,
	match.StatusPenaltyShootout: 6,
}

// timelineTransitionAllowed restricts the free-text heuristic to forward
// progression plus the knockout resurrection. Score-channel statuses are
// not filtered this way; the provider is authoritative there.
func timelineTransitionAllowed(from, to match.Status) bool {
	if from == to {
		return false
	}
	if match.IsResurrection(from, to) {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	// ENDED outranking OVERTIME in the table would break forward checks,
	// so ENDED is comparable only against regulation phases.
	if to == match.StatusEnded {
		return from != match.StatusEnded
	}
	return toRank > fromRank
}

// ensureRuntime returns the in-memory runtime for a match, lazily loading
// or creating the stored row on first sight. Singleflight keeps concurrent
// messages for a brand-new match from racing the row creation.
func (s *IngestService) ensureRuntime(ctx context.Context, matchID string) (*matchRuntime, error) {
	if matchID == "" {
		return nil, fmt.Errorf("%w: match id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	rt, ok := s.runtime[matchID]
	s.mu.Unlock()
	if ok {
		return rt, nil
	}

	loaded, err, _ := s.flight.Do(matchID, func() (any, error) {
		s.mu.Lock()
		if existing, ok := s.runtime[matchID]; ok {
			s.mu.Unlock()
			return existing, nil
		}
		s.mu.Unlock()

		state, found, err := s.repo.Get(ctx, matchID)
		if err != nil {
			return nil, fmt.Errorf("get live state: %w", err)
		}
		if !found {
			state = match.LiveState{MatchID: matchID, Status: match.StatusNotStarted}
			if err := s.repo.Create(ctx, state); err != nil {
				return nil, fmt.Errorf("create live state: %w", err)
			}
		}

		created := &matchRuntime{
			status:    state.Status,
			score:     match.ScorePair{Home: state.Home, Away: state.Away},
			firstHalf: state.FirstHalfKickoff > 0,
			secondHlf: state.SecondHalfKickoff > 0,
			overtime:  state.OvertimeKickoff > 0,
		}

		s.mu.Lock()
		s.runtime[matchID] = created
		if created.status == match.StatusEnded && created.keepalive == nil {
			created.keepalive = time.AfterFunc(s.cfg.EndedKeepalive, func() {
				s.confirmEnded(matchID)
			})
		}
		s.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return loaded.(*matchRuntime), nil
}

// TrackedMatches reports how many matches currently hold runtime state.
func (s *IngestService) TrackedMatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runtime)
}

// Close cancels every keepalive timer. The queue, detector and bus have
// their own lifecycles owned by the caller.
func (s *IngestService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for matchID, rt := range s.runtime {
		if rt.keepalive != nil {
			rt.keepalive.Stop()
			rt.keepalive = nil
		}
		delete(s.runtime, matchID)
	}
}
