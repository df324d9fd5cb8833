package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/riskibarqy/matchlive/internal/domain/event"
	"github.com/riskibarqy/matchlive/internal/domain/match"
	"github.com/riskibarqy/matchlive/internal/platform/cache"
	idgen "github.com/riskibarqy/matchlive/internal/platform/id"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

type DetectorConfig struct {
	// SuppressWindow is how recently a dedup key must have fired for a new
	// emission to be swallowed as a retransmission.
	SuppressWindow time.Duration
	// TTL bounds how long dedup entries survive at all.
	TTL time.Duration
	// SweepInterval is how often expired dedup entries are evicted.
	SweepInterval time.Duration
}

func NormalizeDetectorConfig(cfg DetectorConfig) DetectorConfig {
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	return cfg
}

// Detector turns incident batches and score deltas into domain events,
// suppressing duplicate emissions. Brokers redeliver aggressively around
// reconnects, so every candidate event is checked against a rolling dedup
// cache before it leaves this component.
type Detector struct {
	cfg    DetectorConfig
	seen   *cache.Store
	ids    idgen.Generator
	logger *logging.Logger

	stopOnce sync.Once
	stop     chan struct{}

	now func() time.Time
}

func NewDetector(cfg DetectorConfig, ids idgen.Generator, logger *logging.Logger) *Detector {
	cfg = NormalizeDetectorConfig(cfg)
	if ids == nil {
		ids = idgen.NewRandomGenerator()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{
		cfg:    cfg,
		seen:   cache.NewStore(cfg.TTL),
		ids:    ids,
		logger: logger,
		stop:   make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the periodic dedup sweep. Stop cancels it.
func (d *Detector) Start() {
	go func() {
		ticker := time.NewTicker(d.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := d.seen.Sweep(); removed > 0 {
					d.logger.Debug("dedup cache swept", "removed", removed, "remaining", d.seen.Len())
				}
			case <-d.stop:
				return
			}
		}
	}()
}

func (d *Detector) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// FromIncidents maps goal, card and substitution incidents to events.
// Corner kicks, offsides and the rest of the play-by-play noise yield
// nothing.
func (d *Detector) FromIncidents(matchID string, incidents []match.Incident) []event.Event {
	out := make([]event.Event, 0, 2)
	for _, incident := range incidents {
		var kind event.Kind
		switch {
		case incident.IsGoal():
			kind = event.KindGoal
		case incident.IsCard():
			kind = event.KindCard
		case incident.IsSubstitution():
			kind = event.KindSubstitution
		default:
			continue
		}

		key := dedupKey(matchID, kind, incident.Time, incident.PlayerID)
		if d.suppressed(key) {
			d.logger.Debug("duplicate incident suppressed",
				"match_id", matchID,
				"type", string(kind),
				"match_time", incident.Time,
			)
			continue
		}

		out = append(out, event.Event{
			ID:         d.newEventID(),
			Kind:       kind,
			MatchID:    matchID,
			Timestamp:  d.now().UnixMilli(),
			Side:       incident.Side,
			MatchTime:  incident.Time,
			PlayerID:   incident.PlayerID,
			PlayerName: incident.PlayerName,
			Detail:     incidentDetail(incident),
			HomeScore:  incident.HomeScore,
			AwayScore:  incident.AwayScore,
		})
	}
	return out
}

// FromScoreDelta compares a freshly accepted score against the previously
// persisted one. A strict decrease on either side is a VAR rollback and
// yields GOAL_CANCELLED; any other change yields SCORE_CHANGE; no change
// yields nothing.
func (d *Detector) FromScoreDelta(matchID string, prev, next match.ScorePair) []event.Event {
	prevHome, prevAway := prev.Home.Display(), prev.Away.Display()
	nextHome, nextAway := next.Home.Display(), next.Away.Display()

	if prevHome == nextHome && prevAway == nextAway {
		return nil
	}

	kind := event.KindScoreChange
	if nextHome < prevHome || nextAway < prevAway {
		kind = event.KindGoalCancelled
	}

	scoreLabel := strconv.Itoa(nextHome) + "-" + strconv.Itoa(nextAway)
	key := dedupKey(matchID, kind, scoreLabel, "")
	if d.suppressed(key) {
		d.logger.Debug("duplicate score event suppressed",
			"match_id", matchID,
			"type", string(kind),
			"score", scoreLabel,
		)
		return nil
	}

	return []event.Event{{
		ID:        d.newEventID(),
		Kind:      kind,
		MatchID:   matchID,
		Timestamp: d.now().UnixMilli(),
		HomeScore: nextHome,
		AwayScore: nextAway,
		PrevHome:  prevHome,
		PrevAway:  prevAway,
	}}
}

// suppressed reports whether the key fired within the suppress window, and
// records this emission either way.
func (d *Detector) suppressed(key string) bool {
	now := d.now()
	if last, ok := d.seen.Get(context.Background(), key); ok {
		if lastAt, ok := last.(time.Time); ok && now.Sub(lastAt) < d.cfg.SuppressWindow {
			return true
		}
	}
	d.seen.Set(context.Background(), key, now)
	return false
}

func (d *Detector) newEventID() string {
	eventID, err := d.ids.NewID()
	if err != nil {
		return ""
	}
	return eventID
}

func dedupKey(matchID string, kind event.Kind, matchTime, subjectID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", matchID, kind, matchTime, subjectID)
}

func incidentDetail(incident match.Incident) string {
	switch incident.Type {
	case match.IncidentYellowCard:
		return "yellow"
	case match.IncidentRedCard:
		return "red"
	case match.IncidentYellowToRed:
		return "second_yellow"
	case match.IncidentOwnGoal:
		return "own_goal"
	case match.IncidentPenaltyGoal:
		return "penalty"
	case match.IncidentSubstitution:
		if incident.InName != "" || incident.OutName != "" {
			return incident.InName + " for " + incident.OutName
		}
		return ""
	default:
		return ""
	}
}
