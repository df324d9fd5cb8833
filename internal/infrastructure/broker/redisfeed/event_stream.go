package redisfeed

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/bytebufferpool"

	"github.com/riskibarqy/matchlive/internal/domain/event"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
	"github.com/riskibarqy/matchlive/internal/platform/resilience"
)

type EventStreamConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen trims the stream approximately so it cannot grow unbounded.
	MaxLen         int64
	PublishTimeout time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

func NormalizeEventStreamConfig(cfg EventStreamConfig) EventStreamConfig {
	if cfg.Stream == "" {
		cfg.Stream = "match.events"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 100000
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return cfg
}

// EventStream republishes domain events onto a Redis stream for external
// consumers. Publishing is best-effort: a broker outage trips the breaker
// and events are dropped with a log line, never blocking ingestion.
type EventStream struct {
	cfg            EventStreamConfig
	client         *redis.Client
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewEventStream(cfg EventStreamConfig, logger *logging.Logger) *EventStream {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = NormalizeEventStreamConfig(cfg)
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &EventStream{
		cfg: cfg,
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// Handle is the event bus subscriber entrypoint.
func (s *EventStream) Handle(evt event.Event) {
	if err := s.publish(evt); err != nil {
		s.logger.Warn("event stream publish dropped",
			"event_id", evt.ID,
			"kind", string(evt.Kind),
			"match_id", evt.MatchID,
			"error", err,
		)
	}
}

func (s *EventStream) publish(evt event.Event) error {
	if s.circuitEnabled {
		if err := s.breaker.Allow(); err != nil {
			return crerr.Wrap(err, "event stream circuit open")
		}
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	payload, err := sonic.Marshal(evt)
	if err != nil {
		return crerr.Wrap(err, "marshal event")
	}
	buf.Set(payload)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{
			"data": buf.String(),
		},
	}).Err()

	if s.circuitEnabled {
		if err != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
	}
	if err != nil {
		return crerr.Wrap(err, "xadd event")
	}
	return nil
}

func (s *EventStream) Close() error {
	return s.client.Close()
}
