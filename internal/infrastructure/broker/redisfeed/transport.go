package redisfeed

import (
	"context"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

type TransportConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	ConnectTimeout time.Duration
	// Reconnect backoff doubles from Base up to Cap. After MaxAttempts
	// consecutive failures the transport gives up and reports a fatal
	// error on Fatal().
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	MaxAttempts   int

	// A throughput sample is logged every SampleInterval or every
	// SampleMessages messages, whichever comes first.
	SampleInterval time.Duration
	SampleMessages int
}

func NormalizeTransportConfig(cfg TransportConfig) TransportConfig {
	if cfg.Channel == "" {
		cfg.Channel = "match.live"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 30 * time.Second
	}
	if cfg.SampleMessages <= 0 {
		cfg.SampleMessages = 100
	}
	return cfg
}

// Handler receives one raw feed payload. It must not retain the slice.
type Handler func(ctx context.Context, payload []byte)

// Transport subscribes to the provider's Redis channel and feeds payloads
// to the handler, reconnecting with exponential backoff when the
// subscription drops.
type Transport struct {
	cfg     TransportConfig
	client  *redis.Client
	handler Handler
	logger  *logging.Logger

	fatal  chan error
	cancel context.CancelFunc
	done   chan struct{}

	// consume holds one subscription until it fails and reports whether any
	// message was delivered. Swappable in tests.
	consume func(ctx context.Context) (bool, error)

	mu          sync.Mutex
	connected   bool
	sampleCount int
	sampleStart time.Time

	disconnectOnce sync.Once
}

func NewTransport(cfg TransportConfig, handler Handler, logger *logging.Logger) (*Transport, error) {
	if handler == nil {
		return nil, crerr.New("transport handler is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = NormalizeTransportConfig(cfg)

	t := &Transport{
		cfg: cfg,
		client: redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.ConnectTimeout,
		}),
		handler: handler,
		logger:  logger,
		fatal:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	t.consume = t.consumeOnce
	return t, nil
}

// Connect verifies the broker is reachable and starts the consume loop.
func (t *Transport) Connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()
	if err := t.client.Ping(pingCtx).Err(); err != nil {
		return crerr.Wrap(err, "connect to feed broker")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	t.cancel = cancelRun

	t.mu.Lock()
	t.connected = true
	t.sampleStart = time.Now()
	t.mu.Unlock()

	t.logger.Info("feed transport connected",
		"addr", t.cfg.Addr,
		"channel", t.cfg.Channel,
	)

	go t.run(runCtx)
	return nil
}

// Fatal reports an unrecoverable transport failure, at most once. The
// caller is expected to shut the process down.
func (t *Transport) Fatal() <-chan error {
	return t.fatal
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.done)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		delivered, err := t.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if delivered {
			// A subscription that delivered messages restores the full
			// reconnect budget; only consecutive dead sessions count.
			attempts = 0
		}

		attempts++
		if attempts > t.cfg.MaxAttempts {
			t.logger.Error("feed transport gave up reconnecting",
				"attempts", attempts-1,
				"error", err,
			)
			select {
			case t.fatal <- crerr.Wrapf(err, "feed subscription lost after %d reconnect attempts", attempts-1):
			default:
			}
			return
		}

		backoff := t.backoff(attempts)
		t.logger.Warn("feed subscription dropped, reconnecting",
			"attempt", attempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (t *Transport) consumeOnce(ctx context.Context) (bool, error) {
	sub := t.client.Subscribe(ctx, t.cfg.Channel)
	defer sub.Close()

	// Forces the SUBSCRIBE handshake so a dead broker fails fast.
	if _, err := sub.Receive(ctx); err != nil {
		return false, crerr.Wrap(err, "subscribe to feed channel")
	}

	delivered := false
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return delivered, crerr.Wrap(err, "receive feed message")
		}
		delivered = true
		t.recordSample()
		t.handler(ctx, []byte(msg.Payload))
	}
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= t.cfg.ReconnectCap {
			return t.cfg.ReconnectCap
		}
	}
	if d > t.cfg.ReconnectCap {
		return t.cfg.ReconnectCap
	}
	return d
}

// recordSample counts a message and logs a throughput sample when either
// the message or the time threshold is crossed.
func (t *Transport) recordSample() {
	t.mu.Lock()
	t.sampleCount++
	elapsed := time.Since(t.sampleStart)
	if t.sampleCount < t.cfg.SampleMessages && elapsed < t.cfg.SampleInterval {
		t.mu.Unlock()
		return
	}
	count := t.sampleCount
	t.sampleCount = 0
	t.sampleStart = time.Now()
	t.mu.Unlock()

	t.logSample(count, elapsed)
}

func (t *Transport) logSample(count int, elapsed time.Duration) {
	if count == 0 || elapsed <= 0 {
		return
	}
	t.logger.Info("feed throughput sample",
		"messages", count,
		"window", elapsed.Round(time.Millisecond).String(),
		"rate_per_sec", float64(count)/elapsed.Seconds(),
	)
}

// Disconnect stops the consume loop and closes the client. It is safe to
// call more than once and flushes a final throughput sample.
func (t *Transport) Disconnect() error {
	var err error
	t.disconnectOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}

		t.mu.Lock()
		count := t.sampleCount
		elapsed := time.Since(t.sampleStart)
		t.sampleCount = 0
		connected := t.connected
		t.connected = false
		t.mu.Unlock()

		if connected {
			t.logSample(count, elapsed)
			t.logger.Info("feed transport disconnected")
		}
		err = t.client.Close()
	})
	return err
}
