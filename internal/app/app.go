package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/riskibarqy/matchlive/internal/config"
	"github.com/riskibarqy/matchlive/internal/domain/match"
	"github.com/riskibarqy/matchlive/internal/infrastructure/broker/redisfeed"
	"github.com/riskibarqy/matchlive/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/matchlive/internal/infrastructure/repository/postgres"
	idgen "github.com/riskibarqy/matchlive/internal/platform/id"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
	"github.com/riskibarqy/matchlive/internal/platform/resilience"
	"github.com/riskibarqy/matchlive/internal/usecase"
)

// App wires the ingestion pipeline: feed transport, orchestrator, write
// queue, event detector and the outbound event stream.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	db          *sqlx.DB
	queue       *usecase.WriteQueue
	detector    *usecase.Detector
	bus         *usecase.EventBus
	ingest      *usecase.IngestService
	transport   *redisfeed.Transport
	eventStream *redisfeed.EventStream
	unsubscribe func()
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	a := &App{cfg: cfg, logger: logger}

	var repo match.Repository
	if cfg.InMemoryStore {
		repo = memory.NewLiveStateRepository()
		logger.Info("using in-memory live state store")
	} else {
		db, err := openDB(cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
		repo = postgres.NewLiveStateRepository(db)
	}

	queue, err := usecase.NewWriteQueue(usecase.WriteQueueConfig{
		BatchSize:     cfg.WriteQueueBatchSize,
		FlushInterval: cfg.WriteQueueFlushInterval,
		Workers:       cfg.WriteQueueWorkers,
	}, repo, logger)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("build write queue: %w", err)
	}
	a.queue = queue

	a.detector = usecase.NewDetector(usecase.DetectorConfig{
		SuppressWindow: cfg.DedupSuppressWindow,
		TTL:            cfg.DedupTTL,
		SweepInterval:  cfg.DedupSweepInterval,
	}, idgen.NewRandomGenerator(), logger)

	a.bus = usecase.NewEventBus(logger)

	ingest, err := usecase.NewIngestService(usecase.IngestConfig{
		EndedKeepalive:    cfg.EndedKeepalive,
		GuardWindow:       cfg.FreshnessGuardWindow,
		TimelineScanDepth: cfg.TimelineScanDepth,
	}, repo, queue, a.detector, a.bus, logger)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("build ingest service: %w", err)
	}
	a.ingest = ingest

	transport, err := redisfeed.NewTransport(redisfeed.TransportConfig{
		Addr:           cfg.FeedAddr,
		Password:       cfg.FeedPassword,
		DB:             cfg.FeedDB,
		Channel:        cfg.FeedChannel,
		ConnectTimeout: cfg.FeedConnectTimeout,
		ReconnectBase:  cfg.FeedReconnectBase,
		ReconnectCap:   cfg.FeedReconnectCap,
		MaxAttempts:    cfg.FeedMaxReconnects,
		SampleInterval: cfg.FeedSampleInterval,
		SampleMessages: cfg.FeedSampleMessages,
	}, ingest.HandlePayload, logger)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("build feed transport: %w", err)
	}
	a.transport = transport

	if cfg.EventStreamEnabled {
		a.eventStream = redisfeed.NewEventStream(redisfeed.EventStreamConfig{
			Addr:           cfg.FeedAddr,
			Password:       cfg.FeedPassword,
			DB:             cfg.FeedDB,
			Stream:         cfg.EventStreamName,
			MaxLen:         cfg.EventStreamMaxLen,
			PublishTimeout: cfg.EventStreamTimeout,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled: cfg.EventStreamCircuitEnabled,
			},
		}, logger)
		a.unsubscribe = a.bus.Subscribe(a.eventStream.Handle)
	}

	return a, nil
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)

	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Start connects the transport and begins consuming the feed.
func (a *App) Start(ctx context.Context) error {
	a.detector.Start()
	a.queue.Start()
	if err := a.transport.Connect(ctx); err != nil {
		return err
	}
	return nil
}

// Fatal surfaces an unrecoverable transport failure.
func (a *App) Fatal() <-chan error {
	return a.transport.Fatal()
}

// Shutdown stops intake first, then drains pending writes so nothing
// accepted from the feed is lost.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := a.transport.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}

	a.queue.Stop(ctx)
	a.detector.Stop()
	a.ingest.Close()

	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.bus.Close()

	if a.eventStream != nil {
		if err := a.eventStream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) closePartial() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
