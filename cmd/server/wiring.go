package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tally/internal/attendance/ledger"
	"tally/internal/attendance/publish"
	"tally/internal/device/revocation"
	httpapi "tally/internal/http"
	"tally/internal/platform/config"
	"tally/internal/platform/metrics"
	"tally/internal/platform/postgres"
	"tally/internal/platform/redis"
	"tally/internal/platform/sqlite"
	"tally/internal/roster"
	"tally/pkg/platform/circuit"
)

// infra holds shared connections opened for the configured backends.
type infra struct {
	redis   *redis.Client
	pg      *sql.DB
	sqlite  *sql.DB
	writer  *sqlite.Worker
	closers []func()
	log     *slog.Logger
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{log: log}
	var err error

	if cfg.UsesRedis() {
		if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
			return nil, err
		}
		in.onClose(func() { _ = in.redis.Close() })
	}
	if cfg.UsesPostgres() {
		if in.pg, err = postgres.Open(ctx, cfg.Postgres); err != nil {
			in.Close()
			return nil, err
		}
		in.onClose(func() { _ = in.pg.Close() })
		if err := postgres.Migrate(ctx, in.pg); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	if cfg.Ledger.Backend == "sqlite" {
		if in.sqlite, err = sqlite.Open(ctx, cfg.SQLite); err != nil {
			in.Close()
			return nil, err
		}
		in.onClose(func() { _ = in.sqlite.Close() })
		if err := sqlite.Migrate(ctx, in.sqlite); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		in.writer = sqlite.NewWorker(in.sqlite)
		in.onClose(in.writer.Close)
	}
	return in, nil
}

func (in *infra) onClose(fn func()) {
	in.closers = append(in.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}

func (in *infra) registerHealth(h *httpapi.HealthHandler) {
	if in.redis != nil {
		h.AddCheck("redis", in.redis.Health)
	}
	if in.pg != nil {
		h.AddCheck("postgres", func(ctx context.Context) error { return postgres.Health(ctx, in.pg) })
	}
	if in.sqlite != nil {
		h.AddCheck("sqlite", in.sqlite.PingContext)
	}
}

func buildLedger(cfg *config.Config, in *infra) (ledger.Ledger, ledger.Locker, error) {
	switch cfg.Ledger.Backend {
	case "memory":
		return ledger.NewInMemoryLedger(), ledger.NewKeyedLocker(), nil
	case "redis":
		var opts []ledger.RedisLedgerOption
		if cfg.Ledger.RedisTTL > 0 {
			opts = append(opts, ledger.WithTTL(cfg.Ledger.RedisTTL))
		}
		return ledger.NewRedisLedger(in.redis, opts...), ledger.NewRedisLocker(in.redis), nil
	case "postgres":
		return ledger.NewPostgresLedger(in.pg), ledger.NewAdvisoryLocker(in.pg), nil
	case "sqlite":
		// A single writer process owns the file, so an in-process lock suffices.
		return ledger.NewSQLiteLedger(in.sqlite, in.writer), ledger.NewKeyedLocker(), nil
	}
	return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

func buildRoster(ctx context.Context, cfg *config.Config, in *infra) (roster.Store, error) {
	switch cfg.Roster.Backend {
	case "memory":
		store, err := roster.LoadFile(cfg.Roster.File)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		return store, nil
	case "postgres":
		store := roster.NewPostgresStore(in.pg)
		if cfg.Roster.File != "" {
			seed, err := roster.ReadSeedFile(cfg.Roster.File)
			if err != nil {
				return nil, fmt.Errorf("read roster seed: %w", err)
			}
			if err := store.Import(ctx, seed); err != nil {
				return nil, fmt.Errorf("import roster seed: %w", err)
			}
			in.log.Info("roster seed imported", "file", cfg.Roster.File, "classes", len(seed.Classes))
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown roster backend %q", cfg.Roster.Backend)
}

// buildPublisher opens the configured backend and wraps it with the timeout,
// circuit breaker and metrics guard.
func buildPublisher(ctx context.Context, cfg *config.Config, in *infra, router *publish.Router, m *metrics.Metrics, log *slog.Logger) (publish.Publisher, error) {
	pc := cfg.Publisher
	var backend publish.Publisher
	switch pc.Backend {
	case "memory":
		log.Warn("in-memory publisher: published records are not durable")
		backend = publish.NewInMemoryPublisher()
	case "kafka":
		kp, err := publish.NewKafkaPublisher(publish.KafkaConfig{
			Brokers:  pc.KafkaBrokers,
			ClientID: pc.KafkaClientID,
		})
		if err != nil {
			return nil, err
		}
		in.onClose(kp.Close)
		if err := kp.EnsureTopics(ctx, int32(pc.KafkaPartitions), int16(pc.KafkaReplication), router.Topics()...); err != nil {
			return nil, fmt.Errorf("ensure kafka topics: %w", err)
		}
		backend = kp
	case "redis":
		var opts []publish.RedisStreamOption
		if pc.RedisStreamMaxLen > 0 {
			opts = append(opts, publish.WithMaxLen(pc.RedisStreamMaxLen))
		}
		backend = publish.NewRedisStreamPublisher(in.redis, opts...)
	case "rabbitmq":
		rp, err := publish.NewRabbitMQPublisher(publish.RabbitMQConfig{URL: pc.RabbitMQURL, Durable: true}, router.Topics()...)
		if err != nil {
			return nil, err
		}
		in.onClose(func() { _ = rp.Close() })
		backend = rp
	case "chain":
		cp, err := publish.DialChainAnchor(ctx, publish.ChainConfig{
			RPCURL:        pc.ChainRPCURL,
			PrivateKeyHex: pc.ChainPrivateKey,
			AnchorAddress: pc.ChainAnchorAddr,
		})
		if err != nil {
			return nil, err
		}
		in.onClose(cp.Close)
		backend = cp
	default:
		return nil, fmt.Errorf("unknown publisher backend %q", pc.Backend)
	}

	breaker := circuit.New("publisher-"+pc.Backend,
		circuit.WithFailureThreshold(pc.FailureThreshold),
		circuit.WithCooldown(pc.Cooldown),
	)
	return publish.NewGuarded(backend, pc.Backend,
		publish.WithTimeout(pc.Timeout),
		publish.WithBreaker(breaker),
		publish.WithMetrics(publish.NewMetrics(m.Registry)),
		publish.WithLogger(log),
	), nil
}

func buildRevocations(cfg *config.Config, in *infra, m *metrics.Metrics) (revocation.Store, error) {
	switch cfg.Revocation.Backend {
	case "memory":
		return revocation.NewInMemoryStore(), nil
	case "redis":
		latency := promauto.With(m.Registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_revocation_redis_seconds",
			Help:    "Latency of revocation list lookups in Redis",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		})
		return revocation.NewRedisStore(in.redis, revocation.WithLatencyObserver(latency)), nil
	case "postgres":
		return revocation.NewPostgresStore(in.pg), nil
	}
	return nil, fmt.Errorf("unknown revocation backend %q", cfg.Revocation.Backend)
}
