// Package config loads server configuration from TALLY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"tally/internal/platform/postgres"
	"tally/internal/platform/sqlite"
	"tally/internal/pseudonym"
	pstrings "tally/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Backend names accepted by the *_BACKEND variables.
var (
	LedgerBackends     = []string{"memory", "redis", "postgres", "sqlite"}
	PublisherBackends  = []string{"memory", "kafka", "redis", "rabbitmq", "chain"}
	RosterBackends     = []string{"memory", "postgres"}
	RevocationBackends = []string{"memory", "redis", "postgres"}
)

type Config struct {
	Environment string
	Server      Server
	Logging     Logging
	Security    Security
	Attendance  Attendance
	Ledger      Ledger
	Publisher   Publisher
	Roster      Roster
	Revocation  Revocation
	Redis       RedisConfig
	Postgres    postgres.Config
	SQLite      sqlite.Config

	warnings []Warning
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	RequestTimeout    time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type Logging struct {
	Level  string // debug | info | warn | error
	Format string // json | text
}

type Security struct {
	// SecretKey derives session salts. Never logged.
	SecretKey         string
	DeviceSigningKey  string
	TokenIssuer       string
	DeviceTokenMaxTTL time.Duration
	// AdminTokenHash is a bcrypt hash of the operator token.
	AdminTokenHash string
}

type Attendance struct {
	PublishConcurrency int
}

type Ledger struct {
	Backend  string
	RedisTTL time.Duration
}

type Publisher struct {
	Backend          string
	AttendanceTopic  string
	TelemetryTopic   string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration

	KafkaBrokers      []string
	KafkaClientID     string
	KafkaPartitions   int
	KafkaReplication  int
	RedisStreamMaxLen int64
	RabbitMQURL       string
	ChainRPCURL       string
	ChainPrivateKey   string
	ChainAnchorAddr   string
}

type Roster struct {
	Backend string
	// File is a YAML seed; with the postgres backend it is imported at startup.
	File string
}

type Revocation struct {
	Backend string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Warning is a non-fatal configuration problem that weakens guarantees.
type Warning struct {
	Key     string
	Message string
}

// Warnings returns the configuration warnings collected while loading.
func (c *Config) Warnings() []Warning {
	return slices.Clone(c.warnings)
}

// FromEnv builds the configuration from the process environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// Load builds the configuration from getenv. It returns every parse and
// validation error joined.
func Load(getenv func(string) string) (*Config, error) {
	e := &env{getenv: getenv}

	cfg := &Config{
		Environment: strings.ToLower(e.str("TALLY_ENV", EnvDevelopment)),
		Server: Server{
			Addr:              e.str("TALLY_ADDR", ":8080"),
			RequestTimeout:    e.duration("TALLY_REQUEST_TIMEOUT", 30*time.Second),
			ReadHeaderTimeout: e.duration("TALLY_READ_HEADER_TIMEOUT", 5*time.Second),
			ShutdownTimeout:   e.duration("TALLY_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: Logging{
			Level:  strings.ToLower(e.str("TALLY_LOG_LEVEL", "info")),
			Format: strings.ToLower(e.str("TALLY_LOG_FORMAT", "json")),
		},
		Security: Security{
			SecretKey:         getenv("TALLY_SECRET_KEY"),
			DeviceSigningKey:  getenv("TALLY_DEVICE_SIGNING_KEY"),
			TokenIssuer:       e.str("TALLY_TOKEN_ISSUER", "tally"),
			DeviceTokenMaxTTL: e.duration("TALLY_DEVICE_TOKEN_MAX_TTL", 30*24*time.Hour),
			AdminTokenHash:    strings.TrimSpace(getenv("TALLY_ADMIN_TOKEN_HASH")),
		},
		Attendance: Attendance{
			PublishConcurrency: e.integer("TALLY_PUBLISH_CONCURRENCY", 8),
		},
		Ledger: Ledger{
			Backend:  strings.ToLower(e.str("TALLY_LEDGER_BACKEND", "memory")),
			RedisTTL: e.duration("TALLY_LEDGER_REDIS_TTL", 0),
		},
		Publisher: Publisher{
			Backend:           strings.ToLower(e.str("TALLY_PUBLISHER_BACKEND", "memory")),
			AttendanceTopic:   e.str("TALLY_TOPIC_ATTENDANCE", "attendance.records"),
			TelemetryTopic:    e.str("TALLY_TOPIC_TELEMETRY", "attendance.telemetry"),
			Timeout:           e.duration("TALLY_PUBLISH_TIMEOUT", 5*time.Second),
			FailureThreshold:  e.integer("TALLY_PUBLISH_FAILURE_THRESHOLD", 5),
			Cooldown:          e.duration("TALLY_PUBLISH_COOLDOWN", 30*time.Second),
			KafkaBrokers:      pstrings.SplitList(getenv("TALLY_KAFKA_BROKERS")),
			KafkaClientID:     e.str("TALLY_KAFKA_CLIENT_ID", "tally"),
			KafkaPartitions:   e.integer("TALLY_KAFKA_PARTITIONS", 3),
			KafkaReplication:  e.integer("TALLY_KAFKA_REPLICATION", 1),
			RedisStreamMaxLen: int64(e.integer("TALLY_REDIS_STREAM_MAXLEN", 0)),
			RabbitMQURL:       getenv("TALLY_RABBITMQ_URL"),
			ChainRPCURL:       getenv("TALLY_CHAIN_RPC_URL"),
			ChainPrivateKey:   getenv("TALLY_CHAIN_PRIVATE_KEY"),
			ChainAnchorAddr:   getenv("TALLY_CHAIN_ANCHOR_ADDRESS"),
		},
		Roster: Roster{
			Backend: strings.ToLower(e.str("TALLY_ROSTER_BACKEND", "memory")),
			File:    getenv("TALLY_ROSTER_FILE"),
		},
		Revocation: Revocation{
			Backend: strings.ToLower(e.str("TALLY_REVOCATION_BACKEND", "memory")),
		},
		Redis: RedisConfig{
			URL:          getenv("TALLY_REDIS_URL"),
			PoolSize:     e.integer("TALLY_REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("TALLY_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("TALLY_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("TALLY_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("TALLY_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: postgres.Config{
			URL:             getenv("TALLY_POSTGRES_URL"),
			MaxOpenConns:    e.integer("TALLY_POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.integer("TALLY_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("TALLY_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		SQLite: sqlite.Config{
			Path: e.str("TALLY_SQLITE_PATH", "./data/tally.db"),
		},
	}

	cfg.applyDefaults()
	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills development keys and records warnings for weakened
// guarantees.
func (c *Config) applyDefaults() {
	production := c.Environment == EnvProduction
	switch {
	case c.Security.SecretKey == "" && !production:
		c.Security.SecretKey = pseudonym.DevelopmentKey
		c.warn("TALLY_SECRET_KEY", "not set; using the built-in development key, pseudonyms are predictable")
	case c.Security.SecretKey == "":
		c.warn("TALLY_SECRET_KEY", "empty; session salts are derivable by anyone")
	case c.Security.SecretKey == pseudonym.DevelopmentKey:
		c.warn("TALLY_SECRET_KEY", "set to the development key")
	case len(c.Security.SecretKey) < 32:
		c.warn("TALLY_SECRET_KEY", "shorter than 32 bytes")
	}
	if c.Security.DeviceSigningKey == "" {
		c.Security.DeviceSigningKey = "tally-development-device-key"
		c.warn("TALLY_DEVICE_SIGNING_KEY", "not set; using a development signing key")
	}
	if c.Security.AdminTokenHash == "" {
		c.warn("TALLY_ADMIN_TOKEN_HASH", "not set; administrative endpoints reject every request")
	}
	if c.Ledger.Backend == "memory" {
		c.warn("TALLY_LEDGER_BACKEND", "memory ledger is lost on restart")
	}
}

func (c *Config) validate() []error {
	var errs []error
	oneOf := func(key, v string, allowed []string) {
		if !slices.Contains(allowed, v) {
			errs = append(errs, fmt.Errorf("%s: %q is not one of %s", key, v, strings.Join(allowed, ", ")))
		}
	}
	require := func(key, v, reason string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required %s", key, reason))
		}
	}

	oneOf("TALLY_ENV", c.Environment, []string{EnvDevelopment, EnvProduction})
	oneOf("TALLY_LOG_LEVEL", c.Logging.Level, []string{"debug", "info", "warn", "error"})
	oneOf("TALLY_LOG_FORMAT", c.Logging.Format, []string{"json", "text"})
	oneOf("TALLY_LEDGER_BACKEND", c.Ledger.Backend, LedgerBackends)
	oneOf("TALLY_PUBLISHER_BACKEND", c.Publisher.Backend, PublisherBackends)
	oneOf("TALLY_ROSTER_BACKEND", c.Roster.Backend, RosterBackends)
	oneOf("TALLY_REVOCATION_BACKEND", c.Revocation.Backend, RevocationBackends)

	if c.UsesRedis() {
		require("TALLY_REDIS_URL", c.Redis.URL, "for redis backends")
	}
	if c.UsesPostgres() {
		require("TALLY_POSTGRES_URL", c.Postgres.URL, "for postgres backends")
	}
	switch c.Publisher.Backend {
	case "kafka":
		if len(c.Publisher.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("TALLY_KAFKA_BROKERS is required for the kafka publisher"))
		}
	case "rabbitmq":
		require("TALLY_RABBITMQ_URL", c.Publisher.RabbitMQURL, "for the rabbitmq publisher")
	case "chain":
		require("TALLY_CHAIN_RPC_URL", c.Publisher.ChainRPCURL, "for the chain publisher")
		require("TALLY_CHAIN_PRIVATE_KEY", c.Publisher.ChainPrivateKey, "for the chain publisher")
	}
	if c.Roster.Backend == "memory" {
		require("TALLY_ROSTER_FILE", c.Roster.File, "for the memory roster")
	}
	if c.Publisher.AttendanceTopic == "" || c.Publisher.TelemetryTopic == "" {
		errs = append(errs, errors.New("publisher topics must not be empty"))
	}
	if c.Attendance.PublishConcurrency < 1 {
		errs = append(errs, errors.New("TALLY_PUBLISH_CONCURRENCY must be at least 1"))
	}
	return errs
}

// UsesRedis reports whether any component needs the Redis client.
func (c *Config) UsesRedis() bool {
	return c.Ledger.Backend == "redis" || c.Publisher.Backend == "redis" || c.Revocation.Backend == "redis"
}

// UsesPostgres reports whether any component needs the PostgreSQL pool.
func (c *Config) UsesPostgres() bool {
	return c.Ledger.Backend == "postgres" || c.Roster.Backend == "postgres" || c.Revocation.Backend == "postgres"
}

func (c *Config) warn(key, msg string) {
	c.warnings = append(c.warnings, Warning{Key: key, Message: msg})
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q", key, v))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q", key, v))
		return def
	}
	return d
}
