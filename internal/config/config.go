package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Jobs      JobsConfig
	Signature SignatureConfig
	LogLevel  slog.Level
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// AMQPConfig is disabled when URL is empty.
type AMQPConfig struct {
	URL   string
	Queue string
}

func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

type JobsConfig struct {
	SweepInterval        time.Duration
	DeferredPollInterval time.Duration
	RecheckMinBackoff    time.Duration
	RecheckMaxAttempts   int
	RebuildBatchSize     int
	OrderLockTTL         time.Duration
	// BatchWorkers is how many order partitions a batch processes in
	// parallel.
	BatchWorkers int
}

type SignatureConfig struct {
	DateDistinguishing []string
	// LocaleTablePath is an optional JSON file of extra locale aliases.
	LocaleTablePath string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
	}

	serverCfg := ServerConfig{
		Host: env("SERVER_HOST", "localhost"),
		Port: envInt("SERVER_PORT", 8080, fail),
	}

	postgresCfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     env("POSTGRES_HOST", "localhost"),
		Port:     envInt("POSTGRES_PORT", 5432, fail),
		SSLMode:  env("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(envInt("POSTGRES_MAX_CONNS", 0, fail)),
	}

	for key, v := range map[string]string{
		"POSTGRES_USER":     postgresCfg.User,
		"POSTGRES_PASSWORD": postgresCfg.Password,
		"POSTGRES_DB":       postgresCfg.Name,
	} {
		if v == "" {
			errs = append(errs, "missing "+key)
		}
	}

	redisCfg := RedisConfig{
		Addr:     env("REDIS_ADDR", "localhost:6380"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0, fail),
	}

	amqpCfg := AMQPConfig{
		URL:   os.Getenv("AMQP_URL"),
		Queue: env("AMQP_QUEUE", "order.status_changed"),
	}

	jobsCfg := JobsConfig{
		SweepInterval:        envDuration("SWEEP_INTERVAL", 5*time.Minute, fail),
		DeferredPollInterval: envDuration("DEFERRED_POLL_INTERVAL", 5*time.Second, fail),
		RecheckMinBackoff:    envDuration("RECHECK_MIN_BACKOFF", 30*time.Second, fail),
		RecheckMaxAttempts:   envInt("RECHECK_MAX_ATTEMPTS", 5, fail),
		RebuildBatchSize:     envInt("REBUILD_BATCH_SIZE", 50, fail),
		OrderLockTTL:         envDuration("ORDER_LOCK_TTL", 30*time.Second, fail),
		BatchWorkers:         envInt("BATCH_WORKERS", 4, fail),
	}

	if jobsCfg.RebuildBatchSize <= 0 {
		errs = append(errs, "REBUILD_BATCH_SIZE must be positive")
	}
	if jobsCfg.BatchWorkers <= 0 {
		errs = append(errs, "BATCH_WORKERS must be positive")
	}
	if jobsCfg.RecheckMaxAttempts <= 0 {
		errs = append(errs, "RECHECK_MAX_ATTEMPTS must be positive")
	}

	sigCfg := SignatureConfig{
		DateDistinguishing: list(env("DATE_DISTINGUISHING_ACTIVITIES", "tournament")),
		LocaleTablePath:    os.Getenv("LOCALE_TABLE_PATH"),
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		fail("LOG_LEVEL", err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %s", op, strings.Join(errs, "; "))
	}

	return &Config{
		Server:    serverCfg,
		Postgres:  postgresCfg,
		Redis:     redisCfg,
		AMQP:      amqpCfg,
		Jobs:      jobsCfg,
		Signature: sigCfg,
		LogLevel:  level,
	}, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, fail func(string, error)) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fail(key, err)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration, fail func(string, error)) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fail(key, err)
		return def
	}
	if d <= 0 {
		fail(key, fmt.Errorf("must be positive, got %s", d))
		return def
	}
	return d
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
