package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Process roles. "all" runs the HTTP boundary and the ETL consumer in one process.
const (
	RoleAPI = "api"
	RoleETL = "etl"
	RoleAll = "all"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"trivia-pipeline"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	Role                    string        `env:"APP_ROLE" envDefault:"all"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Broker   Broker
	ETL      ETL
	Runtime  Runtime
	Feed     Feed
	Import   Import
	CORS     CORS
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN renders the keyword/value connection string for a single connection.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// PoolDSN is DSN plus the pgxpool sizing parameter.
func (p Postgres) PoolDSN() string {
	return fmt.Sprintf("%s pool_max_conns=%d", p.DSN(), p.MaxConns)
}

// Redis holds cache, attempt counter and feed configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Broker configures the AMQP connection and queue layout.
type Broker struct {
	URL                string        `env:"AMQP_URL,notEmpty"`
	Queue              string        `env:"BROKER_QUEUE" envDefault:"SUBMITTED_QUESTIONS"`
	DeadLetterExchange string        `env:"BROKER_DEAD_LETTER_EXCHANGE" envDefault:"trivia.dlx"`
	PublishTimeout     time.Duration `env:"BROKER_PUBLISH_TIMEOUT" envDefault:"5s"`
	ReconnectMin       time.Duration `env:"BROKER_RECONNECT_MIN" envDefault:"500ms"`
	ReconnectMax       time.Duration `env:"BROKER_RECONNECT_MAX" envDefault:"30s"`
	Prefetch           int           `env:"BROKER_PREFETCH" envDefault:"8"`
}

// ETL tunes the queue consumer.
type ETL struct {
	Workers     int           `env:"ETL_WORKERS" envDefault:"4"`
	MaxAttempts int           `env:"ETL_MAX_ATTEMPTS" envDefault:"5"`
	AttemptTTL  time.Duration `env:"ETL_ATTEMPT_TTL" envDefault:"24h"`
	ConsumerTag string        `env:"ETL_CONSUMER_TAG" envDefault:""`
	RetryDelay  time.Duration `env:"ETL_RETRY_DELAY" envDefault:"1s"`

	// First pause before a failed delivery goes back to the queue; doubles per attempt.
	RequeueDelay    time.Duration `env:"ETL_REQUEUE_DELAY" envDefault:"1s"`
	RequeueDelayMax time.Duration `env:"ETL_REQUEUE_DELAY_MAX" envDefault:"30s"`
}

// Runtime groups retrieval defaults. MaxQuestionCount 0 means no per-request cap.
type Runtime struct {
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	MaxQuestionCount int           `env:"MAX_QUESTION_COUNT" envDefault:"0"`
	CategoryCacheTTL time.Duration `env:"CATEGORY_CACHE_TTL" envDefault:"1m"`
}

// Feed configures the question_added broadcast.
type Feed struct {
	Enabled bool   `env:"FEED_ENABLED" envDefault:"true"`
	Channel string `env:"FEED_CHANNEL" envDefault:"trivia:questions:added"`
}

// Import configures the external question importer used by the seeder and the scheduled import.
// A zero Interval disables the scheduled import.
type Import struct {
	OpenTDBURL   string        `env:"OPENTDB_BASE_URL" envDefault:""`
	TriviaAPIURL string        `env:"TRIVIA_API_BASE_URL" envDefault:""`
	TriviaAPIKey string        `env:"TRIVIA_API_KEY" envDefault:""`
	HTTPTimeout  time.Duration `env:"IMPORT_HTTP_TIMEOUT" envDefault:"6s"`
	Source       string        `env:"IMPORT_SOURCE" envDefault:"opentdb"`
	Amount       int           `env:"IMPORT_AMOUNT" envDefault:"10"`
	Category     string        `env:"IMPORT_CATEGORY" envDefault:""`
	Interval     time.Duration `env:"IMPORT_INTERVAL" envDefault:"0s"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type"`
	MaxAge         int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// RunsAPI reports whether the HTTP boundary should be started.
func (a *App) RunsAPI() bool {
	return a.Role == RoleAPI || a.Role == RoleAll
}

// RunsETL reports whether the queue consumer should be started.
func (a *App) RunsETL() bool {
	return a.Role == RoleETL || a.Role == RoleAll
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *App) validate() error {
	switch a.Role {
	case RoleAPI, RoleETL, RoleAll:
	default:
		return fmt.Errorf("invalid APP_ROLE %q: want api, etl or all", a.Role)
	}
	if a.Runtime.MaxQuestionCount < 0 {
		return fmt.Errorf("MAX_QUESTION_COUNT must not be negative")
	}
	if a.ETL.MaxAttempts <= 0 {
		return fmt.Errorf("ETL_MAX_ATTEMPTS must be positive")
	}
	if a.ETL.RequeueDelayMax < a.ETL.RequeueDelay {
		return fmt.Errorf("ETL_REQUEUE_DELAY_MAX must not be below ETL_REQUEUE_DELAY")
	}
	if a.Broker.ReconnectMax < a.Broker.ReconnectMin {
		return fmt.Errorf("BROKER_RECONNECT_MAX must not be below BROKER_RECONNECT_MIN")
	}
	return nil
}
