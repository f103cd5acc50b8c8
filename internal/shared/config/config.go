package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	KurrentDB    KurrentDBConfig    `yaml:"kurrentdb"`
	Redis        RedisConfig        `yaml:"redis"`
	Auth         AuthConfig         `yaml:"auth"`
	Scorer       ScorerConfig       `yaml:"scorer"`
	Evidence     EvidenceConfig     `yaml:"evidence"`
	Verification VerificationConfig `yaml:"verification"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Notification NotificationConfig `yaml:"notification"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	Env             string        `yaml:"env"              env:"ENV"                     env-default:"development"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"  env:"SERVER_ALLOWED_ORIGINS"  env-default:"*" env-separator:","`
}

// LogConfig selects the slog handler. Format is "json" or "text".
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"  env:"DB_ENABLED"  env-default:"false"`
	Host     string `yaml:"host"     env:"DB_HOST"     env-default:"localhost"`
	Port     int    `yaml:"port"     env:"DB_PORT"     env-default:"5432"`
	User     string `yaml:"user"     env:"DB_USER"     env-default:"grievance"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"grievance"`
	Database string `yaml:"name"     env:"DB_NAME"     env-default:"grievance"`
	SSLMode  string `yaml:"sslmode"  env:"DB_SSLMODE"  env-default:"disable"`
	MaxConns int32  `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"25"`
	MinConns int32  `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
// When disabled, events stay in-process.
type KurrentDBConfig struct {
	Enabled  bool   `yaml:"enabled"  env:"KURRENTDB_ENABLED"  env-default:"false"`
	Host     string `yaml:"host"     env:"KURRENTDB_HOST"     env-default:"localhost"`
	Port     int    `yaml:"port"     env:"KURRENTDB_PORT"     env-default:"2113"`
	Insecure bool   `yaml:"insecure" env:"KURRENTDB_INSECURE" env-default:"true"`
	Username string `yaml:"username" env:"KURRENTDB_USERNAME"`
	Password string `yaml:"password" env:"KURRENTDB_PASSWORD"`
}

// RedisConfig backs the shared duplicate index. When disabled the index is in memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"  env:"REDIS_ENABLED"  env-default:"false"`
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"     env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
	Key      string `yaml:"key"      env:"REDIS_INDEX_KEY" env-default:"gg:evidence:fingerprints"`
}

type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"    env:"AUTH_ENABLED"    env-default:"false"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"      env-default:"dev-secret-change-in-prod"`
}

// ScorerConfig configures the external authenticity classifier.
type ScorerConfig struct {
	URL        string        `yaml:"url"         env:"SCORER_URL"        env-default:"https://api.sightengine.com/1.0/check.json"`
	APIUser    string        `yaml:"api_user"    env:"SCORER_API_USER"`
	APISecret  string        `yaml:"api_secret"  env:"SCORER_API_SECRET"`
	Model      string        `yaml:"model"       env:"SCORER_MODEL"      env-default:"genai"`
	Timeout    time.Duration `yaml:"timeout"     env:"SCORER_TIMEOUT"    env-default:"10s"`
	RatePerSec float64       `yaml:"rate_per_sec" env:"SCORER_RATE"      env-default:"5"`
	Burst      int           `yaml:"burst"       env:"SCORER_BURST"      env-default:"5"`
}

type EvidenceConfig struct {
	AIThreshold               float64       `yaml:"ai_threshold"                 env:"EVIDENCE_AI_THRESHOLD"          env-default:"0.5"`
	LocationRadiusMeters      float64       `yaml:"location_radius_m"            env:"EVIDENCE_LOCATION_RADIUS_M"     env-default:"500"`
	StalenessWindow           time.Duration `yaml:"staleness"                    env:"EVIDENCE_STALENESS"             env-default:"24h"`
	SimilarityThreshold       float64       `yaml:"similarity"                   env:"EVIDENCE_SIMILARITY"            env-default:"0.9"`
	WarningPenalty            float64       `yaml:"warning_penalty"              env:"EVIDENCE_WARNING_PENALTY"       env-default:"0.1"`
	RequireEXIF               bool          `yaml:"require_exif"                 env:"EVIDENCE_REQUIRE_EXIF"          env-default:"false"`
	ValidationTimeout         time.Duration `yaml:"validation_timeout"           env:"EVIDENCE_VALIDATION_TIMEOUT"    env-default:"2m"`
	RejectUnchangedAfterPhoto bool          `yaml:"reject_unchanged_after_photo" env:"EVIDENCE_REJECT_UNCHANGED_AFTER" env-default:"true"`
	MaxUploadBytes            int64         `yaml:"max_upload_bytes"             env:"EVIDENCE_MAX_UPLOAD_BYTES"      env-default:"10485760"`
}

// VerificationConfig holds crowd consensus thresholds.
type VerificationConfig struct {
	HighVotes   int           `yaml:"high_votes"   env:"VERIFICATION_HIGH_VOTES"   env-default:"3"`
	MediumVotes int           `yaml:"medium_votes" env:"VERIFICATION_MEDIUM_VOTES" env-default:"5"`
	LowVotes    int           `yaml:"low_votes"    env:"VERIFICATION_LOW_VOTES"    env-default:"8"`
	NoMargin    int           `yaml:"no_margin"    env:"VERIFICATION_NO_MARGIN"    env-default:"1"`
	Window      time.Duration `yaml:"window"       env:"VERIFICATION_WINDOW"       env-default:"720h"`
}

type LifecycleConfig struct {
	ArchiveAfter  time.Duration `yaml:"archive_after"  env:"LIFECYCLE_ARCHIVE_AFTER"  env-default:"720h"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"LIFECYCLE_SWEEP_INTERVAL" env-default:"1m"`
}

type RateLimitConfig struct {
	VotesPerSecond int `yaml:"votes_per_second" env:"RATE_LIMIT_VOTES_RPS"   env-default:"1"`
	VoteBurst      int `yaml:"vote_burst"       env:"RATE_LIMIT_VOTES_BURST" env-default:"5"`
}

// NotificationConfig sizes the outbound notification worker pool.
type NotificationConfig struct {
	Enabled       bool          `yaml:"enabled"        env:"NOTIFY_ENABLED"        env-default:"true"`
	Workers       int           `yaml:"workers"        env:"NOTIFY_WORKERS"        env-default:"4"`
	BufferSize    int           `yaml:"buffer_size"    env:"NOTIFY_BUFFER_SIZE"    env-default:"1000"`
	RetryAttempts int           `yaml:"retry_attempts" env:"NOTIFY_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay"    env:"NOTIFY_RETRY_DELAY"    env-default:"30s"`
}

// IsProduction reports whether the server runs with production settings.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}
