package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	strs "credtrust/pkg/platform/strings"
)

// Ledger storage backends.
const (
	LedgerBackendMemory   = "memory"
	LedgerBackendFile     = "file"
	LedgerBackendSQLite   = "sqlite"
	LedgerBackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Ledger    LedgerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Issuer    IssuerRegistryConfig
	Signing   SigningConfig
	Scoring   ScoringConfig
	RateLimit RateLimitConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration
}

// LedgerConfig selects where blocks are persisted.
type LedgerConfig struct {
	Backend string
	// Path is the file or SQLite database path. Unused by memory and postgres.
	Path string
}

// PostgresConfig configures the shared database/sql pool.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional issuer lookup cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit event sink.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Enabled reports whether a broker list was supplied.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// IssuerRegistryConfig configures issuer API lookups.
type IssuerRegistryConfig struct {
	// Endpoints maps issuer name to its lookup base URL.
	Endpoints        map[string]string
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	CacheTTL         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// SigningConfig holds issuer ed25519 public keys, hex encoded, keyed by issuer name.
type SigningConfig struct {
	PublicKeys map[string]string
}

// RateLimitConfig bounds verification requests per client IP. A zero limit
// disables limiting.
type RateLimitConfig struct {
	VerifyLimit int
	Window      time.Duration
}

// ScoringConfig carries weights, per-method timeout and verdict thresholds.
type ScoringConfig struct {
	Weights        map[string]float64 `yaml:"weights"`
	MethodTimeout  time.Duration      `yaml:"method_timeout"`
	MaxConcurrency int                `yaml:"max_concurrency"`
	Thresholds     Thresholds         `yaml:"thresholds"`
}

// Thresholds are the lower bounds of each verdict band.
type Thresholds struct {
	Verified          int `yaml:"verified"`
	PartiallyVerified int `yaml:"partially_verified"`
	Questionable      int `yaml:"questionable"`
}

// DefaultScoring returns equal weights, a 3s method timeout and 80/60/40 thresholds.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Weights: map[string]float64{
			"file_integrity": 1,
			"signature":      1,
			"qr_code":        1,
			"issuer_api":     1,
			"ledger":         1,
		},
		MethodTimeout:  3 * time.Second,
		MaxConcurrency: 5,
		Thresholds: Thresholds{
			Verified:          80,
			PartiallyVerified: 60,
			Questionable:      40,
		},
	}
}

// FromEnv builds the process config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            getEnv("CREDTRUST_ADDR", ":8080"),
			LogLevel:        getEnv("CREDTRUST_LOG_LEVEL", "info"),
			JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:       getEnv("JWT_ISSUER", "credtrust"),
			JWTAudience:     getEnv("JWT_AUDIENCE", "credtrust-api"),
			ShutdownTimeout: getDuration("CREDTRUST_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Ledger: LedgerConfig{
			Backend: getEnv("LEDGER_BACKEND", LedgerBackendFile),
			Path:    getEnv("LEDGER_PATH", "data/ledger.json"),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    strs.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "credtrust.audit"),
		},
		Issuer: IssuerRegistryConfig{
			Endpoints:        parsePairs(os.Getenv("ISSUER_REGISTRY_ENDPOINTS")),
			Timeout:          getDuration("ISSUER_REGISTRY_TIMEOUT", 2*time.Second),
			RatePerSecond:    getFloat("ISSUER_REGISTRY_RPS", 20),
			Burst:            getInt("ISSUER_REGISTRY_BURST", 5),
			CacheTTL:         getDuration("ISSUER_REGISTRY_CACHE_TTL", 5*time.Minute),
			FailureThreshold: getInt("ISSUER_REGISTRY_FAILURE_THRESHOLD", 5),
			Cooldown:         getDuration("ISSUER_REGISTRY_COOLDOWN", 30*time.Second),
		},
		Signing: SigningConfig{
			PublicKeys: parsePairs(os.Getenv("ISSUER_SIGNING_KEYS")),
		},
		Scoring:   DefaultScoring(),
		RateLimit: RateLimitConfig{
			VerifyLimit: getInt("RATE_LIMIT_VERIFY", 60),
			Window:      getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	switch cfg.Ledger.Backend {
	case LedgerBackendMemory, LedgerBackendFile, LedgerBackendSQLite:
	case LedgerBackendPostgres:
		if cfg.Postgres.DSN == "" {
			return Config{}, fmt.Errorf("LEDGER_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.Ledger.Backend)
	}

	if path := os.Getenv("CREDTRUST_SCORING_FILE"); path != "" {
		scoring, err := LoadScoringFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Scoring = scoring
	}
	if timeout := getDuration("SCORING_METHOD_TIMEOUT", 0); timeout > 0 {
		cfg.Scoring.MethodTimeout = timeout
	}

	return cfg, nil
}

// LoadScoringFile reads scoring overrides from YAML. Fields absent from the
// file keep their defaults; a weights map replaces the default weights.
func LoadScoringFile(path string) (ScoringConfig, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return ScoringConfig{}, fmt.Errorf("read scoring file: %w", err)
	}
	return ParseScoring(raw)
}

// ParseScoring decodes a YAML scoring document over the defaults.
func ParseScoring(raw []byte) (ScoringConfig, error) {
	var doc struct {
		Weights        map[string]float64 `yaml:"weights"`
		MethodTimeout  string             `yaml:"method_timeout"`
		MaxConcurrency int                `yaml:"max_concurrency"`
		Thresholds     *Thresholds        `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ScoringConfig{}, fmt.Errorf("parse scoring file: %w", err)
	}

	cfg := DefaultScoring()
	if doc.Weights != nil {
		cfg.Weights = doc.Weights
	}
	if doc.MethodTimeout != "" {
		d, err := time.ParseDuration(doc.MethodTimeout)
		if err != nil {
			return ScoringConfig{}, fmt.Errorf("parse method_timeout: %w", err)
		}
		cfg.MethodTimeout = d
	}
	if doc.MaxConcurrency > 0 {
		cfg.MaxConcurrency = doc.MaxConcurrency
	}
	if doc.Thresholds != nil {
		cfg.Thresholds = *doc.Thresholds
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// parsePairs reads "a=x,b=y" into a map. Malformed entries are ignored.
func parsePairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strs.SplitList(raw, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
