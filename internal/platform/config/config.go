package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Validator captures the agent process configuration.
type Validator struct {
	HubURL            string
	IP                string
	Version           string
	KeyFile           string
	PrivateKey        string
	ProbeTimeout      time.Duration
	Reconnect         Reconnect
	CallbackTTL       time.Duration
	HealthLogInterval time.Duration
	OpsAddr           string // empty disables /healthz and /metrics
	Log               Log
}

// Reconnect is the backoff policy between hub sessions. Multiplier 1 with
// jitter 0 gives a fixed delay.
type Reconnect struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// Hub captures the reference hub and record API configuration.
type Hub struct {
	HubAddr          string
	APIAddr          string
	JWTPublicKey     string
	JWTSigningKey    string
	JWTDevKey        bool // JWTSigningKey is DevSigningKey
	DispatchInterval time.Duration
	ResultTTL        time.Duration
	FrontendURL      string
	DatabaseURL      string
	Redis            RedisConfig
	Kafka            KafkaConfig
	Log              Log
}

// RedisConfig configures the optional validator identity registry.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdentityTTL  time.Duration
}

// KafkaConfig configures the optional tick event stream.
type KafkaConfig struct {
	Brokers    []string
	TicksTopic string
	Partitions int32
}

// ValidatorFromEnv builds the agent config from environment variables so main stays lean.
func ValidatorFromEnv() (Validator, error) {
	e := envReader{lookup: os.LookupEnv}
	cfg := Validator{
		HubURL:     e.str("HUB_URL", "ws://localhost:8081"),
		IP:         e.str("VALIDATOR_IP", "127.0.0.1"),
		Version:    e.str("VALIDATOR_VERSION", "1.0.0"),
		KeyFile:    e.str("VALIDATOR_KEY_FILE", ""),
		PrivateKey: e.str("VALIDATOR_PRIVATE_KEY", ""),
		OpsAddr:    e.optional("OPS_ADDR", ":9100"),
		Log: Log{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
		ProbeTimeout:      e.duration("PROBE_TIMEOUT", 10*time.Second),
		CallbackTTL:       e.duration("CALLBACK_TTL", 30*time.Second),
		HealthLogInterval: e.duration("HEALTH_LOG_INTERVAL", 30*time.Second),
		Reconnect: Reconnect{
			InitialDelay: e.duration("RECONNECT_INITIAL_DELAY", 5*time.Second),
			MaxDelay:     e.duration("RECONNECT_MAX_DELAY", 2*time.Minute),
			Multiplier:   e.float("RECONNECT_MULTIPLIER", 2),
			Jitter:       e.float("RECONNECT_JITTER", 0.2),
		},
	}
	if err := e.err(); err != nil {
		return Validator{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Validator{}, err
	}
	return cfg, nil
}

// Validate rejects settings the agent cannot run with.
func (c Validator) Validate() error {
	if c.HubURL == "" {
		return fmt.Errorf("HUB_URL is required")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive")
	}
	if c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect delays must be positive and RECONNECT_MAX_DELAY >= RECONNECT_INITIAL_DELAY")
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("RECONNECT_MULTIPLIER must be >= 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		return fmt.Errorf("RECONNECT_JITTER must be in [0, 1)")
	}
	return nil
}

// DevSigningKey is the HS256 secret used when neither JWT key is configured.
// Anyone can mint tokens with it.
const DevSigningKey = "dev-secret-key-change-in-production"

// HubFromEnv builds the hub config from environment variables.
func HubFromEnv() (Hub, error) {
	e := envReader{lookup: os.LookupEnv}
	jwtSigningKey := e.str("JWT_SIGNING_KEY", "")
	jwtPublicKey := e.str("JWT_PUBLIC_KEY", "")
	devKey := jwtSigningKey == "" && jwtPublicKey == ""
	if devKey {
		jwtSigningKey = DevSigningKey
	}
	cfg := Hub{
		HubAddr:          e.str("HUB_ADDR", ":8081"),
		APIAddr:          e.str("API_ADDR", ":8080"),
		JWTPublicKey:     jwtPublicKey,
		JWTSigningKey:    jwtSigningKey,
		JWTDevKey:        devKey,
		DispatchInterval: e.duration("DISPATCH_INTERVAL", time.Minute),
		ResultTTL:        e.duration("RESULT_TTL", 2*time.Minute),
		FrontendURL:      e.str("FRONTEND_URL", "http://localhost:3000"),
		DatabaseURL:      e.str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			IdentityTTL:  e.duration("VALIDATOR_IDENTITY_TTL", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    e.list("KAFKA_BROKERS"),
			TicksTopic: e.str("KAFKA_TICKS_TOPIC", "uptime.ticks"),
			Partitions: int32(e.int("KAFKA_TICKS_PARTITIONS", 1)),
		},
		Log: Log{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
	}
	if err := e.err(); err != nil {
		return Hub{}, err
	}
	if cfg.DispatchInterval <= 0 {
		return Hub{}, fmt.Errorf("DISPATCH_INTERVAL must be positive")
	}
	return cfg, nil
}

// envReader collects parse errors so callers report all of them at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// optional is like str but keeps an explicitly empty value, so a variable
// set to "" can switch a feature off.
func (e *envReader) optional(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (e *envReader) list(key string) []string {
	v := e.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(e.errs, "; "))
}
