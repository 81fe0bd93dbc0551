// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pickbatch/internal/batching"
	"pickbatch/internal/lip/backends"
)

// EnvFile names the variable holding the YAML config path.
const EnvFile = "PICKBATCH_CONFIG"

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Auth      Auth      `yaml:"auth"`
	Store     Store     `yaml:"store"`
	Redis     Redis     `yaml:"redis"`
	Planner   Planner   `yaml:"planner"`
	Solver    Solver    `yaml:"solver"`
	Webhooks  Webhooks  `yaml:"webhooks"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type HTTP struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
}

// Auth selects how bearer tokens are verified: dev (tenant:role tokens),
// hmac (HS256) or jwks (RS256 keys fetched from JWKSURL).
type Auth struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmac_secret"`
	JWKSURL     string `yaml:"jwks_url"`
	TenantClaim string `yaml:"tenant_claim"`
	RoleClaim   string `yaml:"role_claim"`
}

// Store selects persistence. An empty DatabaseURL keeps everything in memory.
type Store struct {
	DatabaseURL string `yaml:"database_url"`
	Migrate     bool   `yaml:"migrate"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Planner struct {
	MaxBatchSize     int    `yaml:"max_batch_size"`
	DefaultStrategy  string `yaml:"default_strategy"`
	WarmStart        string `yaml:"warm_start"`
	SymmetryBreaking bool   `yaml:"symmetry_breaking"`
	// MaxExactOrders rejects exact plans over larger waves. Zero disables
	// the check.
	MaxExactOrders int `yaml:"max_exact_orders"`
}

type Solver struct {
	Backend     string        `yaml:"backend"`
	TimeLimit   time.Duration `yaml:"time_limit"`
	RelativeGap float64       `yaml:"relative_gap"`
}

type Webhooks struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTP:  HTTP{Port: 8080, ReadHeaderTimeout: 5 * time.Second, MaxBodyBytes: 8 << 20},
		Auth:  Auth{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Store: Store{Migrate: true},
		Planner: Planner{
			MaxBatchSize:     14,
			DefaultStrategy:  "greedy",
			SymmetryBreaking: true,
			MaxExactOrders:   120,
		},
		Solver:    Solver{Backend: "pb", TimeLimit: 30 * time.Second},
		Webhooks:  Webhooks{MaxAttempts: 8, PollInterval: time.Second, BatchSize: 50},
		RateLimit: RateLimit{RPS: 5, Burst: 10},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by PICKBATCH_CONFIG, if any.
func FromEnv() (Config, error) { return Load(os.Getenv(EnvFile)) }

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	parse := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	atoi := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*dst = n
			return err
		}
	}

	parse("PORT", atoi(&c.HTTP.Port))
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	parse("DB_MIGRATE", func(v string) error {
		b, err := strconv.ParseBool(v)
		c.Store.Migrate = b
		return err
	})
	str("REDIS_URL", &c.Redis.URL)
	parse("MAX_BATCH_SIZE", atoi(&c.Planner.MaxBatchSize))
	str("DEFAULT_STRATEGY", &c.Planner.DefaultStrategy)
	str("SOLVER_BACKEND", &c.Solver.Backend)
	parse("SOLVER_TIME_LIMIT", func(v string) error {
		d, err := time.ParseDuration(v)
		c.Solver.TimeLimit = d
		return err
	})
	parse("WEBHOOK_MAX_ATTEMPTS", atoi(&c.Webhooks.MaxAttempts))
	parse("RATE_RPS", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.RateLimit.RPS = f
		return err
	})
	parse("RATE_BURST", atoi(&c.RateLimit.Burst))
	return errors.Join(errs...)
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.HTTP.Port > 0 && c.HTTP.Port < 65536, "http.port %d out of range", c.HTTP.Port)
	check(c.HTTP.MaxBodyBytes > 0, "http.max_body_bytes must be positive")
	switch c.Auth.Mode {
	case "dev", "jwks":
	case "hmac":
		check(c.Auth.HMACSecret != "", "auth.hmac_secret is required in hmac mode")
	default:
		check(false, "auth.mode %q is not dev, hmac or jwks", c.Auth.Mode)
	}
	check(c.Planner.MaxBatchSize >= 1, "planner.max_batch_size must be at least 1")
	if _, err := batching.ParseStrategy(c.Planner.DefaultStrategy); err != nil {
		errs = append(errs, fmt.Errorf("planner.default_strategy: %w", err))
	}
	if c.Planner.WarmStart != "" {
		ws, err := batching.ParseStrategy(c.Planner.WarmStart)
		check(err == nil && ws != batching.StrategyExact, "planner.warm_start %q is not a heuristic strategy", c.Planner.WarmStart)
	}
	if _, err := backends.New(c.Solver.Backend); err != nil {
		errs = append(errs, fmt.Errorf("solver.backend: %w", err))
	}
	check(c.Planner.MaxExactOrders >= 0, "planner.max_exact_orders must not be negative")
	check(c.Solver.TimeLimit >= 0, "solver.time_limit must not be negative")
	check(c.Solver.RelativeGap >= 0 && c.Solver.RelativeGap < 1, "solver.relative_gap must be in [0, 1)")
	check(c.Webhooks.MaxAttempts >= 1, "webhooks.max_attempts must be at least 1")
	check(c.Webhooks.PollInterval > 0, "webhooks.poll_interval must be positive")
	check(c.Webhooks.BatchSize >= 1, "webhooks.batch_size must be at least 1")
	check(c.RateLimit.RPS >= 0, "rate_limit.rps must not be negative")
	check(c.RateLimit.Burst >= 0, "rate_limit.burst must not be negative")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (h HTTP) Addr() string { return ":" + strconv.Itoa(h.Port) }
