package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/protect"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type APIKey struct {
	ID       string            `yaml:"id"`
	Secret   string            `yaml:"secret"`
	Metadata map[string]string `yaml:"metadata"`
}

type Auth struct {
	Header string   `yaml:"header"`
	Keys   []APIKey `yaml:"keys"`
}

// Override replaces individual limiter or breaker parameters of the preset.
// Unset fields keep the preset value.
type Override struct {
	Capacity         *int     `yaml:"capacity"`
	RefillRate       *float64 `yaml:"refill_rate"`
	FailureThreshold *int     `yaml:"failures"`
	SuccessThreshold *int     `yaml:"successes"`
	TimeoutMS        *int     `yaml:"timeout_ms"`
}

type Protection struct {
	Preset        string                   `yaml:"preset"`
	EnableMetrics *bool                    `yaml:"enable_metrics"`
	EnableLogging *bool                    `yaml:"enable_logging"`
	Overrides     map[action.Kind]Override `yaml:"overrides"`
}

// Action binds a kind to the command that performs it.
type Action struct {
	Command   []string `yaml:"command"`
	TimeoutMS int      `yaml:"timeout_ms"`
}

type Root struct {
	Server        Server                 `yaml:"server"`
	Observability Observability          `yaml:"observability"`
	Auth          Auth                   `yaml:"auth"`
	Protection    Protection             `yaml:"protection"`
	Actions       map[action.Kind]Action `yaml:"actions"`
}

// envOverrides are the settings that may be replaced through TAMPERGUARD_*
// variables. Empty values leave the file's setting alone.
type envOverrides struct {
	Addr           string `env:"SERVER_ADDR"`
	LogLevel       string `env:"OBS_LOG_LEVEL"`
	PrometheusPath string `env:"OBS_PROMETHEUS_PATH"`
	Preset         string `env:"PROTECTION_PRESET"`
	EnableMetrics  *bool  `env:"PROTECTION_ENABLE_METRICS"`
	EnableLogging  *bool  `env:"PROTECTION_ENABLE_LOGGING"`
}

func (o envOverrides) apply(cfg *Root) {
	if o.Addr != "" {
		cfg.Server.Addr = o.Addr
	}
	if o.LogLevel != "" {
		cfg.Observability.LogLevel = o.LogLevel
	}
	if o.PrometheusPath != "" {
		cfg.Observability.PrometheusPath = o.PrometheusPath
	}
	if o.Preset != "" {
		cfg.Protection.Preset = o.Preset
	}
	if o.EnableMetrics != nil {
		cfg.Protection.EnableMetrics = o.EnableMetrics
	}
	if o.EnableLogging != nil {
		cfg.Protection.EnableLogging = o.EnableLogging
	}
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
} // default 1MB

func (a Action) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// ProtectorConfig resolves the preset and applies the per-kind overrides.
func (p Protection) ProtectorConfig() (protect.Config, error) {
	cfg, err := protect.Preset(p.Preset)
	if err != nil {
		return protect.Config{}, err
	}
	if p.EnableMetrics != nil {
		cfg.EnableMetrics = *p.EnableMetrics
	}
	if p.EnableLogging != nil {
		cfg.EnableLogging = *p.EnableLogging
	}

	for kind, o := range p.Overrides {
		pol := cfg.RateLimiter[kind]
		if o.Capacity != nil {
			pol.Capacity = *o.Capacity
		}
		if o.RefillRate != nil {
			pol.RefillRate = *o.RefillRate
		}
		cfg.RateLimiter[kind] = pol

		s := cfg.CircuitBreaker[kind]
		if o.FailureThreshold != nil {
			s.FailureThreshold = *o.FailureThreshold
		}
		if o.SuccessThreshold != nil {
			s.SuccessThreshold = *o.SuccessThreshold
		}
		if o.TimeoutMS != nil {
			s.Timeout = time.Duration(*o.TimeoutMS) * time.Millisecond
		}
		cfg.CircuitBreaker[kind] = s
	}

	if err := cfg.Validate(); err != nil {
		return protect.Config{}, err
	}
	return cfg, nil
}

// Load reads the YAML file at path, applies TAMPERGUARD_* environment
// overrides and fills defaults.
func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Root, error) {
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ov, err := env.ParseAsWithOptions[envOverrides](env.Options{Prefix: "TAMPERGUARD_"})
	if err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	ov.apply(&cfg)

	for k, a := range cfg.Actions {
		if a.TimeoutMS <= 0 {
			a.TimeoutMS = 10000
			cfg.Actions[k] = a
		}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:9477"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Protection.Preset == "" {
		cfg.Protection.Preset = protect.PresetDefault
	}

	if _, err := cfg.Protection.ProtectorConfig(); err != nil {
		return nil, fmt.Errorf("protection: %w", err)
	}
	return &cfg, nil
}
