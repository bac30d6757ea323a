// Package config provides YAML configuration parsing for devicewatch.
//
// This package enables running devicewatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 3000
//	database: ${DEVICEWATCH_DB:-local.db}
//	sweep_interval: 30s
//	concurrency: 4
//
//	probe:
//	  method: icmp
//	  timeout: 2s
//
//	jwt_secret: ${JWT_SECRET}
//
//	nats:
//	  url: nats://localhost:4222
//	  subject_prefix: devices.status
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minSweepInterval prevents accidental flooding of the network with probes.
	minSweepInterval = 1 * time.Second

	// minProbeTimeout is the shortest probe timeout accepted.
	minProbeTimeout = 100 * time.Millisecond

	defaultPort          = 3000
	defaultDatabase      = "local.db"
	defaultSweepInterval = 30 * time.Second
	defaultProbeTimeout  = 2 * time.Second
	defaultConcurrency   = 1
	defaultJWTSecret     = "${JWT_SECRET:-TI}"
	defaultSubjectPrefix = "devices.status"
)

// Probe methods.
const (
	ProbeICMP = "icmp"
	ProbeTCP  = "tcp"
	ProbeHTTP = "http"
)

// Config is the root configuration structure for devicewatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP API port. Defaults to 3000.
	Port int `yaml:"port"`

	// Database is the SQLite file path. Defaults to "local.db".
	// Supports environment variable substitution.
	Database string `yaml:"database"`

	// SweepInterval is the time between sweeps. Defaults to 30s.
	SweepInterval Duration `yaml:"sweep_interval"`

	// SweepTimeout caps a whole sweep. Defaults to the sweep interval.
	SweepTimeout Duration `yaml:"sweep_timeout"`

	// SweepOnStart runs a sweep as soon as the service starts. Defaults to true.
	SweepOnStart *bool `yaml:"sweep_on_start"`

	// Concurrency is the number of devices probed at once. Defaults to 1.
	Concurrency int `yaml:"concurrency"`

	Probe ProbeConfig `yaml:"probe"`

	// JWTSecret signs API tokens. Defaults to ${JWT_SECRET:-TI}.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of issued tokens. Defaults to 24h.
	TokenTTL Duration `yaml:"token_ttl"`

	NATS NATSConfig `yaml:"nats"`
}

// ProbeConfig selects and tunes the reachability probe.
type ProbeConfig struct {
	// Method is "icmp" (default), "tcp" or "http".
	Method string `yaml:"method"`

	// Timeout bounds a single probe. Defaults to 2s.
	Timeout Duration `yaml:"timeout"`

	// Privileged uses raw ICMP sockets, which need CAP_NET_RAW.
	Privileged bool `yaml:"privileged"`

	// Port is dialled by the tcp and http methods. Defaults to 80.
	Port int `yaml:"port"`
}

// NATSConfig enables publishing status changes to NATS when URL is set.
type NATSConfig struct {
	// URL of the NATS server. Supports environment variable substitution.
	URL string `yaml:"url"`

	// SubjectPrefix is prepended to the device id. Defaults to "devices.status".
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Enabled reports whether NATS publishing is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// RunOnStart reports whether a sweep should run immediately on start.
func (c *Config) RunOnStart() bool {
	return c.SweepOnStart == nil || *c.SweepOnStart
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return Parse(nil)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in database, jwt_secret and nats.url.
// Defaults are applied for every omitted field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(defaultSweepInterval)
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Probe.Method == "" {
		c.Probe.Method = ProbeICMP
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(defaultProbeTimeout)
	}
	if c.JWTSecret == "" {
		c.JWTSecret = defaultJWTSecret
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = defaultSubjectPrefix
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.Database, err = expandEnvVars(c.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Database == "" {
		return fmt.Errorf("database: path is required")
	}

	if c.JWTSecret, err = expandEnvVars(c.JWTSecret); err != nil {
		return fmt.Errorf("jwt_secret: %w", err)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret: must not be empty")
	}

	if c.NATS.URL, err = expandEnvVars(c.NATS.URL); err != nil {
		return fmt.Errorf("nats.url: %w", err)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.SweepInterval.Duration() < minSweepInterval {
		return fmt.Errorf("sweep_interval must be at least %s, got %s", minSweepInterval, c.SweepInterval.Duration())
	}
	if c.SweepTimeout.Duration() < 0 {
		return fmt.Errorf("sweep_timeout cannot be negative, got %s", c.SweepTimeout.Duration())
	}
	if c.TokenTTL.Duration() < 0 {
		return fmt.Errorf("token_ttl cannot be negative, got %s", c.TokenTTL.Duration())
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	return c.Probe.validate(c.SweepInterval.Duration())
}

func (p *ProbeConfig) validate(interval time.Duration) error {
	switch p.Method {
	case ProbeICMP:
		if p.Port != 0 {
			return fmt.Errorf("probe.port is not valid with method %q", ProbeICMP)
		}
	case ProbeTCP, ProbeHTTP:
		if p.Privileged {
			return fmt.Errorf("probe.privileged is only valid with method %q", ProbeICMP)
		}
		if p.Port < 0 || p.Port > 65535 {
			return fmt.Errorf("probe.port must be between 1 and 65535, got %d", p.Port)
		}
	default:
		return fmt.Errorf("probe.method must be %q, %q or %q, got %q", ProbeICMP, ProbeTCP, ProbeHTTP, p.Method)
	}

	t := p.Timeout.Duration()
	if t < minProbeTimeout {
		return fmt.Errorf("probe.timeout must be at least %s, got %s", minProbeTimeout, t)
	}
	if t >= interval {
		return fmt.Errorf("probe.timeout (%s) must be shorter than sweep_interval (%s)", t, interval)
	}
	return nil
}
