// ABOUTME: Configuration loading and parsing for relay-gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete relay-gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Logging LoggingConfig `yaml:"logging"`
	Client  ClientConfig  `yaml:"client"`
}

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// AllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuthConfig holds authentication configuration. An empty jwt_secret
// disables connection auth entirely.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RuntimeConfig holds the remote agent runtime invocation surface.
type RuntimeConfig struct {
	// Region the runtime endpoint and signing scope live in.
	Region string `yaml:"region"`

	// Endpoint overrides the derived runtime base URL (tests, local stubs).
	Endpoint string `yaml:"endpoint"`

	// ParameterPrefix is where runtime identifiers live in the parameter
	// store; the parameter for an agent is prefix + agent name.
	ParameterPrefix string `yaml:"parameter_prefix"`

	// DefaultAgent handles messages that name no agent.
	DefaultAgent string `yaml:"default_agent"`

	// InvokePaths are candidate invocation path templates tried in order,
	// each with one %s for the escaped runtime identifier. Empty means
	// the built-in default path.
	InvokePaths []string `yaml:"invoke_paths"`

	// InvokeTimeout bounds one runtime invocation. Agent turns can run
	// for minutes; keep this generous.
	InvokeTimeout    time.Duration `yaml:"-"`
	InvokeTimeoutRaw string        `yaml:"invoke_timeout"`
}

// EndpointURL returns the runtime base URL, deriving it from the region
// when no explicit endpoint is configured.
func (r RuntimeConfig) EndpointURL() string {
	if r.Endpoint != "" {
		return strings.TrimSuffix(r.Endpoint, "/")
	}
	return fmt.Sprintf("https://bedrock-agentcore.%s.amazonaws.com", r.Region)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig holds settings for the terminal chat client.
type ClientConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	ReconnectInterval    time.Duration `yaml:"-"`
	ReconnectIntervalRaw string        `yaml:"reconnect_interval"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Runtime.Region == "" && c.Runtime.Endpoint == "" {
		return fmt.Errorf("runtime.region is required (or set runtime.endpoint)")
	}

	if c.Runtime.DefaultAgent == "" {
		return fmt.Errorf("runtime.default_agent is required")
	}

	for _, tmpl := range c.Runtime.InvokePaths {
		if strings.Count(tmpl, "%s") != 1 {
			return fmt.Errorf("runtime.invoke_paths entry %q must contain exactly one %%s", tmpl)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Runtime.InvokeTimeoutRaw != "" {
		cfg.Runtime.InvokeTimeout, err = time.ParseDuration(cfg.Runtime.InvokeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing invoke_timeout %q: %w", cfg.Runtime.InvokeTimeoutRaw, err)
		}
	}

	if cfg.Client.ReconnectIntervalRaw != "" {
		cfg.Client.ReconnectInterval, err = time.ParseDuration(cfg.Client.ReconnectIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_interval %q: %w", cfg.Client.ReconnectIntervalRaw, err)
		}
	}

	return nil
}
