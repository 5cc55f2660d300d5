package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/gradeq/internal/tracing"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

var ErrInvalidBoolInput = fmt.Errorf("%w: input does not meet YAML 1.2 \"Core Schema\" specification", domain.ErrConfig)

type Config struct {
	// Endpoint is the GraphQL URL of the review service.
	Endpoint string `yaml:"endpoint"`
	// Token is the review bot's bearer credential. Never written back to disk.
	Token     string `yaml:"-"`
	Workspace string `yaml:"workspace"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds"`

	PushgatewayURL string `yaml:"pushgatewayUrl"`

	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// LoadConfig reads the YAML file at filePath and applies env overrides.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional is LoadConfig for runs where the file may be absent:
// an empty path or a missing file yields env-only configuration.
func LoadConfigOptional(filePath string) (*Config, error) {
	loadDotEnv()
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		cfg, err := LoadConfig(filePath)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// loadDotEnv reads a local .env if present. Variables already set win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REVIEW_END_POINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("REVIEW_BOT_USER_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("GITHUB_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("GRADEQ_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GRADEQ_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("GRADEQ_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("GRADEQ_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("GRADEQ_PUSHGATEWAY_URL"); v != "" {
		c.PushgatewayURL = v
	}
	if v := os.Getenv("GRADEQ_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = tracing.ParseBool(v)
	}
	if v := os.Getenv("GRADEQ_TRACE_SAMPLE_RATIO"); v != "" {
		c.Tracing.SampleRatio = tracing.ParseSampleRatio(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Env == "" {
		c.Env = "ci"
	}
	if c.RequestTimeoutSeconds < 0 {
		c.RequestTimeoutSeconds = 0
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "gradeq"
	}
}

// Validate checks the local settings. The endpoint is not checked here: a
// missing endpoint only matters when a mutation is sent, and then it is a
// remote failure.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logLevel must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text", "pretty":
	default:
		errs = append(errs, "logFormat must be one of json, text, pretty")
	}
	if c.PushgatewayURL != "" {
		u, err := url.Parse(c.PushgatewayURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "pushgatewayUrl must be a valid http(s) URL")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed: %s", domain.ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ActionInput returns the GitHub Actions input name, read from INPUT_<NAME>.
func ActionInput(name string) string {
	key := "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
	return strings.TrimSpace(os.Getenv(key))
}

// ActionBoolInput parses a boolean action input. Only the YAML 1.2 core
// schema spellings are accepted; an unset input is false.
func ActionBoolInput(name string) (bool, error) {
	v := ActionInput(name)
	switch v {
	case "":
		return false, nil
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s (got %q); support boolean input list: true | True | TRUE | false | False | FALSE", ErrInvalidBoolInput, name, v)
}
