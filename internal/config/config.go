// Package config loads the YAML build configuration and maps it onto engine
// options.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Content   ContentConfig   `yaml:"content"`
	Output    OutputConfig    `yaml:"output"`
	Cache     CacheConfig     `yaml:"cache"`
	Execution ExecutionConfig `yaml:"execution"`
	Logging   LoggingConfig   `yaml:"logging"`
	Processes []ProcessConfig `yaml:"processes,omitempty"`
	Settings  map[string]any  `yaml:"settings,omitempty"`
}

// ContentConfig describes where input documents come from.
type ContentConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`

	// DisableIncludeRecursion turns off recursive expansion of included
	// content. Recursion is on unless disabled, so a missing key keeps the
	// include module's default.
	DisableIncludeRecursion bool `yaml:"disable_include_recursion"`

	// UnsafeHTML passes raw HTML in markdown sources through to the output.
	UnsafeHTML bool `yaml:"unsafe_html,omitempty"`
}

// OutputConfig describes where rendered documents are written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"`
}

// CacheConfig controls execution caching. Caching is on unless disabled.
type CacheConfig struct {
	Disabled bool `yaml:"disabled"`

	// Path is an optional SQLite database for cross-run result reuse.
	// Empty keeps the cache run-scoped.
	Path string `yaml:"path,omitempty"`
}

// ExecutionConfig controls scheduling behavior.
type ExecutionConfig struct {
	Serial                  bool `yaml:"serial"`
	MaxParallel             int  `yaml:"max_parallel"`
	ContinueOnDocumentError bool `yaml:"continue_on_document_error"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// ProcessConfig describes one external process step run after rendering.
// Timeout uses Go duration syntax ("30s", "2m").
type ProcessConfig struct {
	Name       string   `yaml:"name"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args,omitempty"`
	Dir        string   `yaml:"dir,omitempty"`
	Timeout    string   `yaml:"timeout,omitempty"`
	Background bool     `yaml:"background,omitempty"`
	OnlyOnce   bool     `yaml:"only_once,omitempty"`

	timeout time.Duration
}

// TimeoutDuration returns the parsed timeout, zero when none is configured.
func (p ProcessConfig) TimeoutDuration() time.Duration { return p.timeout }

// Load reads and validates the configuration file. A .env file alongside the
// process, when present, is loaded first so ${VAR} references in the YAML
// resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from raw YAML, expanding environment variable
// references and applying defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Content.Directory == "" {
		c.Content.Directory = "./content"
	}
	if c.Content.Pattern == "" {
		c.Content.Pattern = "*.md"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./public"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}

func (c *Config) validate() error {
	if c.Execution.MaxParallel < 0 {
		return fmt.Errorf("execution.max_parallel must not be negative, got %d", c.Execution.MaxParallel)
	}
	for i := range c.Processes {
		p := &c.Processes[i]
		if p.Command == "" {
			return fmt.Errorf("processes[%d]: command is required", i)
		}
		if p.Timeout != "" {
			d, err := time.ParseDuration(p.Timeout)
			if err != nil {
				return fmt.Errorf("processes[%d] (%s): invalid timeout %q: %w", i, p.Name, p.Timeout, err)
			}
			if p.Background {
				return fmt.Errorf("processes[%d] (%s): timeout does not apply to background processes", i, p.Name)
			}
			p.timeout = d
		}
	}
	return nil
}
