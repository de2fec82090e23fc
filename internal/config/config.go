// Package config loads and validates the uxpipe configuration file.
//
// Configuration is a single YAML document with one typed section per stage,
// validated at startup and injected into the stage adapters; adapters never
// parse configuration ad hoc per call.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"uxpipe/internal/retry"
)

// Duration wraps time.Duration so YAML values can be written as "90s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the application configuration.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	QueueDir    string `yaml:"queue_dir"`
	StateFile   string `yaml:"state_file"`
	JournalPath string `yaml:"journal_path"`

	Pages   PagesConfig   `yaml:"pages"`
	Record  RecordConfig  `yaml:"record"`
	Analyze AnalyzeConfig `yaml:"analyze"`
	Codegen CodegenConfig `yaml:"codegen"`
	Publish PublishConfig `yaml:"publish"`
	Notify  NotifyConfig  `yaml:"notify"`

	Stages  map[string]StageSettings `yaml:"stages,omitempty"`
	Retry   RetryConfig              `yaml:"retry"`
	Metrics MetricsConfig            `yaml:"metrics"`
	Watch   WatchConfig              `yaml:"watch"`
}

// StageSettings bounds one stage's execution. Zero values fall back to the
// defaults applied at load time.
type StageSettings struct {
	Concurrency     int      `yaml:"concurrency,omitempty"`
	ItemTimeout     Duration `yaml:"item_timeout,omitempty"`
	MaxFailureRatio float64  `yaml:"max_failure_ratio,omitempty"`
}

// PagesConfig configures the page inventory stage.
type PagesConfig struct {
	Inventory    string   `yaml:"inventory"`
	Probe        bool     `yaml:"probe"`
	ProbeTimeout Duration `yaml:"probe_timeout,omitempty"`
}

// RecordConfig configures the browser session recording stage.
type RecordConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args,omitempty"`
	VideoDir       string   `yaml:"video_dir"`
	ViewportWidth  int      `yaml:"viewport_width,omitempty"`
	ViewportHeight int      `yaml:"viewport_height,omitempty"`
}

// AnalyzeConfig configures the vision analysis stage.
type AnalyzeConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty"`
	Model          string `yaml:"model,omitempty"`
	ReportsDir     string `yaml:"reports_dir"`
	FramesPerVideo int    `yaml:"frames_per_video,omitempty"`
}

// DesignSystem carries the brand constraints injected into code generation.
type DesignSystem struct {
	Colors   []string `yaml:"colors,omitempty"`
	Font     string   `yaml:"font,omitempty"`
	Style    string   `yaml:"style,omitempty"`
	Industry string   `yaml:"industry,omitempty"`
}

// CodegenConfig configures the code generation stage.
type CodegenConfig struct {
	Endpoint     string       `yaml:"endpoint"`
	APIKeyEnv    string       `yaml:"api_key_env,omitempty"`
	Model        string       `yaml:"model,omitempty"`
	OutputDir    string       `yaml:"output_dir"`
	DesignSystem DesignSystem `yaml:"design_system,omitempty"`
}

// PublishConfig configures the git publishing stage.
type PublishConfig struct {
	RepoPath     string `yaml:"repo_path"`
	BranchPrefix string `yaml:"branch_prefix,omitempty"`
	AuthorName   string `yaml:"author_name,omitempty"`
	AuthorEmail  string `yaml:"author_email,omitempty"`
}

// NotifyConfig configures run completion notifications.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url,omitempty"`
	NATSURL     string `yaml:"nats_url,omitempty"`
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// RetryConfig configures transient item failure retries.
type RetryConfig struct {
	Mode       string   `yaml:"mode,omitempty"` // fixed|linear|exponential
	Initial    Duration `yaml:"initial,omitempty"`
	Max        Duration `yaml:"max,omitempty"`
	MaxRetries int      `yaml:"max_retries"`
}

// MetricsConfig enables the Prometheus recorder and, in watch mode, the
// /metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// WatchConfig configures the watch command's rerun loop.
type WatchConfig struct {
	Interval Duration `yaml:"interval,omitempty"`
	Debounce Duration `yaml:"debounce,omitempty"`
}

// Load reads, expands, defaults, and validates the configuration file.
// A .env file next to the working directory is loaded first (without
// overriding existing process environment) so API keys and webhook URLs can
// be referenced from the YAML via ${VAR} expansion.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RetryPolicy converts the retry section into an executable backoff policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.NewPolicy(retry.BackoffMode(c.Retry.Mode), c.Retry.Initial.Std(), c.Retry.Max.Std(), c.Retry.MaxRetries)
}

// StageSettingsFor returns the effective execution bounds for a stage,
// merging any per-stage override with the load-time defaults.
func (c *Config) StageSettingsFor(name string) StageSettings {
	s := StageSettings{
		Concurrency:     defaultConcurrency,
		ItemTimeout:     Duration(defaultItemTimeout),
		MaxFailureRatio: defaultMaxFailureRatio,
	}
	if c.Stages == nil {
		return s
	}
	override, ok := c.Stages[name]
	if !ok {
		return s
	}
	if override.Concurrency > 0 {
		s.Concurrency = override.Concurrency
	}
	if override.ItemTimeout > 0 {
		s.ItemTimeout = override.ItemTimeout
	}
	if override.MaxFailureRatio > 0 {
		s.MaxFailureRatio = override.MaxFailureRatio
	}
	return s
}
