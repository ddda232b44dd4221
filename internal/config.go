package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/halver/muninn/internal/engine"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Watch modes.
const (
	WatchModePoll   = "poll"
	WatchModeNative = "native"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	Registry RegistryConfig    `yaml:"registry"`
	Watch    WatchConfig       `yaml:"watch"`
	Roots    []RootConfig      `yaml:"roots"`
	Locks    LocksConfig       `yaml:"locks"`
	Workflow WorkflowConfig    `yaml:"workflow"`
	LLM      LLMConfig         `yaml:"llm"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if len(c.Roots) == 0 {
		return fmt.Errorf("roots: at least one root is required")
	}
	for i := range c.Roots {
		if err := c.Roots[i].Validate(); err != nil {
			return fmt.Errorf("roots[%d]: %w", i, err)
		}
	}
	if c.QuarantineRoot() == "" {
		return fmt.Errorf("roots: a quarantine root is required")
	}
	if err := c.Workflow.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// QuarantineRoot returns the path of the first quarantine root, empty
// when none is configured.
func (c *Config) QuarantineRoot() string {
	for _, r := range c.Roots {
		if r.Workflow == engine.WorkflowQuarantine {
			return r.Path
		}
	}
	return ""
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RegistryConfig holds the SQLite registry configuration.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// WatchConfig selects the change detection mode. "poll" diffs periodic
// vault snapshots and needs no OS support; "native" uses fsnotify.
type WatchConfig struct {
	Mode            string `yaml:"mode"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Interval returns the poll interval.
func (c *WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = WatchModePoll
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(WatchModePoll, WatchModeNative)),
		validation.Field(&c.IntervalSeconds, validation.Min(0)),
	)
}

// RootConfig maps a vault-relative folder to a workflow.
type RootConfig struct {
	Path        string `yaml:"path"`
	Workflow    string `yaml:"workflow"`
	FolderType  string `yaml:"folder_type"`
	Categorized bool   `yaml:"categorized"`
}

// Validate validates a root mapping.
func (c *RootConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Workflow, validation.Required, validation.In(
			engine.WorkflowImport,
			engine.WorkflowStorage,
			engine.WorkflowQuarantine,
			engine.WorkflowTechnical,
		)),
		validation.Field(&c.FolderType, validation.Required),
	)
}

// LocksConfig holds the advisory lock table configuration.
type LocksConfig struct {
	TimeoutSeconds       int `yaml:"timeout_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// Timeout returns the lock expiry age.
func (c *LocksConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SweepInterval returns the maintenance sweep period.
func (c *LocksConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// WorkflowConfig holds workflow tuning.
type WorkflowConfig struct {
	WordDeltaThreshold int `yaml:"word_delta_threshold"`
	Retries            int `yaml:"retries"`
	RetryDelaySeconds  int `yaml:"retry_delay_seconds"`
}

// RetryDelay returns the pause between generation attempts.
func (c *WorkflowConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// Validate validates the workflow configuration.
func (c *WorkflowConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.WordDeltaThreshold, validation.Min(0)),
		validation.Field(&c.Retries, validation.Min(0)),
		validation.Field(&c.RetryDelaySeconds, validation.Min(0)),
	)
}

// LLMConfig holds the completion API configuration. An empty APIKey
// falls back to the OPENAI_API_KEY environment variable at startup.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Registry: RegistryConfig{
			Path: "./muninn.db",
		},
		Watch: WatchConfig{
			Mode:            WatchModePoll,
			IntervalSeconds: 30,
		},
		Roots: []RootConfig{
			{Path: "imports", Workflow: engine.WorkflowImport, FolderType: "import"},
			{Path: "storage", Workflow: engine.WorkflowStorage, FolderType: "storage", Categorized: true},
			{Path: "quarantine", Workflow: engine.WorkflowQuarantine, FolderType: "archive"},
		},
		Locks: LocksConfig{
			TimeoutSeconds:       7200,
			SweepIntervalSeconds: 3600,
		},
		Workflow: WorkflowConfig{
			WordDeltaThreshold: 100,
			Retries:            3,
			RetryDelaySeconds:  5,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
