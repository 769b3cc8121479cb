package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir" env:"CODEFLOW_DATA_DIR"`
	FilesDir string `toml:"files_dir" env:"CODEFLOW_FILES_DIR"`
	LogDir   string `toml:"log_dir" env:"CODEFLOW_LOG_DIR"`
	APIBind  string `toml:"api_bind" env:"CODEFLOW_API_BIND"`
	APIToken string `toml:"api_token" env:"CODEFLOW_API_TOKEN"`
}

// Database selects the artifact store backend.
type Database struct {
	Engine string `toml:"engine" env:"CODEFLOW_DATABASE_ENGINE"`
	// URL is the PostgreSQL connection string. Ignored for sqlite.
	URL string `toml:"url" env:"CODEFLOW_DATABASE_URL"`
	// Path is the SQLite database file. Defaults to <data_dir>/codeflow.db.
	Path string `toml:"path" env:"CODEFLOW_DATABASE_PATH"`
}

// Sandbox contains settings for both the sandbox service and its clients.
type Sandbox struct {
	URL               string   `toml:"url" env:"CODEFLOW_SANDBOX_URL"`
	Bind              string   `toml:"bind" env:"CODEFLOW_SANDBOX_BIND"`
	WorkDir           string   `toml:"work_dir" env:"CODEFLOW_SANDBOX_WORK_DIR"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	MaxTimeoutSeconds int      `toml:"max_timeout_seconds"`
	GraceSeconds      int      `toml:"grace_seconds"`
	MaxOutputBytes    int      `toml:"max_output_bytes"`
	RequiredBinaries  []string `toml:"required_binaries"`
}

// Transform describes the command the worker asks the sandbox to run.
type Transform struct {
	// Command is an argv template. {input}, {output}, {flow} and {ref} are
	// replaced with paths under RemoteDir.
	Command   []string `toml:"command"`
	RemoteDir string   `toml:"remote_dir" env:"CODEFLOW_TRANSFORM_REMOTE_DIR"`
}

// Submission contains validation limits for new artifacts.
type Submission struct {
	Extensions []string `toml:"extensions"`
	MaxBytes   int64    `toml:"max_bytes"`
}

// Workflow contains configuration for the job queue coordinator.
type Workflow struct {
	ReconcileFailed     bool `toml:"reconcile_failed"`
	DedupePending       bool `toml:"dedupe_pending"`
	ErrorRetryInterval  int  `toml:"error_retry_interval"`
	StatusStoreTimeout  int  `toml:"status_store_timeout"`
	MinFreeSpaceMiB     int  `toml:"min_free_space_mib"`
	PreflightSandbox    bool `toml:"preflight_sandbox"`
	PreflightTimeoutSec int  `toml:"preflight_timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"CODEFLOW_NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	Processed      bool   `toml:"processed"`
	Failed         bool   `toml:"failed"`
}

// Events contains configuration for NATS lifecycle events.
type Events struct {
	NATSURL       string `toml:"nats_url" env:"CODEFLOW_NATS_URL"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"CODEFLOW_LOG_FORMAT"`
	Level  string `toml:"level" env:"CODEFLOW_LOG_LEVEL"`
}

// Config encapsulates all configuration values for codeflow.
//
// Configuration sections by subsystem:
//   - Paths: data, files and log directories plus the API bind address
//   - Database: artifact store backend (sqlite or postgres)
//   - Sandbox: command sandbox service and client settings
//   - Transform: the command template executed for every artifact
//   - Submission: upload validation limits
//   - Workflow: coordinator behaviour and preflight checks
//   - Notifications: ntfy push notification settings
//   - Events: NATS lifecycle events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Sandbox       Sandbox       `toml:"sandbox"`
	Transform     Transform     `toml:"transform"`
	Submission    Submission    `toml:"submission"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Events        Events        `toml:"events"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Environment
// variables override file values. The returned config has all path fields
// expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if value, ok := os.LookupEnv("CODEFLOW_CONFIG"); ok {
			path = strings.TrimSpace(value)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("codeflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.FilesDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Database.Engine == EngineSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	return nil
}

// SandboxTimeout returns the per-invocation command timeout requested by the worker.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}

// SandboxMaxTimeout returns the largest timeout the sandbox service accepts.
func (c *Config) SandboxMaxTimeout() time.Duration {
	return time.Duration(c.Sandbox.MaxTimeoutSeconds) * time.Second
}

// SandboxGrace returns the transport allowance added on top of the command timeout.
func (c *Config) SandboxGrace() time.Duration {
	return time.Duration(c.Sandbox.GraceSeconds) * time.Second
}

// PreflightTimeout bounds each network preflight check.
func (c *Config) PreflightTimeout() time.Duration {
	return time.Duration(c.Workflow.PreflightTimeoutSec) * time.Second
}

// ErrorRetryInterval is the pause after a store error in the worker loop.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// StatusStoreTimeout bounds store writes that record an attempt's outcome.
func (c *Config) StatusStoreTimeout() time.Duration {
	return time.Duration(c.Workflow.StatusStoreTimeout) * time.Second
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "codeflowd.lock")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "codeflow.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
