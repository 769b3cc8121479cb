package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeSandbox(); err != nil {
		return err
	}
	c.normalizeTransform()
	c.normalizeSubmission()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.FilesDir) == "" {
		c.Paths.FilesDir = filepath.Join(c.Paths.DataDir, "files")
	}
	if c.Paths.FilesDir, err = expandPath(c.Paths.FilesDir); err != nil {
		return fmt.Errorf("paths.files_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeDatabase() error {
	engine := strings.ToLower(strings.TrimSpace(c.Database.Engine))
	switch engine {
	case "", "sqlite3":
		engine = EngineSQLite
	case "postgresql", "pgx":
		engine = EnginePostgres
	}
	c.Database.Engine = engine

	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.URL == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Database.URL = strings.TrimSpace(value)
		}
	}

	if c.Database.Engine != EngineSQLite {
		return nil
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Paths.DataDir, "codeflow.db")
	}
	var err error
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeSandbox() error {
	c.Sandbox.URL = strings.TrimSpace(c.Sandbox.URL)
	if _, explicit := os.LookupEnv("CODEFLOW_SANDBOX_URL"); !explicit {
		if value, ok := os.LookupEnv("C_RUNNER_URL"); ok && strings.TrimSpace(value) != "" {
			c.Sandbox.URL = strings.TrimSpace(value)
		}
	}
	if c.Sandbox.URL == "" {
		c.Sandbox.URL = defaultSandboxURL
	}
	c.Sandbox.URL = strings.TrimRight(c.Sandbox.URL, "/")

	c.Sandbox.Bind = strings.TrimSpace(c.Sandbox.Bind)
	if c.Sandbox.Bind == "" {
		c.Sandbox.Bind = defaultSandboxBind
	}
	if strings.TrimSpace(c.Sandbox.WorkDir) != "" {
		var err error
		if c.Sandbox.WorkDir, err = expandPath(c.Sandbox.WorkDir); err != nil {
			return fmt.Errorf("sandbox.work_dir: %w", err)
		}
	}
	if c.Sandbox.TimeoutSeconds <= 0 {
		c.Sandbox.TimeoutSeconds = defaultSandboxTimeoutSeconds
	}
	if c.Sandbox.MaxTimeoutSeconds <= 0 {
		c.Sandbox.MaxTimeoutSeconds = defaultSandboxMaxTimeoutSeconds
	}
	if c.Sandbox.GraceSeconds < 0 {
		c.Sandbox.GraceSeconds = defaultSandboxGraceSeconds
	}
	binaries := make([]string, 0, len(c.Sandbox.RequiredBinaries))
	for _, name := range c.Sandbox.RequiredBinaries {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			binaries = append(binaries, trimmed)
		}
	}
	c.Sandbox.RequiredBinaries = binaries
	return nil
}

func (c *Config) normalizeTransform() {
	args := make([]string, 0, len(c.Transform.Command))
	for _, arg := range c.Transform.Command {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		args = defaultTransformCommand()
	}
	c.Transform.Command = args
	c.Transform.RemoteDir = strings.TrimSpace(c.Transform.RemoteDir)
}

func (c *Config) normalizeSubmission() {
	exts := make([]string, 0, len(c.Submission.Extensions))
	seen := make(map[string]struct{}, len(c.Submission.Extensions))
	for _, ext := range c.Submission.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultExtensions()
	}
	c.Submission.Extensions = exts
	if c.Submission.MaxBytes <= 0 {
		c.Submission.MaxBytes = defaultSubmissionMaxBytes
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.StatusStoreTimeout <= 0 {
		c.Workflow.StatusStoreTimeout = defaultStatusStoreTimeout
	}
	if c.Workflow.PreflightTimeoutSec <= 0 {
		c.Workflow.PreflightTimeoutSec = defaultPreflightTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	c.Events.SubjectPrefix = strings.Trim(strings.TrimSpace(c.Events.SubjectPrefix), ".")
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = defaultEventSubjectPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
