package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateSandbox(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Engine {
	case EngineSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path must be set for sqlite")
		}
	case EnginePostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required when database.engine is postgres (or set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("database.engine: unsupported value %q", c.Database.Engine)
	}
	return nil
}

func (c *Config) validateSandbox() error {
	parsed, err := url.Parse(c.Sandbox.URL)
	if err != nil {
		return fmt.Errorf("sandbox.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("sandbox.url must use http or https, got %q", c.Sandbox.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("sandbox.url must include a host, got %q", c.Sandbox.URL)
	}
	if c.Sandbox.TimeoutSeconds > c.Sandbox.MaxTimeoutSeconds {
		return fmt.Errorf("sandbox.timeout_seconds (%d) exceeds sandbox.max_timeout_seconds (%d)",
			c.Sandbox.TimeoutSeconds, c.Sandbox.MaxTimeoutSeconds)
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		return errors.New("sandbox.max_output_bytes must be >= 0")
	}
	return nil
}

func (c *Config) validateTransform() error {
	joined := strings.Join(c.Transform.Command, " ")
	if !strings.Contains(joined, "{input}") && !strings.Contains(joined, "{ref}") {
		return errors.New("transform.command must reference {input} or {ref}")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
