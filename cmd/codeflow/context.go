package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"codeflow/internal/api"
	"codeflow/internal/config"
)

type globalFlags struct {
	config string
	apiURL string
	user   string
	json   bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.config)
}

func (c *commandContext) jsonOutput() bool {
	return c.flags.json
}

func (c *commandContext) user() string {
	if user := strings.TrimSpace(c.flags.user); user != "" {
		return user
	}
	if user := strings.TrimSpace(os.Getenv("CODEFLOW_USER")); user != "" {
		return user
	}
	return strings.TrimSpace(os.Getenv("USER"))
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := strings.TrimSpace(c.flags.apiURL)
	if base == "" {
		base = cfg.Paths.APIBind
	}
	if base == "" {
		return nil, errors.New("daemon API is disabled; set paths.api_bind or pass --api")
	}
	return api.NewClient(base, api.WithToken(cfg.Paths.APIToken), api.WithUser(c.user())), nil
}

// wrapAPIError turns transport failures into a hint about the daemon.
func wrapAPIError(err error, client *api.Client) error {
	if err == nil {
		return nil
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("connect to daemon at %s: %w (start it with `codeflow start`)", client.BaseURL(), err)
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.apiClient()
	if err != nil {
		return err
	}
	return wrapAPIError(fn(client), client)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
