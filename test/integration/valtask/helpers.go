package valtask

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/slok/valtask/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary      string
	APIURL      string
	APIToken    string
	WorkspaceID int64
}

func (c *Config) defaults() error {
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("VALTASK_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("valtask binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// HasAPI returns true when the tests can run against a real validation task API.
func (c Config) HasAPI() bool { return c.APIURL != "" && c.WorkspaceID > 0 }

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "VALTASK_INTEGRATION"
		envBinary     = "VALTASK_INTEGRATION_BINARY"
		envAPIURL     = "VALTASK_INTEGRATION_API_URL"
		envAPIToken   = "VALTASK_INTEGRATION_API_TOKEN"
		envWorkspace  = "VALTASK_INTEGRATION_WORKSPACE"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary:   os.Getenv(envBinary),
		APIURL:   os.Getenv(envAPIURL),
		APIToken: os.Getenv(envAPIToken),
	}
	if ws := os.Getenv(envWorkspace); ws != "" {
		id, err := strconv.ParseInt(ws, 10, 64)
		if err != nil {
			t.Skipf("Skipping due to invalid %s: %s", envWorkspace, err)
		}
		c.WorkspaceID = id
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunValtaskCmd runs the valtask binary isolated on its own database.
func RunValtaskCmd(ctx context.Context, config Config, dbPath, cmdArgs string) (stdout, stderr []byte, err error) {
	env := []string{
		"VALTASK_DB_PATH=" + dbPath,
		"VALTASK_API_URL=" + config.APIURL,
		"VALTASK_API_TOKEN=" + config.APIToken,
	}
	return testutils.RunValtask(ctx, env, config.Binary, cmdArgs, true)
}
