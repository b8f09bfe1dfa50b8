package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberguard/cyberguard/internal/model"
)

func TestRunInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cyberguard", "config.yaml")

	err := run([]string{
		"--config", path,
		"--provider-url", "http://mail.internal",
		"--interval", "30s",
		"init-config",
	})
	require.NoError(t, err)

	cfg, err := model.LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://mail.internal", cfg.Provider.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Mailbox.PollInterval)
}

func TestRunUnknownCommand(t *testing.T) {
	err := run([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"), "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}
