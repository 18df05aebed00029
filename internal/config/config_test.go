package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyAndEmptyValues(t *testing.T) {
	t.Setenv("SOURCE_PREFIX", "")
	t.Setenv("BATCH_POLICY", "")
	t.Setenv("ALERT_RECIPIENTS", "")

	cfg, err := Load()
	require.Error(t, err, "an explicitly empty policy is not a valid policy")

	t.Setenv("BATCH_POLICY", "Partial")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, PolicyPartial, cfg.BatchPolicy)
	assert.Empty(t, cfg.SourcePrefix)
	assert.Empty(t, cfg.AlertRecipients)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOURCE_DIR", "/srv/alma/incoming")
	t.Setenv("SOURCE_PREFIX", "BUL_ANNEX")
	t.Setenv("DEV_MODE", "yes")
	t.Setenv("BATCH_POLICY", "strict")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.edu, , annex@example.edu")
	t.Setenv("ALERT_TAIL", "not-a-number")
	t.Setenv("LOG_PATH", "/var/log/annex.log")
	t.Setenv("ALERT_LOG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/alma/incoming", cfg.SourceDir)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, []string{"ops@example.edu", "annex@example.edu"}, cfg.AlertRecipients)
	assert.Equal(t, 4, cfg.AlertTail)
	assert.Equal(t, "/var/log/annex.log", cfg.LogPath)
	assert.Empty(t, cfg.AlertLogPath)
}

func TestRequireDirs(t *testing.T) {
	cfg := Config{SourceDir: "a", ArchiveOriginalsDir: "b", ArchiveParsedDir: "c", GFACountDir: "d", GFADataDir: " "}
	err := cfg.RequireDirs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GFA_DATA_DIR")

	cfg.GFADataDir = "e"
	assert.NoError(t, cfg.RequireDirs())
}

func TestUnsupportedPolicy(t *testing.T) {
	t.Setenv("BATCH_POLICY", "lenient")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lenient")
}
