package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	assert.Equal(t, DATABASE_TYPE_SQLITE, GetSystemSettingString(DATABASE_TYPE))
	assert.Equal(t, 3*time.Second, GetSystemSettingDuration(SCHEDULER_POLL_INTERVAL))
	assert.Equal(t, 5, GetSystemSettingInteger(SCHEDULER_BATCH_SIZE))
	assert.False(t, GetSystemSettingBool(SCHEDULER_RETRY_GIVE_UP))
	assert.Equal(t, "", GetSystemSettingString("NEWSFLOW_NOT_A_SETTING"))
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "newsflow.toml")
	content := `
[settings]
NEWSFLOW_SCHEDULER_WORKERS = 7
NEWSFLOW_SCHEDULER_RETRY_MIN = "5m"
newsflow_log_level = "DEBUG"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, LoadFile(path))

	assert.Equal(t, 7, GetSystemSettingInteger(SCHEDULER_WORKERS))
	assert.Equal(t, 5*time.Minute, GetSystemSettingDuration(SCHEDULER_RETRY_MIN))
	assert.Equal(t, "DEBUG", GetSystemSettingString(LOG_LEVEL))

	t.Setenv(SCHEDULER_WORKERS, "3")
	assert.Equal(t, 3, GetSystemSettingInteger(SCHEDULER_WORKERS))
}

func TestBadValuesFallBackToDefault(t *testing.T) {
	Reset()
	t.Setenv(SCHEDULER_BATCH_SIZE, "many")
	t.Setenv(SCHEDULER_STUCK_AFTER, "soon")
	t.Setenv(SCHEDULER_RETRY_GIVE_UP, "perhaps")

	assert.Equal(t, 5, GetSystemSettingInteger(SCHEDULER_BATCH_SIZE))
	assert.Equal(t, 10*time.Minute, GetSystemSettingDuration(SCHEDULER_STUCK_AFTER))
	assert.False(t, GetSystemSettingBool(SCHEDULER_RETRY_GIVE_UP))
}

func TestLoadFileErrors(t *testing.T) {
	Reset()
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.toml")))

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[settings\nx ="), 0o600))
	assert.Error(t, LoadFile(path))
}
