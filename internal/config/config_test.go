package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalhq/interview-trainer/internal/types"
)

func configPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := configPath(t)
	cfg := New(path)

	require.NoError(t, cfg.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, DefaultServerURL, snap.ServerURL)
	assert.Equal(t, DefaultStyle, snap.Style)
	assert.Equal(t, DefaultGroup, snap.Group)
	assert.Equal(t, DefaultDifficulty, snap.Difficulty)
	assert.True(t, snap.AutoListen)
	assert.True(t, snap.AutoSend)
	assert.True(t, snap.NudgesEnabled)
	assert.False(t, snap.HasSpeechAuth())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := configPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"session":{"style":"cold"}}`), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.Equal(t, types.StyleCold, snap.Style)
	assert.Equal(t, DefaultGroup, snap.Group)
	assert.Equal(t, DefaultSynthesisURL, snap.SynthesisURL)
}

func TestLoadRejectsInvalidStyle(t *testing.T) {
	path := configPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"session":{"style":"harsh"}}`), 0o600))

	cfg := New(path)
	assert.Error(t, cfg.Load())
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := configPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	cfg := New(path)
	assert.Error(t, cfg.Load())
}

func TestSettersPersist(t *testing.T) {
	path := configPath(t)
	cfg := New(path)
	require.NoError(t, cfg.Load())

	require.NoError(t, cfg.SetStyle(types.StyleSupportive))
	require.NoError(t, cfg.SetAutoSend(false))
	require.NoError(t, cfg.SetNudgesEnabled(false))
	require.NoError(t, cfg.SetCaptureDevice("alsa_input.usb-mic"))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())

	snap := reloaded.Snapshot()
	assert.Equal(t, types.StyleSupportive, snap.Style)
	assert.False(t, snap.AutoSend)
	assert.True(t, snap.AutoListen, "untouched toggle keeps its default")
	assert.False(t, snap.NudgesEnabled)
	assert.Equal(t, "alsa_input.usb-mic", snap.CaptureDevice)
}

func TestSetStyleRejectsUnknown(t *testing.T) {
	cfg := New(configPath(t))
	assert.Error(t, cfg.SetStyle("harsh"))
}

func TestSpeechAuthSnapshot(t *testing.T) {
	path := configPath(t)
	raw := map[string]any{
		"speech": map[string]any{
			"token_url":     "https://auth.example.com/token",
			"client_id":     "trainer",
			"client_secret": "hunter2",
		},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.True(t, snap.HasSpeechAuth())
	assert.Equal(t, "trainer", snap.ClientID)
}
