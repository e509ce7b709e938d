package config_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/speechrelay/speechrelay/internal/common/config"
	"github.com/speechrelay/speechrelay/internal/common/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		conf        *config.Conf
		noFile      bool
		invalidJSON bool

		wantErr       bool
		wantVoices    []string
		wantFileTypes []string
	}{
		"No config path serves defaults": {
			noFile:        true,
			wantVoices:    constants.DefaultVoices,
			wantFileTypes: constants.DefaultFileTypes,
		},
		"Empty config serves defaults": {
			conf:          &config.Conf{},
			wantVoices:    constants.DefaultVoices,
			wantFileTypes: constants.DefaultFileTypes,
		},
		"Restricted voices": {
			conf:          &config.Conf{AllowedVoices: []string{"alloy", "nova"}},
			wantVoices:    []string{"alloy", "nova"},
			wantFileTypes: constants.DefaultFileTypes,
		},
		"Restricted file types": {
			conf:          &config.Conf{AllowedFileTypes: []string{"wav"}},
			wantVoices:    constants.DefaultVoices,
			wantFileTypes: []string{"wav"},
		},
		"Invalid JSON errors": {
			invalidJSON: true,
			wantErr:     true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := ""
			switch {
			case tc.invalidJSON:
				path = filepath.Join(t.TempDir(), "config.json")
				require.NoError(t, os.WriteFile(path, []byte("not-json"), 0600), "Setup: failed to write config file")
			case !tc.noFile:
				path = writeConfig(t, tc.conf)
			}

			cm := config.New(path)
			err := cm.Load()
			if tc.wantErr {
				require.Error(t, err, "Load should return an error")
				return
			}
			require.NoError(t, err, "Load should not return an error")

			assert.Equal(t, tc.wantVoices, cm.Voices(), "Unexpected voices")
			assert.Equal(t, tc.wantFileTypes, cm.FileTypes(), "Unexpected file types")
		})
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	t.Parallel()

	cm := config.New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, cm.Load(), "Load should error on a missing file")
}

func TestIsVoiceAllowed(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		conf  *config.Conf
		voice string

		want bool
	}{
		"Default voice allowed by default":   {voice: "alloy", want: true},
		"Unknown voice rejected by default":  {voice: "whisperer", want: false},
		"Restricted list permits its member": {conf: &config.Conf{AllowedVoices: []string{"nova"}}, voice: "nova", want: true},
		"Restricted list rejects default":    {conf: &config.Conf{AllowedVoices: []string{"nova"}}, voice: "alloy", want: false},
		"Empty voice rejected":               {voice: "", want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cm := loadedManager(t, tc.conf)
			assert.Equal(t, tc.want, cm.IsVoiceAllowed(tc.voice))
		})
	}
}

func TestIsFileTypeAllowed(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		conf     *config.Conf
		fileType string

		want bool
	}{
		"Known type allowed by default":      {fileType: "mp3", want: true},
		"Leading dot is ignored":             {fileType: ".wav", want: true},
		"Comparison ignores case":            {fileType: "MP3", want: true},
		"Unknown type rejected":              {fileType: "exe", want: false},
		"Restricted list rejects non-member": {conf: &config.Conf{AllowedFileTypes: []string{"wav"}}, fileType: "mp3", want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cm := loadedManager(t, tc.conf)
			assert.Equal(t, tc.want, cm.IsFileTypeAllowed(tc.fileType))
		})
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigTo(t, path, &config.Conf{AllowedVoices: []string{"alloy"}})

	cm := config.New(path, config.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	changes, errCh, err := cm.Watch(t.Context())
	require.NoError(t, err, "Watch should not return an error")

	require.True(t, cm.IsVoiceAllowed("alloy"), "Initial config should be loaded")
	require.False(t, cm.IsVoiceAllowed("nova"), "Initial config should restrict voices")

	writeConfigTo(t, path, &config.Conf{AllowedVoices: []string{"nova"}})

	select {
	case <-changes:
	case err := <-errCh:
		require.NoError(t, err, "Watcher should not error")
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}

	assert.True(t, cm.IsVoiceAllowed("nova"), "Reloaded config should allow the new voice")
	assert.False(t, cm.IsVoiceAllowed("alloy"), "Reloaded config should drop the old voice")
}

func TestWatchWithoutFileStopsOnContext(t *testing.T) {
	t.Parallel()

	cm := config.New("")
	ctx, cancel := context.WithCancel(t.Context())
	changes, errCh, err := cm.Watch(ctx)
	require.NoError(t, err, "Watch should not return an error")

	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok, "Changes channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for channels to close")
	}
	_, ok := <-errCh
	assert.False(t, ok, "Errors channel should be closed")
}

func writeConfig(t *testing.T, conf *config.Conf) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	writeConfigTo(t, path, conf)
	return path
}

func writeConfigTo(t *testing.T, path string, conf *config.Conf) {
	t.Helper()

	d, err := json.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config")
	require.NoError(t, os.WriteFile(path, d, 0600), "Setup: failed to write config file")
}

func loadedManager(t *testing.T, conf *config.Conf) *config.Manager {
	t.Helper()

	path := ""
	if conf != nil {
		path = writeConfig(t, conf)
	}
	cm := config.New(path)
	require.NoError(t, cm.Load(), "Setup: failed to load config")
	return cm
}
