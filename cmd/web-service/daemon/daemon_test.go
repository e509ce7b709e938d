package daemon_test

import (
	"testing"
	"time"

	"github.com/speechrelay/speechrelay/cmd/web-service/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFileLoaded(t *testing.T) {
	t.Parallel()

	conf := daemon.AppConfig{}
	conf.Daemon.ListenPort = 9999
	conf.Daemon.UpstreamTimeout = 42 * time.Second

	// The version subcommand parses the configuration without starting the daemon.
	a := daemon.NewForTests(t, &conf, "version")
	require.NoError(t, a.Run(), "Run should not return an error")

	got := a.Config()
	assert.Equal(t, 9999, got.Daemon.ListenPort, "Listen port should come from the config file")
	assert.Equal(t, 42*time.Second, got.Daemon.UpstreamTimeout, "Upstream timeout should come from the config file")
	assert.Equal(t, 2, got.Verbosity, "Verbosity should come from the config file")
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("SPEECHRELAY_WEB_SERVICE_DAEMON_LISTENPORT", "7777")

	a := daemon.NewForTests(t, nil, "version")
	require.NoError(t, a.Run(), "Run should not return an error")

	assert.Equal(t, 7777, a.Config().Daemon.ListenPort, "Listen port should come from the environment")
}

func TestUsageError(t *testing.T) {
	t.Parallel()

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")
	a.SetArgs("--unknown-flag")

	require.Error(t, a.Run(), "Run should return an error for an unknown flag")
	assert.True(t, a.UsageError(), "Unknown flags should be reported as usage errors")
}

func TestNoUsageError(t *testing.T) {
	t.Parallel()

	a := daemon.NewForTests(t, nil, "version")
	require.NoError(t, a.Run(), "Run should not return an error")
	assert.False(t, a.UsageError(), "A successful run is not a usage error")
}

func TestMissingAPIKeyErrors(t *testing.T) {
	t.Parallel()

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")
	a.SetArgs("--listen-port", "0", "--metrics-port", "0")

	err = a.Run()
	require.Error(t, err, "Run should fail without an API key")
	assert.ErrorContains(t, err, "API key", "Error should mention the missing API key")
	assert.False(t, a.UsageError(), "A missing API key is a runtime error, not a usage error")
}

func TestAppCanQuitWhenExecute(t *testing.T) {
	t.Parallel()

	a := daemon.NewForTests(t, nil, "--listen-port", "0", "--metrics-port", "0")

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run()
	}()

	a.WaitReady()
	a.Quit()

	select {
	case err := <-runErr:
		require.NoError(t, err, "Run should return without error after Quit")
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
}
