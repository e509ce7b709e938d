// Package daemon provides the speechrelay web service daemon.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/speechrelay/speechrelay/internal/cli"
	"github.com/speechrelay/speechrelay/internal/common/config"
	"github.com/speechrelay/speechrelay/internal/common/constants"
	"github.com/speechrelay/speechrelay/internal/speech"
	"github.com/speechrelay/speechrelay/internal/usage"
	"github.com/speechrelay/speechrelay/internal/webservice"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Daemon webservice.StaticConfig
	OpenAI speech.Config

	DBconfig      usage.Config
	MigrationsDir string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.WebServiceCmdName,
		Short:         "Speechrelay web service",
		Long:          "Speechrelay web service accepting HTTP requests for speech synthesis and transcription, relayed to the OpenAI audio APIs.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.WebServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		ConfigPath: "",

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		RequestTimeout:  5 * time.Second,
		UpstreamTimeout: 60 * time.Second,
		MaxHeaderBytes:  1 << 13, // 8 KB
		MaxUploadBytes:  1 << 25, // 32 MB, the upstream transcription payload cap

		ListenPort:  8888,
		MetricsPort: 8501,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.Daemon.ConfigPath, "daemon-config", defaultConf.ConfigPath, "path to the configuration file")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for the metadata endpoints")
	cmd.Flags().DurationVar(&app.config.Daemon.UpstreamTimeout, "upstream-timeout", defaultConf.UpstreamTimeout, "timeout for upstream OpenAI API calls")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxUploadBytes, "max-upload-bytes", defaultConf.MaxUploadBytes, "maximum request body bytes for the speech endpoints")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	// Upstream API flags
	cmd.Flags().StringVar(&app.config.OpenAI.Endpoint, "openai-endpoint", constants.DefaultOpenAIEndpoint, "OpenAI compatible API endpoint")
	cmd.Flags().StringVar(&app.config.OpenAI.APIKey, "openai-apikey", "", "OpenAI API key (prefer the environment variable)")
	cmd.Flags().StringVar(&app.config.Daemon.SynthesisModel, "synthesis-model", constants.DefaultSynthesisModel, "model used for text to speech")
	cmd.Flags().StringVar(&app.config.Daemon.TranscriptionModel, "transcription-model", constants.DefaultTranscriptionModel, "model used for speech to text")

	addDBFlags(cmd, &app.config.DBconfig)

	err := cmd.MarkFlagFilename("daemon-config")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}
}

func addDBFlags(cmd *cobra.Command, config *usage.Config) {
	cmd.Flags().StringVar(&config.Host, "db-host", "", "database host, empty disables usage recording")
	cmd.Flags().IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	cmd.Flags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.Flags().StringVarP(&config.Password, "db-password", "P", "", "database password")
	cmd.Flags().StringVarP(&config.DBName, "db-name", "n", "", "database name")
	cmd.Flags().StringVarP(&config.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	if a.config.Daemon.ConfigPath != "" {
		a.config.Daemon.ConfigPath, err = filepath.Abs(a.config.Daemon.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for config file: %v", err)
		}
	}
	cm := config.New(a.config.Daemon.ConfigPath)

	sp, err := speech.New(a.config.OpenAI)
	if err != nil {
		return fmt.Errorf("failed to create speech client: %v", err)
	}

	registry := prometheus.NewRegistry()

	var rec usage.Recorder
	if a.config.DBconfig.Host != "" {
		dbRec, err := usage.New(context.Background(), a.config.DBconfig, registry)
		if err != nil {
			return fmt.Errorf("failed to create usage recorder: %v", err)
		}
		dbRec.Start(context.Background())
		defer dbRec.Stop()
		rec = dbRec
	}

	a.daemon, err = webservice.New(context.Background(), cm, sp, rec, registry, a.config.Daemon)
	close(a.ready)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}
