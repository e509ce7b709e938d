// Package webservice provides the HTTP server that fronts the OpenAI audio
// APIs: speech synthesis, transcription, and service metadata endpoints.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	commonmetrics "github.com/speechrelay/speechrelay/internal/common/metrics"
	"github.com/speechrelay/speechrelay/internal/usage"
	"github.com/speechrelay/speechrelay/internal/webservice/handlers"
	"github.com/speechrelay/speechrelay/internal/webservice/metrics"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *commonmetrics.Server
	cm            dConfigManager

	addr net.Addr
	mu   sync.RWMutex

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	UpstreamTimeout time.Duration
	MaxHeaderBytes  int
	MaxUploadBytes  int

	ListenHost string
	ListenPort int

	MetricsHost string
	MetricsPort int

	SynthesisModel     string
	TranscriptionModel string
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	IsVoiceAllowed(string) bool
	IsFileTypeAllowed(string) bool
}

type dSpeechClient interface {
	handlers.Synthesizer
	handlers.Transcriber
}

// New creates a new Server instance with the given config manager, speech client and usage recorder.
//
// A nil recorder disables usage persistence.
func New(ctx context.Context, cm dConfigManager, sp dSpeechClient, rec usage.Recorder, reg *prometheus.Registry, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}
	if rec == nil {
		rec = usage.Discard{}
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:     cm,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	opts := handlers.Opts{
		MaxBodyBytes:       int64(sc.MaxUploadBytes),
		UpstreamTimeout:    sc.UpstreamTimeout,
		SynthesisModel:     sc.SynthesisModel,
		TranscriptionModel: sc.TranscriptionModel,
	}
	synthesisHandler := handlers.NewSynthesis(sp, cm, rec, opts)
	transcriptionHandler := handlers.NewTranscription(sp, cm, rec, opts)

	endpointMetrics := metrics.NewEndpointMiddleware(reg)
	muxMetrics := metrics.NewMuxMiddleware(reg)

	// The metadata endpoints are cheap and get the short request timeout.
	// The speech endpoints wait on the upstream API and are bounded by
	// UpstreamTimeout instead.
	short := func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, sc.RequestTimeout, "")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /text-to-speech", endpointMetrics.Wrap("synthesis", synthesisHandler))
	// No method pattern: the handler answers OPTIONS preflights itself.
	mux.Handle("/speech-to-text", endpointMetrics.Wrap("transcription", transcriptionHandler))
	mux.Handle("GET /{$}", short(endpointMetrics.Wrap("home", http.HandlerFunc(handlers.HomeHandler))))
	mux.Handle("GET /version", short(endpointMetrics.Wrap("version", http.HandlerFunc(handlers.VersionHandler))))

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        muxMetrics.Wrap("mux", mux),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	s.metricsServer = commonmetrics.New(commonmetrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, reg)

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	metricsErr := make(chan error, 1)
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
		err := s.httpServer.Shutdown(s.ctx)
		if mErr := s.metricsServer.Shutdown(s.ctx); mErr != nil {
			err = errors.Join(err, mErr)
		}
		if err != nil {
			slog.Error("Graceful shutdown failed", "err", err)
			return err
		}
		slog.Info("Server shut down gracefully")
		// now kill everything else (watchers, handlers, etc.)
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			slog.Error("Server encountered error", "err", err)
		}
		errM := s.metricsServer.Close()
		s.cancel()
		return errors.Join(err, errM)

	case err := <-metricsErr:
		if err != nil {
			slog.Error("Metrics server encountered error", "err", err)
		}
		errC := s.httpServer.Close()
		s.cancel()
		return errors.Join(err, errC)

	case err := <-watchErr:
		if err != nil {
			slog.Error("Config watcher encountered unrecoverable error", "err", err)
		}
		errC := s.httpServer.Close()
		errM := s.metricsServer.Close()
		s.cancel()

		return errors.Join(err, errC, errM)
	}
}

// Quit shuts down the HTTP server gracefully.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.metricsServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// Addr returns the address the server is listening on, empty before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// MetricsAddr returns the address the metrics server is listening on, empty before Run.
func (s *Server) MetricsAddr() string {
	return s.metricsServer.Addr()
}
