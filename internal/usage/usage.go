// Package usage provides optional persistence of per-request usage records
// to a PostgreSQL database.
//
// Records are written asynchronously: handlers enqueue into a bounded buffer
// and a single writer goroutine inserts them. When the buffer is full records
// are dropped and counted instead of blocking request handling.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URI returns the connection string for the configuration with the given scheme.
func (c Config) URI(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.DBName,
	}
	if c.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Record is one row of usage data for a handled request.
type Record struct {
	RequestID     string
	EntryTime     time.Time
	Endpoint      string
	Model         string
	Voice         string
	RequestBytes  int64
	ResponseBytes int64
	Duration      time.Duration
	Status        int
}

// Recorder is the interface handlers use to report usage.
type Recorder interface {
	Record(Record)
}

// Discard is a Recorder that drops all records. Used when no database is configured.
type Discard struct{}

// Record implements Recorder by doing nothing.
func (Discard) Record(Record) {}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// DBRecorder persists usage records to PostgreSQL.
type DBRecorder struct {
	dbpool dbPool

	queue chan Record

	once     sync.Once
	writerWG sync.WaitGroup

	written prometheus.Counter
	dropped prometheus.Counter
}

type options struct {
	newPool   func(ctx context.Context, dsn string) (dbPool, error)
	queueSize int
}

// Options represents an optional function to override DBRecorder default values.
type Options func(*options)

// New creates a usage recorder with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, reg prometheus.Registerer, args ...Options) (*DBRecorder, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
		queueSize: 256,
	}

	for _, opt := range args {
		opt(&opts)
	}

	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usage_records_written_total",
		Help: "Number of usage records written to the database.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usage_records_dropped_total",
		Help: "Number of usage records dropped because the write queue was full.",
	})
	if err := reg.Register(written); err != nil {
		return nil, fmt.Errorf("failed to register written records counter: %v", err)
	}
	if err := reg.Register(dropped); err != nil {
		return nil, fmt.Errorf("failed to register dropped records counter: %v", err)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &DBRecorder{
		dbpool:  dbpool,
		queue:   make(chan Record, opts.queueSize),
		written: written,
		dropped: dropped,
	}, nil
}

// Start launches the writer goroutine. It returns immediately.
//
// The writer drains the queue until Stop is called; ctx bounds individual inserts.
func (r *DBRecorder) Start(ctx context.Context) {
	r.writerWG.Add(1)
	go func() {
		defer r.writerWG.Done()
		for rec := range r.queue {
			if err := r.insert(ctx, rec); err != nil {
				slog.Error("Failed to write usage record", "req_id", rec.RequestID, "err", err)
				continue
			}
			r.written.Inc()
		}
	}()
}

// Record enqueues a usage record for persistence. It never blocks: when the
// queue is full the record is dropped and counted.
func (r *DBRecorder) Record(rec Record) {
	select {
	case r.queue <- rec:
	default:
		r.dropped.Inc()
		slog.Warn("Usage record dropped, write queue full", "req_id", rec.RequestID)
	}
}

// Stop drains the queue, stops the writer and closes the connection pool.
func (r *DBRecorder) Stop() {
	r.once.Do(func() {
		close(r.queue)
		r.writerWG.Wait()
		r.dbpool.Close()
	})
}

func (r *DBRecorder) insert(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.dbpool.Exec(ctx,
		`INSERT INTO speech_requests (
			request_id,
			entry_time,
			endpoint,
			model,
			voice,
			request_bytes,
			response_bytes,
			duration_ms,
			status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.RequestID,
		rec.EntryTime,
		rec.Endpoint,
		rec.Model,
		rec.Voice,
		rec.RequestBytes,
		rec.ResponseBytes,
		rec.Duration.Milliseconds(),
		rec.Status,
	)
	return err
}
