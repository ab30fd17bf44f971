package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"dca-console/internal/config"
)

const (
	writeTimeout     = 3 * time.Second
	defaultQueueSize = 256
	tableName        = "dca_submissions"
)

var schemaPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entry is one state change of a submitted transaction.
type Entry struct {
	Time         time.Time
	SubmissionID string
	Account      string
	Network      string
	Kind         string
	Status       string
	OrderID      string
	Digest       string
	Error        string
}

// Writer appends submission entries to postgres from a background
// goroutine. Entries are dropped, never blocked on, when the queue is full.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	entries chan Entry
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.JournalConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("journal dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer, err := newWithDB(ctx, db, cfg.Schema, cfg.QueueSize, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWithDB(ctx context.Context, db *sql.DB, schema string, queueSize int, log *zap.Logger) (*Writer, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if !schemaPattern.MatchString(schema) {
		return nil, fmt.Errorf("journal schema %q is not a plain identifier", schema)
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		entries: make(chan Entry, queueSize),
	}
	if err := w.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) Enqueue(entry Entry) {
	if w == nil {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	select {
	case w.entries <- entry:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("journal queue full")
		}
	}
}

func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-w.entries:
			if err := w.write(ctx, entry); err != nil {
				w.log.Warn("journal insert failed", zap.String("submission_id", entry.SubmissionID), zap.Error(err))
			}
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		submission_id TEXT NOT NULL,
		account TEXT NOT NULL,
		network TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	)`, w.table())); err != nil {
		return err
	}
	return w.exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_account_idx ON %s (account, ts DESC)", tableName, w.table()))
}

func (w *Writer) write(ctx context.Context, entry Entry) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, submission_id, account, network, kind, status, order_id, digest, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table())
	_, err := w.db.ExecContext(ctx, query,
		entry.Time,
		entry.SubmissionID,
		entry.Account,
		entry.Network,
		entry.Kind,
		entry.Status,
		entry.OrderID,
		entry.Digest,
		entry.Error,
	)
	return err
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table() string {
	return w.schema + "." + tableName
}
