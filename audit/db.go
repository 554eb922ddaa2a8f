package audit

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/oddbit-project/chargebridge/batchwriter"
	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultTable = "security_events"

	// upper bound for a single batch insert
	flushTimeout = 5 * time.Second

	ErrEmptyDSN             = utils.Error("Empty DSN")
	ErrInvalidBatchSize     = utils.Error("batchSize cannot be negative")
	ErrInvalidFlushInterval = utils.Error("flushIntervalSeconds cannot be negative")
)

// DBConfig postgres audit sink settings. The target table must exist with
// columns matching the Event db tags (ts, kind, severity, session_id,
// remote_addr, action, correlation_id, close_code, detail).
// With BatchSize > 0 events are buffered and inserted in multi-row batches;
// a zero BatchSize inserts synchronously.
type DBConfig struct {
	DSN                  string `json:"dsn"`
	Table                string `json:"table"`
	BatchSize            int    `json:"batchSize"`
	FlushIntervalSeconds int    `json:"flushIntervalSeconds"`
}

// NewDBConfig returns DB sink defaults; DSN must still be set
func NewDBConfig() *DBConfig {
	return &DBConfig{
		Table:                DefaultTable,
		BatchSize:            0,
		FlushIntervalSeconds: DefaultFlushInterval,
	}
}

// Validate DBConfig
func (c *DBConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.DSN) == 0 {
		return ErrEmptyDSN
	}
	if c.BatchSize < 0 {
		return ErrInvalidBatchSize
	}
	if c.FlushIntervalSeconds < 0 {
		return ErrInvalidFlushInterval
	}
	return nil
}

// DBSink writes events to a postgres table, either synchronously or through
// a batch writer
type DBSink struct {
	conn    *sqlx.DB
	dialect goqu.DialectWrapper
	table   string
	writer  *batchwriter.BatchWriter
	logger  *log.Logger
}

// NewDBSink connects to postgres and returns a sink on the configured table
func NewDBSink(cfg *DBConfig) (*DBSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	s := &DBSink{
		conn:    conn,
		dialect: goqu.Dialect("postgres"),
		table:   table,
		logger:  log.New("audit"),
	}
	if cfg.BatchSize > 0 {
		interval := cfg.FlushIntervalSeconds
		if interval == 0 {
			interval = DefaultFlushInterval
		}
		s.writer, err = batchwriter.NewBatchWriter(
			context.Background(),
			cfg.BatchSize,
			time.Duration(interval)*time.Second,
			s.flushBatch,
			batchwriter.WithLogger(s.logger),
		)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return s, nil
}

// Record persists one event. In batch mode the event is queued for the next
// flush; the call blocks only when the queue is full and honors ctx
// cancellation while waiting.
func (s *DBSink) Record(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if s.writer != nil {
		return s.writer.AddWithContext(ctx, ev)
	}
	return s.insert(ctx, ev)
}

func (s *DBSink) insert(ctx context.Context, rows ...any) error {
	qry, args, err := s.dialect.Insert(s.table).Rows(rows...).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = s.conn.ExecContext(ctx, qry, args...)
	log.LogDBQuery(ctx, qry, time.Since(start), err)
	return err
}

// flushBatch inserts buffered events in a single statement. Failures are
// logged; the batch writer has no error path back to the producers.
func (s *DBSink) flushBatch(records ...any) {
	if len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.insert(ctx, records...); err != nil {
		s.logger.Error(err, "audit batch insert failed", log.KV{"rows": len(records)})
	}
}

// Close flushes any pending batch and closes the database connection
func (s *DBSink) Close() error {
	if s.writer != nil {
		s.writer.Stop()
	}
	return s.conn.Close()
}
