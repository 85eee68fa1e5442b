package database

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
)

const (
	defaultTable       = "records"
	defaultBatchSize   = 100
	defaultPingTimeout = 5 * time.Second
)

// Postgres is a Source pulling the rows of a table with a JSONB body in id
// order. PostgresSink writes to such a table.
type Postgres struct {
	dsn         string
	table       string
	batchSize   int
	pingTimeout time.Duration

	pool   *pgxpool.Pool
	cursor int64
	batch  []*message.RecordMessage
}

// PostgresOpt configures a Postgres store
type PostgresOpt func(*Postgres)

// WithTable sets the table records are read from and written to
func WithTable(table string) PostgresOpt {
	return func(p *Postgres) {
		p.table = table
	}
}

// WithBatchSize sets how many rows a Pull fetches at once
func WithBatchSize(size int) PostgresOpt {
	return func(p *Postgres) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithPingTimeout bounds how long Load waits for the server
func WithPingTimeout(timeout time.Duration) PostgresOpt {
	return func(p *Postgres) {
		p.pingTimeout = timeout
	}
}

// NewPostgres returns a store for the database at dsn
func NewPostgres(dsn string, opts ...PostgresOpt) *Postgres {
	p := &Postgres{
		dsn:         dsn,
		table:       defaultTable,
		batchSize:   defaultBatchSize,
		pingTimeout: defaultPingTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load implements Source. It connects to the server.
func (p *Postgres) Load(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return errors.Wrap(err, "parse postgres dsn")
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return errors.Wrap(err, "connect to postgres")
	}
	p.pool = pool
	return nil
}

// Pull implements Source. Rows are fetched in batches; an empty batch
// means the table holds nothing newer than the last row served.
func (p *Postgres) Pull(ctx context.Context, timeout time.Duration) (*message.RecordMessage, error) {
	if p.pool == nil {
		return nil, ErrNotLoaded
	}
	if len(p.batch) == 0 {
		queryCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.fetch(queryCtx); err != nil {
			if errors.Is(queryCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, ErrExhausted
			}
			return nil, err
		}
	}
	if len(p.batch) == 0 {
		// nothing new, wait before the caller polls again
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, ErrExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	record := p.batch[0]
	p.batch = p.batch[1:]
	return record, nil
}

func (p *Postgres) fetch(ctx context.Context) error {
	rows, err := p.pool.Query(ctx, p.selectQuery(), p.cursor, p.batchSize)
	if err != nil {
		return errors.Wrap(err, "query records")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			key  string
			ts   time.Time
			body []byte
		)
		if err := rows.Scan(&id, &key, &ts, &body); err != nil {
			return errors.Wrap(err, "scan record")
		}
		p.cursor = id
		record, err := recordFromJSON(body)
		if err != nil {
			// a bad row is skipped, the cursor already moved past it
			continue
		}
		record.ID = strconv.FormatInt(id, 10)
		record.Key = key
		record.Timestamp = ts
		p.batch = append(p.batch, record)
	}
	return errors.Wrap(rows.Err(), "read records")
}

// Close implements Source
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// tableIdent returns the quoted table name
func (p *Postgres) tableIdent() string {
	return pgx.Identifier{p.table}.Sanitize()
}

func (p *Postgres) selectQuery() string {
	return `SELECT id, key, ts, body FROM ` + p.tableIdent() + ` WHERE id > $1 ORDER BY id LIMIT $2`
}

// PostgresSink stores records in a table with a JSONB body, creating the
// table on Load when missing
type PostgresSink struct {
	*Postgres
}

// NewPostgresSink returns a sink for the database at dsn
func NewPostgresSink(dsn string, opts ...PostgresOpt) *PostgresSink {
	return &PostgresSink{Postgres: NewPostgres(dsn, opts...)}
}

// Load implements Sink. It connects to the server and makes sure the table
// exists.
func (s *PostgresSink) Load(ctx context.Context) error {
	if err := s.Postgres.Load(ctx); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, s.createQuery()); err != nil {
		_ = s.Close()
		return errors.Wrapf(err, "create table %s", s.table)
	}
	return nil
}

// Store implements Sink
func (s *PostgresSink) Store(ctx context.Context, record *message.RecordMessage) error {
	if s.pool == nil {
		return ErrNotLoaded
	}
	body, err := payloadToJSON(record)
	if err != nil {
		return err
	}
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, s.insertQuery(), record.Key, record.Sender, ts, body); err != nil {
		return errors.Wrapf(err, "store record %s", record.ID)
	}
	return nil
}

func (s *PostgresSink) createQuery() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.tableIdent() + ` (
		id BIGSERIAL PRIMARY KEY,
		key TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		body JSONB NOT NULL
	)`
}

func (s *PostgresSink) insertQuery() string {
	return `INSERT INTO ` + s.tableIdent() + ` (key, sender, ts, body) VALUES ($1, $2, $3, $4)`
}
