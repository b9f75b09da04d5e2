package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dexFund/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS engine_logs (
	chain_id     BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	log_index    BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	address      TEXT NOT NULL,
	topics       TEXT[] NOT NULL,
	data         TEXT NOT NULL,
	ts           BIGINT NOT NULL,
	ingested_at  TEXT NOT NULL,
	PRIMARY KEY (chain_id, block_number, log_index)
);
CREATE TABLE IF NOT EXISTS reserve_snapshots (
	chain_id      BIGINT NOT NULL,
	engine        TEXT NOT NULL,
	kind          TEXT NOT NULL,
	block_number  BIGINT NOT NULL,
	reserve_base  NUMERIC(78, 0) NOT NULL,
	reserve_quote NUMERIC(78, 0) NOT NULL,
	ts            BIGINT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, engine, block_number)
);
CREATE TABLE IF NOT EXISTS sim_state (
	name            TEXT PRIMARY KEY,
	last_block      BIGINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for the event journal.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewStore(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{pool: pool, timeout: timeout}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by the store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch implements storage.Storage with the store's own timeout.
func (s *Store) PutLogBatch(logs []model.LogRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.InsertLogs(ctx, logs)
}

// InsertLogs writes journal records. Records already stored are skipped.
func (s *Store) InsertLogs(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(`
			INSERT INTO engine_logs (
				chain_id, block_number, log_index, tx_hash, address, topics, data, ts, ingested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain_id, block_number, log_index) DO NOTHING
		`,
			int64(log.ChainID),
			int64(log.BlockNumber),
			int64(log.LogIndex),
			log.TxHash,
			log.Address,
			log.Topics,
			log.Data,
			int64(log.Timestamp),
			log.IngestedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
	}
	return nil
}

// UpsertReserves inserts or updates reserve snapshots.
func (s *Store) UpsertReserves(ctx context.Context, snapshots []model.ReserveSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO reserve_snapshots (
				chain_id, engine, kind, block_number, reserve_base, reserve_quote, ts, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, now())
			ON CONFLICT (chain_id, engine, block_number)
			DO UPDATE SET
				reserve_base = EXCLUDED.reserve_base,
				reserve_quote = EXCLUDED.reserve_quote,
				ts = EXCLUDED.ts,
				updated_at = now()
		`,
			int64(snap.ChainID),
			snap.Engine,
			snap.Kind,
			int64(snap.BlockNumber),
			snap.ReserveBase,
			snap.ReserveQuote,
			int64(snap.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert reserves: %w", err)
		}
	}
	return nil
}

// LoadState returns the last stored block for a run name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_block FROM sim_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last stored block for a run name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sim_state (name, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = now()
	`, name, int64(block))
	return err
}
