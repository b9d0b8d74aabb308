/*

This file contains the Reputation Store: the explicit handle the
Scheduler uses to persist Jobs, Rounds, Predictions,
MinerScores, and daily participation. Unlike the source this module
imitates, there is no process-wide database global — a Store is
constructed once at startup and passed to whatever needs it.

*/

package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpvalidator/internal/logger"
)

// Config holds the connection parameters for the Reputation Store's
// backing Postgres database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store is the Reputation Store. Score updates are serialized per job via
// jobLocks so concurrent rounds for different jobs never block each
// other, but two rounds for the same job can never race on the same
// MinerScore row.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
}

// New opens the connection pool, verifies it, and ensures the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}

	s := &Store{
		db:       db,
		log:      logger.GetForComponent("state"),
		jobLocks: make(map[string]*sync.Mutex),
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info().Msg("reputation store connected")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection pool is reachable, for the dashboard's
// health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) lockFor(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.jobLocks[jobID]
	if !ok {
		l = &sync.Mutex{}
		s.jobLocks[jobID] = l
	}
	return l
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	pair_address TEXT NOT NULL,
	vault_address TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	round_duration_seconds BIGINT NOT NULL,
	checkpoint_interval BIGINT NOT NULL,
	target TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rounds (
	round_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(job_id),
	round_type TEXT NOT NULL,
	start_block BIGINT NOT NULL,
	end_block BIGINT NOT NULL,
	max_il DOUBLE PRECISION NOT NULL,
	min_tick_width INTEGER NOT NULL,
	max_rebalances INTEGER NOT NULL,
	initial_inventory JSONB NOT NULL,
	initial_positions JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	aborted BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_rounds_job_started ON rounds(job_id, started_at DESC);

CREATE TABLE IF NOT EXISTS predictions (
	round_id TEXT NOT NULL REFERENCES rounds(round_id),
	miner_id TEXT NOT NULL,
	accepted BOOLEAN NOT NULL,
	violated BOOLEAN NOT NULL DEFAULT FALSE,
	raw_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	normalized_rank INTEGER NOT NULL DEFAULT 0,
	final_portfolio JSONB NOT NULL,
	decisions JSONB NOT NULL,
	PRIMARY KEY (round_id, miner_id)
);

CREATE TABLE IF NOT EXISTS miner_scores (
	job_id TEXT NOT NULL REFERENCES jobs(job_id),
	miner_id TEXT NOT NULL,
	eval_ema DOUBLE PRECISION NOT NULL DEFAULT 0,
	live_ema DOUBLE PRECISION NOT NULL DEFAULT 0,
	combined DOUBLE PRECISION NOT NULL DEFAULT 0,
	had_eval BOOLEAN NOT NULL DEFAULT FALSE,
	had_live BOOLEAN NOT NULL DEFAULT FALSE,
	last_eval_at TIMESTAMPTZ,
	last_live_at TIMESTAMPTZ,
	PRIMARY KEY (job_id, miner_id)
);

CREATE TABLE IF NOT EXISTS participation (
	job_id TEXT NOT NULL REFERENCES jobs(job_id),
	miner_id TEXT NOT NULL,
	utc_date DATE NOT NULL,
	PRIMARY KEY (job_id, miner_id, utc_date)
);
CREATE INDEX IF NOT EXISTS idx_participation_job_date ON participation(job_id, utc_date DESC);

CREATE TABLE IF NOT EXISTS live_executions (
	round_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(job_id),
	miner_id TEXT NOT NULL,
	decisions JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_live_executions_status ON live_executions(status) WHERE status <> 'DONE';

CREATE TABLE IF NOT EXISTS eligibility_cache (
	job_id TEXT NOT NULL REFERENCES jobs(job_id),
	miner_id TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, miner_id)
);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("state: ensure schema: %w", err)
	}
	return nil
}
