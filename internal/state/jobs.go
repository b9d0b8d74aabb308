package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elys-network/lpvalidator/internal/types"
)

// UpsertJob inserts or updates a Job's static configuration. Called once
// per entry in the operator's job list at startup, and again whenever
// the list is reloaded.
func (s *Store) UpsertJob(ctx context.Context, job types.Job) error {
	const stmt = `
		INSERT INTO jobs (job_id, pair_address, vault_address, chain_id, round_duration_seconds, checkpoint_interval, target, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			pair_address = EXCLUDED.pair_address,
			vault_address = EXCLUDED.vault_address,
			chain_id = EXCLUDED.chain_id,
			round_duration_seconds = EXCLUDED.round_duration_seconds,
			checkpoint_interval = EXCLUDED.checkpoint_interval,
			target = EXCLUDED.target,
			active = EXCLUDED.active;`

	_, err := s.db.ExecContext(ctx, stmt,
		job.JobID, job.PairAddress, job.VaultAddress, job.ChainID,
		int64(job.RoundDuration.Seconds()), job.CheckpointInterval, job.Target, job.Active)
	if err != nil {
		return fmt.Errorf("state: upsert job %q: %w", job.JobID, err)
	}
	return nil
}

// ListActiveJobs returns every Job with active = true, in no particular
// order; the scheduler spawns one goroutine per entry.
func (s *Store) ListActiveJobs(ctx context.Context) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, pair_address, vault_address, chain_id, round_duration_seconds, checkpoint_interval, target, active
		FROM jobs WHERE active = TRUE;`)
	if err != nil {
		return nil, fmt.Errorf("state: list active jobs: %w", err)
	}
	defer rows.Close()

	var out []types.Job
	for rows.Next() {
		var job types.Job
		var durationSeconds int64
		if err := rows.Scan(&job.JobID, &job.PairAddress, &job.VaultAddress, &job.ChainID,
			&durationSeconds, &job.CheckpointInterval, &job.Target, &job.Active); err != nil {
			return nil, fmt.Errorf("state: scan job: %w", err)
		}
		job.RoundDuration = secondsToDuration(durationSeconds)
		out = append(out, job)
	}
	return out, rows.Err()
}

// GetJob loads a single Job by ID, or sql.ErrNoRows if it doesn't exist.
func (s *Store) GetJob(ctx context.Context, jobID string) (types.Job, error) {
	var job types.Job
	var durationSeconds int64
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, pair_address, vault_address, chain_id, round_duration_seconds, checkpoint_interval, target, active
		FROM jobs WHERE job_id = $1;`, jobID).
		Scan(&job.JobID, &job.PairAddress, &job.VaultAddress, &job.ChainID,
			&durationSeconds, &job.CheckpointInterval, &job.Target, &job.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Job{}, err
		}
		return types.Job{}, fmt.Errorf("state: get job %q: %w", jobID, err)
	}
	job.RoundDuration = secondsToDuration(durationSeconds)
	return job, nil
}
