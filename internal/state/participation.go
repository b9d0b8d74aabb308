package state

import (
	"context"
	"fmt"
	"time"
)

// eligibilityWindowDays is the number of trailing calendar days a miner
// must have participated in every one of to be eligible for live round
// selection.
const eligibilityWindowDays = 7

// RecordParticipation marks that minerID took part in at least one eval
// round for jobID on the UTC calendar day containing at. Idempotent:
// recording the same (job, miner, day) twice is a no-op. Refused miners
// must not be passed here — only accepted Predictions count.
func (s *Store) RecordParticipation(ctx context.Context, jobID, minerID string, at time.Time) error {
	const stmt = `
		INSERT INTO participation (job_id, miner_id, utc_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, miner_id, utc_date) DO NOTHING;`
	_, err := s.db.ExecContext(ctx, stmt, jobID, minerID, at.UTC().Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("state: record participation for %q: %w", minerID, err)
	}
	return nil
}

// ListEligible returns every miner who participated on each of the
// eligibilityWindowDays calendar days ending on d (inclusive), for the
// live round selection gate.
func (s *Store) ListEligible(ctx context.Context, jobID string, d time.Time) ([]string, error) {
	start, end := eligibilityWindow(d)

	const query = `
		SELECT miner_id FROM participation
		WHERE job_id = $1 AND utc_date BETWEEN $2 AND $3
		GROUP BY miner_id
		HAVING COUNT(DISTINCT utc_date) = $4;`

	rows, err := s.db.QueryContext(ctx, query, jobID, start, end, eligibilityWindowDays)
	if err != nil {
		return nil, fmt.Errorf("state: list eligible for %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var minerID string
		if err := rows.Scan(&minerID); err != nil {
			return nil, fmt.Errorf("state: scan eligible miner: %w", err)
		}
		out = append(out, minerID)
	}
	return out, rows.Err()
}

// eligibilityWindow returns the [start, end] UTC calendar dates (inclusive,
// formatted YYYY-MM-DD) of the eligibilityWindowDays-day window ending on d.
func eligibilityWindow(d time.Time) (start, end string) {
	startDate := d.UTC().AddDate(0, 0, -(eligibilityWindowDays - 1))
	return startDate.Format("2006-01-02"), d.UTC().Format("2006-01-02")
}

// RollupParticipation recomputes every active job's 7-day eligibility set
// and writes it to eligibility_cache, so the scheduler's hot-path tick can
// read CachedEligible instead of re-running the GROUP BY in ListEligible
// on every round_duration tick. Intended to run off a daily cron sweep.
func (s *Store) RollupParticipation(ctx context.Context, at time.Time) error {
	jobs, err := s.ListActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("state: rollup participation: list jobs: %w", err)
	}

	for _, job := range jobs {
		eligible, err := s.ListEligible(ctx, job.JobID, at)
		if err != nil {
			return fmt.Errorf("state: rollup participation for %q: %w", job.JobID, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("state: rollup participation for %q: begin tx: %w", job.JobID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM eligibility_cache WHERE job_id = $1;`, job.JobID); err != nil {
			tx.Rollback()
			return fmt.Errorf("state: rollup participation for %q: clear: %w", job.JobID, err)
		}
		for _, minerID := range eligible {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO eligibility_cache (job_id, miner_id, computed_at) VALUES ($1, $2, $3)
				ON CONFLICT (job_id, miner_id) DO UPDATE SET computed_at = EXCLUDED.computed_at;`,
				job.JobID, minerID, at); err != nil {
				tx.Rollback()
				return fmt.Errorf("state: rollup participation for %q: insert %q: %w", job.JobID, minerID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("state: rollup participation for %q: commit: %w", job.JobID, err)
		}
	}
	return nil
}

// CachedEligible reads the eligibility set RollupParticipation last
// computed for jobID. Cheap relative to ListEligible, which recomputes
// the 7-day window from the raw participation log on every call.
func (s *Store) CachedEligible(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT miner_id FROM eligibility_cache WHERE job_id = $1;`, jobID)
	if err != nil {
		return nil, fmt.Errorf("state: cached eligible for %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var minerID string
		if err := rows.Scan(&minerID); err != nil {
			return nil, fmt.Errorf("state: scan cached eligible miner: %w", err)
		}
		out = append(out, minerID)
	}
	return out, rows.Err()
}
