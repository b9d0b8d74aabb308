package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/elys-network/lpvalidator/internal/types"
)

// LiveExecutionStatus tracks one live round's handoff to the on-chain
// executor, independent of whether the submission has succeeded yet.
type LiveExecutionStatus string

const (
	LiveExecutionPending LiveExecutionStatus = "PENDING"
	LiveExecutionRetry   LiveExecutionStatus = "RETRY"
	LiveExecutionDone    LiveExecutionStatus = "DONE"
	LiveExecutionFailed  LiveExecutionStatus = "FAILED"
)

// LiveExecution is one winning miner's decisions queued for on-chain
// submission by the Live Gate.
type LiveExecution struct {
	RoundID   string
	JobID     string
	MinerID   string
	Decisions []types.RebalanceDecision
	Status    LiveExecutionStatus
	Attempts  int
	LastError string
}

// EnqueueLiveExecution records a winning miner's decisions for a live
// round. Idempotent by round_id: calling it twice for the same round is
// a no-op, so the Scheduler can retry the handoff without double-queuing.
func (s *Store) EnqueueLiveExecution(ctx context.Context, e LiveExecution) error {
	decisionsJSON, err := json.Marshal(e.Decisions)
	if err != nil {
		return fmt.Errorf("state: marshal live execution decisions: %w", err)
	}
	const stmt = `
		INSERT INTO live_executions (round_id, job_id, miner_id, decisions, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round_id) DO NOTHING;`
	_, err = s.db.ExecContext(ctx, stmt, e.RoundID, e.JobID, e.MinerID, decisionsJSON, string(LiveExecutionPending))
	if err != nil {
		return fmt.Errorf("state: enqueue live execution %q: %w", e.RoundID, err)
	}
	return nil
}

// PendingLiveExecutions returns every execution not yet DONE, for the
// Live Gate's drain loop.
func (s *Store) PendingLiveExecutions(ctx context.Context) ([]LiveExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, job_id, miner_id, decisions, status, attempts, last_error
		FROM live_executions WHERE status <> $1;`, string(LiveExecutionDone))
	if err != nil {
		return nil, fmt.Errorf("state: pending live executions: %w", err)
	}
	defer rows.Close()

	var out []LiveExecution
	for rows.Next() {
		var e LiveExecution
		var decisionsJSON []byte
		var status string
		var lastError sql.NullString
		if err := rows.Scan(&e.RoundID, &e.JobID, &e.MinerID, &decisionsJSON, &status, &e.Attempts, &lastError); err != nil {
			return nil, fmt.Errorf("state: scan live execution: %w", err)
		}
		if err := json.Unmarshal(decisionsJSON, &e.Decisions); err != nil {
			return nil, fmt.Errorf("state: unmarshal live execution decisions: %w", err)
		}
		e.Status = LiveExecutionStatus(status)
		e.LastError = lastError.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkLiveExecutionAttempt records the outcome of one submission attempt.
// A nil submitErr marks the execution DONE; otherwise it increments
// attempts and transitions to RETRY (or FAILED once maxAttempts is hit).
func (s *Store) MarkLiveExecutionAttempt(ctx context.Context, roundID string, submitErr error, maxAttempts int) error {
	if submitErr == nil {
		_, err := s.db.ExecContext(ctx, `UPDATE live_executions SET status = $1, updated_at = now() WHERE round_id = $2;`,
			string(LiveExecutionDone), roundID)
		if err != nil {
			return fmt.Errorf("state: mark live execution %q done: %w", roundID, err)
		}
		return nil
	}

	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts FROM live_executions WHERE round_id = $1;`, roundID).Scan(&attempts); err != nil {
		return fmt.Errorf("state: mark live execution %q: load attempts: %w", roundID, err)
	}
	attempts++
	status := LiveExecutionRetry
	if attempts >= maxAttempts {
		status = LiveExecutionFailed
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE live_executions SET status = $1, attempts = $2, last_error = $3, updated_at = now() WHERE round_id = $4;`,
		string(status), attempts, submitErr.Error(), roundID)
	if err != nil {
		return fmt.Errorf("state: mark live execution %q attempt: %w", roundID, err)
	}
	return nil
}
