/*

This file contains the Postgres-backed Events Source: a pgxpool reader
over four event tables, one per Pool Event kind, normalizing pool
addresses via go-ethereum's common.Address so callers never have to care
whether an address arrived with a checksum, a 0x prefix, or mixed case.

*/

package pgevents

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elys-network/lpvalidator/internal/events"
	"github.com/elys-network/lpvalidator/internal/types"
)

// Store reads pool events from Postgres via pgxpool. It never writes;
// ingestion into these tables is out of scope for this system.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pgxpool to dsn and ensures the event tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgevents: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgevents: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS swap_events (
			pool_address TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			log_index BIGINT NOT NULL,
			sqrt_price_x96_after NUMERIC NOT NULL,
			tick_after INT NOT NULL,
			amount_in NUMERIC NOT NULL,
			amount_out NUMERIC NOT NULL,
			fee_paid NUMERIC NOT NULL,
			PRIMARY KEY (pool_address, block_number, log_index)
		)`,
		`CREATE TABLE IF NOT EXISTS mint_events (
			pool_address TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			log_index BIGINT NOT NULL,
			tick_lower INT NOT NULL,
			tick_upper INT NOT NULL,
			amount0 NUMERIC NOT NULL,
			amount1 NUMERIC NOT NULL,
			PRIMARY KEY (pool_address, block_number, log_index)
		)`,
		`CREATE TABLE IF NOT EXISTS burn_events (
			pool_address TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			log_index BIGINT NOT NULL,
			tick_lower INT NOT NULL,
			tick_upper INT NOT NULL,
			amount0 NUMERIC NOT NULL,
			amount1 NUMERIC NOT NULL,
			PRIMARY KEY (pool_address, block_number, log_index)
		)`,
		`CREATE TABLE IF NOT EXISTS collect_events (
			pool_address TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			log_index BIGINT NOT NULL,
			tick_lower INT NOT NULL,
			tick_upper INT NOT NULL,
			collected_amount0 NUMERIC NOT NULL,
			collected_amount1 NUMERIC NOT NULL,
			PRIMARY KEY (pool_address, block_number, log_index)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgevents: ensure schema: %w", err)
		}
	}
	return nil
}

func normalize(pool string) string {
	return events.NormalizePool(common.HexToAddress(pool).Hex())
}

// EventsIn implements events.Source.
func (s *Store) EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error) {
	addr := normalize(pool)

	var out []types.PoolEvent

	swapRows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index, sqrt_price_x96_after, tick_after, amount_in, amount_out, fee_paid
		FROM swap_events WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
	`, addr, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}
	for swapRows.Next() {
		var blockNumber, logIndex uint64
		var sqrtPrice string
		var tickAfter int32
		var amountIn, amountOut, feePaid int64
		if err := swapRows.Scan(&blockNumber, &logIndex, &sqrtPrice, &tickAfter, &amountIn, &amountOut, &feePaid); err != nil {
			swapRows.Close()
			return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
		}
		sqrtPriceX96, ok := new(big.Int).SetString(sqrtPrice, 10)
		if !ok {
			sqrtPriceX96 = new(big.Int)
		}
		out = append(out, types.PoolEvent{
			Kind:              types.EventSwap,
			BlockNumber:       blockNumber,
			LogIndex:          logIndex,
			SqrtPriceX96After: sqrtPriceX96,
			TickAfter:         tickAfter,
			AmountIn:          sdkmath.NewInt(amountIn),
			AmountOut:         sdkmath.NewInt(amountOut),
			FeePaid:           sdkmath.NewInt(feePaid),
		})
	}
	swapRows.Close()
	if err := swapRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}

	mintRows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index, tick_lower, tick_upper, amount0, amount1
		FROM mint_events WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
	`, addr, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}
	for mintRows.Next() {
		var blockNumber, logIndex uint64
		var tickLower, tickUpper int32
		var amount0, amount1 int64
		if err := mintRows.Scan(&blockNumber, &logIndex, &tickLower, &tickUpper, &amount0, &amount1); err != nil {
			mintRows.Close()
			return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
		}
		out = append(out, types.PoolEvent{
			Kind:        types.EventMint,
			BlockNumber: blockNumber,
			LogIndex:    logIndex,
			TickLower:   tickLower,
			TickUpper:   tickUpper,
			Amount0:     sdkmath.NewInt(amount0),
			Amount1:     sdkmath.NewInt(amount1),
		})
	}
	mintRows.Close()
	if err := mintRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}

	burnRows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index, tick_lower, tick_upper, amount0, amount1
		FROM burn_events WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
	`, addr, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}
	for burnRows.Next() {
		var blockNumber, logIndex uint64
		var tickLower, tickUpper int32
		var amount0, amount1 int64
		if err := burnRows.Scan(&blockNumber, &logIndex, &tickLower, &tickUpper, &amount0, &amount1); err != nil {
			burnRows.Close()
			return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
		}
		out = append(out, types.PoolEvent{
			Kind:        types.EventBurn,
			BlockNumber: blockNumber,
			LogIndex:    logIndex,
			TickLower:   tickLower,
			TickUpper:   tickUpper,
			Amount0:     sdkmath.NewInt(amount0),
			Amount1:     sdkmath.NewInt(amount1),
		})
	}
	burnRows.Close()
	if err := burnRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}

	collectRows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index, tick_lower, tick_upper, collected_amount0, collected_amount1
		FROM collect_events WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
	`, addr, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}
	for collectRows.Next() {
		var blockNumber, logIndex uint64
		var tickLower, tickUpper int32
		var amount0, amount1 int64
		if err := collectRows.Scan(&blockNumber, &logIndex, &tickLower, &tickUpper, &amount0, &amount1); err != nil {
			collectRows.Close()
			return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
		}
		out = append(out, types.PoolEvent{
			Kind:             types.EventCollect,
			BlockNumber:      blockNumber,
			LogIndex:         logIndex,
			TickLower:        tickLower,
			TickUpper:        tickUpper,
			CollectedAmount0: sdkmath.NewInt(amount0),
			CollectedAmount1: sdkmath.NewInt(amount1),
		})
	}
	collectRows.Close()
	if err := collectRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}

	sortEvents(out)
	return out, nil
}

// PriceAtOrBefore implements events.Source.
func (s *Store) PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error) {
	addr := normalize(pool)
	var sqrtPrice string
	row := s.pool.QueryRow(ctx, `
		SELECT sqrt_price_x96_after FROM swap_events
		WHERE pool_address = $1 AND block_number <= $2
		ORDER BY block_number DESC, log_index DESC LIMIT 1
	`, addr, block)
	if err := row.Scan(&sqrtPrice); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}
	sqrtPriceX96, ok := new(big.Int).SetString(sqrtPrice, 10)
	if !ok {
		return nil, false, fmt.Errorf("%w: malformed sqrt price", events.ErrUnavailable)
	}
	return sqrtPriceX96, true, nil
}

// HeadBlock returns the highest block_number observed across all event
// tables for pool, for callers (the scheduler) that need to size a tick's
// block range off live chain progress rather than a fixed span.
func (s *Store) HeadBlock(ctx context.Context, pool string) (uint64, error) {
	addr := normalize(pool)
	var head int64
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(block_number), 0) FROM (
			SELECT MAX(block_number) AS block_number FROM swap_events WHERE pool_address = $1
			UNION ALL SELECT MAX(block_number) FROM mint_events WHERE pool_address = $1
			UNION ALL SELECT MAX(block_number) FROM burn_events WHERE pool_address = $1
			UNION ALL SELECT MAX(block_number) FROM collect_events WHERE pool_address = $1
		) heads;`, addr)
	if err := row.Scan(&head); err != nil {
		return 0, fmt.Errorf("%w: %v", events.ErrUnavailable, err)
	}
	return uint64(head), nil
}

// sortEvents is an insertion sort, sufficient since the per-checkpoint
// event count is small and this keeps the package free of a sort-package
// closure allocation on the hot path.
func sortEvents(evs []types.PoolEvent) {
	for i := 1; i < len(evs); i++ {
		j := i
		for j > 0 && evs[j].Before(evs[j-1]) {
			evs[j], evs[j-1] = evs[j-1], evs[j]
			j--
		}
	}
}
