/*

This file contains the in-process Transport used by tests and dry runs:
a deterministic, scriptable stand-in for a real miner population. Each
miner's behavior is supplied as a Script, keyed by checkpoint block, so a
test can assert on exactly what the Round Executor does in response to a
refusal, a timeout, or a constraint violation without standing up a
network.

*/

package mocktransport

import (
	"context"
	"sync"

	"github.com/elys-network/lpvalidator/internal/transport"
	"github.com/elys-network/lpvalidator/internal/types"
)

// Outcome is what a scripted miner does at one checkpoint.
type Outcome struct {
	Response *types.RebalanceResponse
	Err      error // one of transport.ErrTimeout, transport.ErrRefused, transport.ErrTransport, or nil
}

// Script maps a checkpoint block to the Outcome a miner produces there.
// A miner with no entry for a block accepts with an empty decision
// (positions unchanged).
type Script map[uint64]Outcome

// Client is a Transport backed entirely by in-memory Scripts, one per
// miner.
type Client struct {
	mu       sync.Mutex
	scripts  map[string]Script
	calls    []callRecord
}

type callRecord struct {
	MinerID string
	Block   uint64
}

// New returns a Client with no scripted miners; use SetScript to add them.
func New() *Client {
	return &Client{scripts: make(map[string]Script)}
}

// SetScript installs or replaces the Script for minerID.
func (c *Client) SetScript(minerID string, script Script) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[minerID] = script
}

// Calls returns every (minerID, block) pair Query was invoked with, in
// order, for tests that assert on call shape rather than just outcomes.
func (c *Client) Calls() []callRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]callRecord, len(c.calls))
	copy(out, c.calls)
	return out
}

// Query implements transport.Transport.
func (c *Client) Query(ctx context.Context, minerID string, req types.RebalanceQuery) (*types.RebalanceResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, callRecord{MinerID: minerID, Block: req.PoolState.Block})
	script, ok := c.scripts[minerID]
	c.mu.Unlock()

	if !ok {
		return defaultAccept(minerID, req), nil
	}

	outcome, ok := script[req.PoolState.Block]
	if !ok {
		return defaultAccept(minerID, req), nil
	}
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Response, nil
}

func defaultAccept(minerID string, req types.RebalanceQuery) *types.RebalanceResponse {
	return &types.RebalanceResponse{
		MinerID: minerID,
		Refused: false,
		Decision: types.RebalanceDecision{
			Block:     req.PoolState.Block,
			Positions: req.Portfolio.Positions,
		},
	}
}

var _ transport.Transport = (*Client)(nil)
