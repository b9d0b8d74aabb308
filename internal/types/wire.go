/*

This file contains the wire types exchanged with a miner over the
transport: the query the Round Executor sends at each checkpoint and the
response (or refusal) a miner returns.

*/

package types

// RebalanceQuery is sent to a miner at each checkpoint block. It carries
// everything the miner needs to decide a new set of positions: the pool's
// current state, the miner's own portfolio so far, and the constraints it
// must respect.
type RebalanceQuery struct {
	RoundID     string      `json:"round_id"`
	JobID       string      `json:"job_id"`
	PairAddress string      `json:"pair_address"`
	PoolState   PoolState   `json:"pool_state"`
	Portfolio   Portfolio   `json:"portfolio"`
	Constraints Constraints `json:"constraints"`
	Deadline    int64       `json:"deadline_unix_ms"`
}

// RebalanceDecision is one miner-proposed change to its position set at a
// checkpoint. An empty decision (Positions unchanged from the prior
// checkpoint) is valid and does not count against MaxRebalances.
type RebalanceDecision struct {
	Block     uint64     `json:"block"`
	Positions []Position `json:"positions"`
}

// RebalanceResponse is what a miner returns for a RebalanceQuery. Refused
// means the miner opts out of the rest of the round (it is not queried
// again), distinct from submitting a Decision that later turns out to
// violate Constraints.
type RebalanceResponse struct {
	MinerID  string             `json:"miner_id"`
	Refused  bool               `json:"refused"`
	Decision RebalanceDecision `json:"decision"`
}
