/*

This file contains the default Constraints applied to a Round when a
Job's config does not override them. Unlike the teacher's
DefaultScoringParameters, there is no database-backed override path here:
Constraints are part of the Round itself (§4.G), not a separate
versioned parameters table, so this is the only place a default lives.

*/

package config

import "github.com/elys-network/lpvalidator/internal/types"

// DefaultConstraints is used for every Round unless a Job-specific
// override is introduced later. MaxIL and MinTickWidth are chosen
// conservatively; MaxRebalances bounds churn scoring penalizes anyway but
// is capped here so a misbehaving miner cannot submit unbounded decisions
// within a single round.
var DefaultConstraints = types.Constraints{
	MaxIL:         0.10,
	MinTickWidth:  10,
	MaxRebalances: 20,
}
