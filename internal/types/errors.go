package types

import "errors"

// Sentinel errors shared across the domain model. Component packages define
// their own, more specific sentinels (transport.ErrTimeout, events.ErrUnavailable,
// ...); these cover validation of the plain data types in this package.
var (
	ErrInvalidJob         = errors.New("job is invalid")
	ErrInvalidPosition    = errors.New("position is invalid")
	ErrInvalidInventory   = errors.New("inventory is invalid")
	ErrInvalidConstraints = errors.New("constraints are invalid")
	ErrInvalidPoolEvent   = errors.New("pool event is invalid")
)
