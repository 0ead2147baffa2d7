package memstore

import "errors"

var (
	errInvalidJob        = errors.New("job requires a valid kind, an owner and at least one item")
	errInvalidStaleAfter = errors.New("stale_after must be positive")
)
