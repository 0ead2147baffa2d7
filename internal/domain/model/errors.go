package model

import "errors"

// Store sentinels shared by the Postgres and in-memory implementations.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotStoppable  = errors.New("job is not pending or processing")
	ErrJobNotResumable  = errors.New("job is not paused or failed, or has no remaining items")
	ErrAccountNotFound  = errors.New("credit account not found")
	ErrRunTokenRequired = errors.New("run token is required")
)
