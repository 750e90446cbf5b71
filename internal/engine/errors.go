package engine

import "errors"

var (
	// ErrInvalidContext indicates an unknown scope or gender in the generation context.
	ErrInvalidContext = errors.New("engine: invalid generation context")
	// ErrCyclicVariable indicates a variable that references itself through its own pool.
	ErrCyclicVariable = errors.New("engine: cyclic variable")
	// ErrMaxDepthExceeded indicates variable or group nesting past the configured limit.
	ErrMaxDepthExceeded = errors.New("engine: max depth exceeded")
	// ErrUnresolvedVariable indicates a variable with no pool in any namespace.
	ErrUnresolvedVariable = errors.New("engine: unresolved variable")
	// ErrCyclicReference indicates a group reached again through its own refs.
	ErrCyclicReference = errors.New("engine: cyclic group reference")
)
