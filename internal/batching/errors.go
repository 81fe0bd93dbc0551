package batching

import "errors"

var (
	ErrNoOrders          = errors.New("batching: no orders")
	ErrInvalidOrder      = errors.New("batching: invalid order")
	ErrInvalidBatchSize  = errors.New("batching: batch size must be at least 1")
	ErrInfeasibleRequest = errors.New("batching: infeasible single-batch request")
	ErrInvalidBatching   = errors.New("batching: invalid batching")
	ErrNoSolver          = errors.New("batching: strategy needs a solver")
	ErrUnknownStrategy   = errors.New("batching: unknown strategy")
)
