package metrics

import "expvar"

var (
	Solves         = expvar.NewInt("solves")
	SolveErrors    = expvar.NewInt("solve_errors")
	SolveTimeouts  = expvar.NewInt("solve_timeouts")
	Iterations     = expvar.NewInt("solve_iterations")
	PrunedOrders   = expvar.NewInt("pruned_orders")
	ExecutedOrders = expvar.NewInt("executed_orders")
	SolutionSaves  = expvar.NewInt("solution_saves")
)
