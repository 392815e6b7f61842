package search

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Result of a complete search
type Result struct {
	Plan  *Plan
	Hits  []*Hit
	Stats AggregateStats

	TimePlan      time.Duration
	TimeBackend   time.Duration
	TimeAggregate time.Duration
	TimeTotal     time.Duration
}

// Run plans the query, sends it to the backend, and aggregates the rows.
// The backend call is bounded by ctx. Backend errors come back wrapped in ErrBackendTimeout or
// ErrBackendUnavailable. When there is nothing to show, the error satisfies IsNoResults, and the
// Result is still returned so that the caller can log it.
func Run(ctx context.Context, planner *Planner, backend Backend, query string, mode OutputMode, log Logger) (*Result, error) {
	start := time.Now()
	res := &Result{Hits: []*Hit{}}

	plan, err := planner.Plan(query, mode)
	res.TimePlan = time.Now().Sub(start)
	if err != nil {
		res.TimeTotal = res.TimePlan
		return res, err
	}
	res.Plan = plan

	backendStart := time.Now()
	rows, err := backend.Execute(ctx, plan)
	res.TimeBackend = time.Now().Sub(backendStart)
	if err != nil {
		res.TimeTotal = time.Now().Sub(start)
		return res, classifyBackendError(ctx, err)
	}

	aggStart := time.Now()
	res.Hits, res.Stats, err = Aggregate(rows, log)
	res.TimeAggregate = time.Now().Sub(aggStart)
	res.TimeTotal = time.Now().Sub(start)
	return res, err
}

// Make sure that whatever the backend returned is one of our two retryable errors
func classifyBackendError(ctx context.Context, err error) error {
	if errors.Is(err, ErrBackendTimeout) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
