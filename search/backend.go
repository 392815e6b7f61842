package search

import (
	"context"
)

// Backend executes a plan against a full text index.
// Rows must come back ordered by rank (descending), then table id, then variable id.
// A failure must be reported as ErrBackendUnavailable or ErrBackendTimeout (possibly wrapped).
type Backend interface {
	Execute(ctx context.Context, plan *Plan) ([]Row, error)
}

// Row is one row of backend output. Highlighted text carries the plan's highlight markers, untouched.
type Row struct {
	Tier                Tier
	TableID             string
	VariableID          string
	HighlightedTable    string
	HighlightedVariable string
	Universe            string
	Rank                float64
}

// tier of the row, falling back to the presence of a variable id when the backend did not say
func (r *Row) tier() Tier {
	if r.Tier != 0 {
		return r.Tier
	}
	if r.VariableID == "" {
		return TierTable
	}
	return TierVariable
}

// BackendFunc adapts a plain function to the Backend interface
type BackendFunc func(ctx context.Context, plan *Plan) ([]Row, error)

func (f BackendFunc) Execute(ctx context.Context, plan *Plan) ([]Row, error) {
	return f(ctx, plan)
}
