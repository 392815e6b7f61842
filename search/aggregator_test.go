package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Warnf(format string, params ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, params...))
}

func tableRow(table string, rank float64) Row {
	return Row{
		Tier:             TierTable,
		TableID:          table,
		HighlightedTable: "<mark>" + table + "</mark>",
		Universe:         "Households",
		Rank:             rank,
	}
}

func variableRow(table, variable string, rank float64) Row {
	return Row{
		Tier:                TierVariable,
		TableID:             table,
		VariableID:          variable,
		HighlightedTable:    table + " description",
		HighlightedVariable: "<mark>" + variable + "</mark>",
		Universe:            "Population",
		Rank:                rank,
	}
}

func TestAggregateTablePrecedence(t *testing.T) {
	rows := []Row{
		tableRow("B19013", 0.9),
		variableRow("B19013", "B19013_001", 0.5),
		variableRow("B19013", "B19013_002", 0.4),
	}
	hits, stats, err := Aggregate(rows, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "B19013", hits[0].TableID)
	assert.True(t, hits[0].IsTableLevel())
	assert.Equal(t, []string{}, hits[0].VariableIDs)
	assert.Equal(t, []string{}, hits[0].HighlightedVariables)
	assert.Equal(t, "<mark>B19013</mark>", hits[0].HighlightedTable)
	assert.Equal(t, 2, stats.Suppressed)

	// Precedence does not depend on the table row coming first
	rows = []Row{
		variableRow("B19013", "B19013_001", 0.95),
		tableRow("B19013", 0.9),
	}
	hits, _, err = Aggregate(rows, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].IsTableLevel())
	assert.Equal(t, 0.9, hits[0].Rank)
}

func TestAggregateNoRows(t *testing.T) {
	hits, stats, err := Aggregate(nil, nil)
	assert.ErrorIs(t, err, ErrNoMatches)
	assert.True(t, IsNoResults(err))
	assert.False(t, errors.Is(err, ErrEmptyQuery))
	assert.Equal(t, "no_matches", NoResultsReason(err))
	assert.NotNil(t, hits)
	assert.Equal(t, 0, stats.Rows)
}

func TestAggregateKeepsVariableOrder(t *testing.T) {
	rows := []Row{
		variableRow("B01001", "001", 0.7),
		variableRow("B01001", "002", 0.7),
	}
	hits, _, err := Aggregate(rows, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []string{"001", "002"}, hits[0].VariableIDs)
	assert.Equal(t, []string{"<mark>001</mark>", "<mark>002</mark>"}, hits[0].HighlightedVariables)
	assert.Equal(t, "Population", hits[0].Universe)
	assert.Equal(t, 0.7, hits[0].Rank)
}

// Rows arrive grouped by their table's best rank, then by variable id
func TestAggregateRankIsGroupBest(t *testing.T) {
	rows := []Row{
		variableRow("B01001", "B01001_001", 0.1),
		variableRow("B01001", "B01001_002", 0.9),
		tableRow("B19013", 0.5),
	}
	hits, _, err := Aggregate(rows, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "B01001", hits[0].TableID)
	assert.Equal(t, 0.9, hits[0].Rank)
	assert.Equal(t, 0.5, hits[1].Rank)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Rank, hits[i].Rank)
	}
}

func TestAggregateGrouping(t *testing.T) {
	rows := []Row{
		tableRow("B19013", 0.9),
		variableRow("B01001", "B01001_002", 0.8),
		variableRow("B01001", "B01001_026", 0.8),
		tableRow("B19001", 0.6),
		variableRow("C24010", "C24010_003", 0.3),
		variableRow("B01001", "B01001_003", 0.2), // not contiguous; still joins its group
	}
	hits, stats, err := Aggregate(rows, nil)
	require.NoError(t, err)

	inputTables := map[string]bool{}
	for _, r := range rows {
		inputTables[r.TableID] = true
	}
	require.Len(t, hits, len(inputTables))
	seen := map[string]bool{}
	order := []string{}
	for _, h := range hits {
		assert.False(t, seen[h.TableID], "table %v appears twice", h.TableID)
		seen[h.TableID] = true
		order = append(order, h.TableID)
		assert.Equal(t, len(h.VariableIDs), len(h.HighlightedVariables))
	}
	assert.Equal(t, []string{"B19013", "B01001", "B19001", "C24010"}, order)
	assert.Equal(t, []string{"B01001_002", "B01001_026", "B01001_003"}, hits[1].VariableIDs)
	assert.Equal(t, 0, stats.Suppressed)
	assert.Equal(t, 6, stats.Rows)
}

func TestAggregateTableLevelGroupIgnoresLaterRows(t *testing.T) {
	// Tier not set by the backend: inferred from the variable id
	rows := []Row{
		{TableID: "B25064", HighlightedTable: "Median <mark>Gross Rent</mark>", Rank: 1},
		{TableID: "B25064", HighlightedTable: "Median <mark>Gross Rent</mark>", Rank: 0.5},
	}
	hits, stats, err := Aggregate(rows, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].IsTableLevel())
	assert.Equal(t, 1, stats.Ignored)
}

func TestAggregateMalformedRows(t *testing.T) {
	log := &recordingLogger{}
	rows := []Row{
		{Tier: TierVariable, TableID: "", VariableID: "X_001", HighlightedVariable: "x", Rank: 1},
		{Tier: TierVariable, TableID: "B08301", VariableID: "B08301_010", HighlightedTable: "Means of Transportation", Rank: 0.9},
		variableRow("B08301", "B08301_011", 0.9),
		{Tier: TierVariable, TableID: "B08303", HighlightedTable: "Travel Time", HighlightedVariable: "stray", Rank: 0.5},
	}
	var hits []*Hit
	var stats AggregateStats
	var err error
	require.NotPanics(t, func() {
		hits, stats, err = Aggregate(rows, log)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Malformed)
	assert.Len(t, log.lines, 3)
	for _, line := range log.lines {
		assert.Contains(t, line, ErrMalformedRow.Error())
	}

	require.Len(t, hits, 2)
	// The first B08301 row lost its variable, so the group collapses to a table-level hit
	assert.Equal(t, "B08301", hits[0].TableID)
	assert.True(t, hits[0].IsTableLevel())
	assert.Equal(t, 1, stats.Ignored)
	// Stray text without a variable id is dropped, and the row stands as table-only
	assert.Equal(t, "B08303", hits[1].TableID)
	assert.True(t, hits[1].IsTableLevel())
}

func TestAggregateOnlyMalformed(t *testing.T) {
	_, stats, err := Aggregate([]Row{{VariableID: "X"}}, &recordingLogger{})
	assert.ErrorIs(t, err, ErrNoMatches)
	assert.Equal(t, 1, stats.Malformed)
}

func TestDisplay(t *testing.T) {
	hits := []*Hit{
		{TableID: "B01001", VariableIDs: []string{"001", "002"}, HighlightedVariables: []string{"a", "b"}, Rank: 0.5},
		{TableID: "B19013", VariableIDs: []string{}, HighlightedVariables: []string{}},
	}
	display := Display(hits)
	require.Len(t, display, 2)
	assert.Equal(t, []DisplayVariable{{ID: "001", Highlighted: "a"}, {ID: "002", Highlighted: "b"}}, display[0].Variables)
	assert.Equal(t, 0.5, display[0].Rank)
	assert.NotNil(t, display[1].Variables)
	assert.Empty(t, display[1].Variables)
}

func TestRun(t *testing.T) {
	planner := newTestPlanner(t, testAliases(t))

	t.Run("hits", func(t *testing.T) {
		var seen *Plan
		backend := BackendFunc(func(ctx context.Context, plan *Plan) ([]Row, error) {
			seen = plan
			return []Row{tableRow("B19013", 1)}, nil
		})
		res, err := Run(context.Background(), planner, backend, "household salary", ModeDocument, nil)
		require.NoError(t, err)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, "household income", seen.Rewritten)
		assert.Same(t, seen, res.Plan)
	})

	t.Run("empty query never reaches the backend", func(t *testing.T) {
		backend := BackendFunc(func(ctx context.Context, plan *Plan) ([]Row, error) {
			t.Fatal("backend called for an empty query")
			return nil, nil
		})
		res, err := Run(context.Background(), planner, backend, "  ", ModeDocument, nil)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.NotNil(t, res)
	})

	t.Run("no matches", func(t *testing.T) {
		backend := BackendFunc(func(ctx context.Context, plan *Plan) ([]Row, error) {
			return nil, nil
		})
		_, err := Run(context.Background(), planner, backend, "zzz_no_match", ModeDocument, nil)
		assert.ErrorIs(t, err, ErrNoMatches)
		assert.False(t, IsRetryable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		backend := BackendFunc(func(ctx context.Context, plan *Plan) ([]Row, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := Run(ctx, planner, backend, "income", ModeDocument, nil)
		assert.ErrorIs(t, err, ErrBackendTimeout)
		assert.True(t, IsRetryable(err))
	})

	t.Run("unavailable", func(t *testing.T) {
		calls := 0
		backend := BackendFunc(func(ctx context.Context, plan *Plan) ([]Row, error) {
			calls++
			return nil, errors.New("connection refused")
		})
		_, err := Run(context.Background(), planner, backend, "income", ModeDocument, nil)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 1, calls, "no automatic retry")
	})
}
