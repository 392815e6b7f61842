package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/IMQS/log"
	"github.com/lib/pq"

	"github.com/IMQS/censearch/search"
)

/*
One statement does both tiers, so that "no variable rows for a table that matched directly" is
decided by the database and not after the fact. An example of what we generate, with the default
field lists:

WITH q AS (SELECT plainto_tsquery('english', $1) AS query),
table_hits AS (
	SELECT 1 AS tier, t.id AS table_id, ...
	       ts_rank($2::float4[], setweight(to_tsvector('english', t.keyword), 'A') || ..., q.query) AS rnk
	FROM censearch.acs_tables t, q
	WHERE (setweight(...) || ...) @@ q.query
),
id_hits AS (...),   -- table id prefix, only when table_hits is empty
var_hits AS (...)   -- canonical tables only, minus anything in table_hits or id_hits
SELECT ... ORDER BY group_rank DESC, table_id, tier, variable_id LIMIT $6

group_rank is the best rank in each table, so that all the rows of one table come out together.
*/

var fieldColumns = map[search.Field]string{
	search.FieldKeyword:     "t.keyword",
	search.FieldUnkeyedText: "t.unkeyed_text",
	search.FieldFullLabel:   "v.full_label",
}

// tsvectorExpr builds the weighted document vector for one tier
func tsvectorExpr(fields []search.WeightedField) (string, error) {
	parts := []string{}
	for _, f := range fields {
		col, ok := fieldColumns[f.Field]
		if !ok {
			return "", fmt.Errorf("Field %v cannot be searched", f.Field)
		}
		parts = append(parts, fmt.Sprintf("setweight(to_tsvector('english', %v), '%v')", col, f.Weight))
	}
	if len(parts) == 0 {
		return "", errors.New("No fields to search")
	}
	return "(" + strings.Join(parts, " || ") + ")", nil
}

// buildSearchSQL returns the statement and its arguments for a plan
func buildSearchSQL(plan *search.Plan) (string, []interface{}, error) {
	tableDoc, err := tsvectorExpr(plan.Tables.Fields)
	if err != nil {
		return "", nil, err
	}
	varDoc, err := tsvectorExpr(plan.Variables.Fields)
	if err != nil {
		return "", nil, err
	}
	canonicalTables := "TRUE"
	if plan.Tables.CanonicalIDOnly {
		canonicalTables = "length(t.id) = $5::int"
	}
	canonicalVariables := "TRUE"
	if plan.Variables.CanonicalIDOnly {
		canonicalVariables = "length(t.id) = $5::int"
	}

	stmt := fmt.Sprintf(`
WITH q AS (SELECT plainto_tsquery('english', $1::text) AS query),
table_hits AS (
	SELECT 1 AS tier, t.id AS table_id, ''::varchar AS variable_id,
		ts_headline('english', t.description, q.query, $3::text) AS highlighted_table,
		''::text AS highlighted_variable,
		t.universe AS universe,
		ts_rank($2::float4[], %[1]v, q.query) AS rnk
	FROM censearch.acs_tables t, q
	WHERE %[3]v AND %[1]v @@ q.query
),
id_hits AS (
	SELECT 1 AS tier, t.id AS table_id, ''::varchar AS variable_id,
		t.description::text AS highlighted_table,
		''::text AS highlighted_variable,
		t.universe AS universe,
		($2::float4[])[1] AS rnk
	FROM censearch.acs_tables t
	WHERE $4::text <> '' AND length(t.id) = $5::int AND t.id LIKE $4::text || '%%'
		AND NOT EXISTS (SELECT 1 FROM table_hits)
),
var_hits AS (
	SELECT 2 AS tier, t.id AS table_id, v.id AS variable_id,
		ts_headline('english', t.description, q.query, $3::text) AS highlighted_table,
		ts_headline('english', v.full_label, q.query, $3::text) AS highlighted_variable,
		t.universe AS universe,
		ts_rank($2::float4[], %[2]v, q.query) AS rnk
	FROM censearch.acs_variables v INNER JOIN censearch.acs_tables t ON t.id = v.table_id, q
	WHERE %[4]v AND %[2]v @@ q.query
		AND NOT EXISTS (SELECT 1 FROM table_hits th WHERE th.table_id = t.id)
		AND NOT EXISTS (SELECT 1 FROM id_hits ih WHERE ih.table_id = t.id)
),
all_hits AS (
	SELECT * FROM table_hits
	UNION ALL SELECT * FROM id_hits
	UNION ALL SELECT * FROM var_hits
)
SELECT tier, table_id, variable_id, highlighted_table, highlighted_variable, universe, rnk
FROM (SELECT *, max(rnk) OVER (PARTITION BY table_id) AS group_rank FROM all_hits) ranked
ORDER BY group_rank DESC, table_id, tier, variable_id
LIMIT $6::int`, tableDoc, varDoc, canonicalTables, canonicalVariables)

	args := []interface{}{
		plan.Rewritten,
		pq.Array(plan.Weights[:]),
		plan.HeadlineOptions(),
		plan.IDPrefix,
		plan.CanonicalIDLength,
		plan.MaxRows,
	}
	return stmt, args, nil
}

// PostgresBackend runs plans against the censearch schema
type PostgresBackend struct {
	DB       *sql.DB
	ErrorLog *log.Logger
}

func (b *PostgresBackend) Execute(ctx context.Context, plan *search.Plan) ([]search.Row, error) {
	stmt, args, err := buildSearchSQL(plan)
	if err != nil {
		return nil, err
	}
	b.ErrorLog.Debugf("Search SQL: %v", stmt)

	rows, err := b.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, b.classify(ctx, err)
	}
	defer rows.Close()

	result := []search.Row{}
	for rows.Next() {
		var r search.Row
		var tier int
		if err := rows.Scan(&tier, &r.TableID, &r.VariableID, &r.HighlightedTable, &r.HighlightedVariable, &r.Universe, &r.Rank); err != nil {
			return nil, b.classify(ctx, err)
		}
		r.Tier = search.Tier(tier)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, b.classify(ctx, err)
	}
	return result, nil
}

func (b *PostgresBackend) classify(ctx context.Context, err error) error {
	if isQueryCanceled(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", search.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", search.ErrBackendUnavailable, err)
}

// Find runs a text search, bounded by Search.TimeoutMS
func (e *Engine) Find(ctx context.Context, query string, mode search.OutputMode) (*search.Result, error) {
	// Track number of simultaneous find operations, to detect connection leaks
	numFindOps := atomic.AddUint32(&e.numFindOpsInProgress, 1)
	defer atomic.AddUint32(&e.numFindOpsInProgress, ^uint32(0))
	if atomicMaxUint32(&e.maxFindOpsInProgress, numFindOps) {
		e.ErrorLog.Debugf("Max simultaneous find ops in progress: %v", atomic.LoadUint32(&e.maxFindOpsInProgress))
	}

	config := e.GetConfig()
	ctx, cancel := context.WithTimeout(ctx, config.searchTimeout())
	defer cancel()

	res, err := search.Run(ctx, e.getPlanner(), e.Backend, query, mode, e.ErrorLog)
	if err == nil && res.Stats.Suppressed != 0 {
		e.ErrorLog.Debugf("Find(%v): %v variable rows suppressed by table matches", query, res.Stats.Suppressed)
	}
	return res, err
}
