package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pierrec/xxHash/xxHash32"
	"golang.org/x/sync/errgroup"

	"github.com/IMQS/censearch/catalog"
	"github.com/IMQS/censearch/ingest"
)

// IngestReport describes one ingestion run
type IngestReport struct {
	RunID     uuid.UUID
	Tables    int // Tables written
	Variables int // Variables written
	Merges    int // Label segment merges needed to repair hierarchies

	// Tables that were left untouched because their hierarchy could not be repaired
	Unresolved []error

	// Checksum of every written table's hierarchy. Two runs over the same data produce the same values.
	Fingerprints map[string]uint32

	Duration time.Duration
}

func newIngestReport() *IngestReport {
	return &IngestReport{
		RunID:        uuid.New(),
		Unresolved:   []error{},
		Fingerprints: map[string]uint32{},
	}
}

type resolvedTable struct {
	tableID string
	vars    []*catalog.Variable
	merges  int
	err     error
}

// IngestTables writes table documentation, replacing existing tables with the same id.
// Keyword and unkeyed text are computed from the current alias table.
func (e *Engine) IngestTables(tables []*catalog.Table) (*IngestReport, error) {
	report := newIngestReport()
	start := time.Now()
	e.ErrorLog.Infof("Ingest %v: writing %v tables", report.RunID, len(tables))

	keywords := e.getKeywords()
	for _, t := range tables {
		keywords.Apply(t)
	}

	tx, err := e.IndexDB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := upsertTables(tx, tables); err != nil {
		return nil, fmt.Errorf("When writing tables: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	report.Tables = len(tables)
	report.Duration = time.Now().Sub(start)
	e.ErrorLog.Infof("Ingest %v: wrote %v tables in %.2f seconds", report.RunID, report.Tables, report.Duration.Seconds())
	return report, nil
}

func upsertTables(tx *sql.Tx, tables []*catalog.Table) error {
	st, err := tx.Prepare(`INSERT INTO censearch.acs_tables (id, description, universe, keyword, unkeyed_text, edition_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description, universe = EXCLUDED.universe, keyword = EXCLUDED.keyword,
			unkeyed_text = EXCLUDED.unkeyed_text, edition_type = EXCLUDED.edition_type`)
	if err != nil {
		return err
	}
	defer st.Close()
	for _, t := range tables {
		if _, err := st.Exec(t.ID, t.Description, t.Universe, t.Keyword, t.UnkeyedText, string(t.Edition)); err != nil {
			return fmt.Errorf("table %v: %v", t.ID, err)
		}
	}
	return nil
}

// IngestVariables resolves the hierarchy of every batch, and replaces the variables of each table
// that resolves. Resolution runs on Ingest.Concurrency goroutines. Each table is written in its own
// transaction, so a table is either completely replaced or left as it was.
// Tables whose hierarchy cannot be repaired are skipped, and returned as a joined error after
// everything else has been written.
func (e *Engine) IngestVariables(ctx context.Context, batches []*ingest.VariableBatch, edition catalog.Edition) (*IngestReport, error) {
	config := e.GetConfig()
	report := newIngestReport()
	start := time.Now()
	e.ErrorLog.Infof("Ingest %v: resolving %v tables", report.RunID, len(batches))

	resolved, err := resolveBatches(ctx, config.resolver(), batches, edition, config.Ingest.Concurrency)
	if err != nil {
		return nil, err
	}

	for _, r := range resolved {
		if r.err != nil {
			e.ErrorLog.Warnf("Ingest %v: %v", report.RunID, r.err)
			report.Unresolved = append(report.Unresolved, r.err)
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := writeVariables(e.IndexDB, r.tableID, r.vars); err != nil {
			return report, fmt.Errorf("When writing variables of %v: %v", r.tableID, err)
		}
		report.Tables++
		report.Variables += len(r.vars)
		report.Merges += r.merges
		report.Fingerprints[r.tableID] = fingerprintVariables(r.vars)
		e.ErrorLog.Debugf("Ingest %v: %v has %v variables, fingerprint %08x", report.RunID, r.tableID, len(r.vars), report.Fingerprints[r.tableID])
	}

	report.Duration = time.Now().Sub(start)
	e.ErrorLog.Infof("Ingest %v: wrote %v variables in %v tables (%v merges, %v unresolved) in %.2f seconds",
		report.RunID, report.Variables, report.Tables, report.Merges, len(report.Unresolved), report.Duration.Seconds())
	return report, errors.Join(report.Unresolved...)
}

// resolveBatches runs the resolver over every batch. The result is in batch order.
// Only unexpected errors abort the group. An unresolved hierarchy, or a batch with invalid
// records, is recorded against its table.
func resolveBatches(ctx context.Context, resolver *catalog.Resolver, batches []*ingest.VariableBatch, edition catalog.Edition, concurrency int) ([]*resolvedTable, error) {
	resolved := make([]*resolvedTable, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, b := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if len(b.Invalid) != 0 {
				resolved[i] = &resolvedTable{tableID: b.TableID, err: fmt.Errorf("table %v: %w", b.TableID, errors.Join(b.Invalid...))}
				return nil
			}
			placements, err := resolver.ResolveTable(b.TableID, b.Paths)
			if err != nil {
				if errors.Is(err, catalog.ErrUnresolvedHierarchy) {
					resolved[i] = &resolvedTable{tableID: b.TableID, err: err}
					return nil
				}
				return err
			}
			r := &resolvedTable{tableID: b.TableID, vars: catalog.Variables(placements, edition)}
			for _, p := range placements {
				r.merges += p.Merges
			}
			resolved[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// writeVariables replaces every variable of one table
func writeVariables(db *sql.DB, tableID string, vars []*catalog.Variable) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM censearch.acs_variables WHERE table_id = $1", tableID); err != nil {
		tx.Rollback()
		return err
	}

	st, err := tx.Prepare(pq.CopyInSchema("censearch", "acs_variables", "id", "table_id", "parent_id", "label", "full_label", "depth", "data_type", "edition_type"))
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, v := range vars {
		parent := sql.NullString{String: v.ParentID, Valid: v.ParentID != ""}
		if _, err = st.Exec(v.ID, v.TableID, parent, v.Label, v.FullLabel, v.Depth, v.DataType, string(v.Edition)); err != nil {
			st.Close()
			tx.Rollback()
			return err
		}
	}

	if _, err = st.Exec(); err != nil {
		st.Close()
		tx.Rollback()
		return err
	}
	if err = st.Close(); err != nil {
		tx.Rollback()
		return err
	}
	// The deferred parent constraint is checked here
	return tx.Commit()
}

// fingerprintVariables hashes the shape of a table's hierarchy, independent of variable order
func fingerprintVariables(vars []*catalog.Variable) uint32 {
	lines := make([]string, 0, len(vars))
	for _, v := range vars {
		lines = append(lines, strings.Join([]string{v.ID, v.ParentID, v.FullLabel, v.DataType}, "\x00"))
	}
	sort.Strings(lines)
	return xxHash32.Checksum([]byte(strings.Join(lines, "\n")), 0)
}

// LoadAliases replaces the alias table, recomputes the keyword of every stored table, and swaps
// the new aliases into the running planner.
func (e *Engine) LoadAliases(aliases []*catalog.Alias) error {
	runID := uuid.New()
	e.ErrorLog.Infof("Ingest %v: loading %v aliases", runID, len(aliases))

	tx, err := e.IndexDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM censearch.category_aliases"); err != nil {
		return err
	}
	st, err := tx.Prepare(pq.CopyInSchema("censearch", "category_aliases", "expected_query", "alias_query"))
	if err != nil {
		return err
	}
	seen := map[catalog.Alias]bool{}
	for _, a := range aliases {
		if seen[*a] {
			continue
		}
		seen[*a] = true
		if _, err := st.Exec(a.Expected, a.Replacement); err != nil {
			st.Close()
			return err
		}
	}
	if _, err := st.Exec(); err != nil {
		st.Close()
		return err
	}
	if err := st.Close(); err != nil {
		return err
	}

	keywords := catalog.NewKeywordIndex(aliases)
	n, err := rekeyTables(tx, keywords)
	if err != nil {
		return fmt.Errorf("When recomputing table keywords: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.ErrorLog.Infof("Ingest %v: recomputed keywords of %v tables", runID, n)
	return e.setAliases(aliases)
}

// rekeyTables recomputes keyword and unkeyed_text of every table
func rekeyTables(tx *sql.Tx, keywords *catalog.KeywordIndex) (int, error) {
	rows, err := tx.Query("SELECT id, description, universe, edition_type FROM censearch.acs_tables ORDER BY id")
	if err != nil {
		return 0, err
	}
	tables := []*catalog.Table{}
	for rows.Next() {
		t := &catalog.Table{}
		var edition string
		if err := rows.Scan(&t.ID, &t.Description, &t.Universe, &edition); err != nil {
			rows.Close()
			return 0, err
		}
		t.Edition = catalog.Edition(edition)
		keywords.Apply(t)
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return len(tables), upsertTables(tx, tables)
}
