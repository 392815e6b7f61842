package server

import (
	"context"
	"database/sql"
	"errors"

	"github.com/IMQS/censearch/catalog"
)

var ErrTableNotFound = errors.New("Table not found")

// TableDetail is one table, with its variables arranged as a forest
type TableDetail struct {
	Table     *catalog.Table
	Variables []*catalog.Node
	Dropped   int // Stored variables that are invalid, or could not be reached from a root
}

// GetTableDetail reads a table and its variable hierarchy
func (e *Engine) GetTableDetail(ctx context.Context, tableID string) (*TableDetail, error) {
	t := &catalog.Table{}
	var edition string
	err := e.IndexDB.QueryRowContext(ctx, "SELECT id, description, universe, keyword, unkeyed_text, edition_type FROM censearch.acs_tables WHERE id = $1", tableID).
		Scan(&t.ID, &t.Description, &t.Universe, &t.Keyword, &t.UnkeyedText, &edition)
	if err == sql.ErrNoRows {
		return nil, ErrTableNotFound
	} else if err != nil {
		return nil, err
	}
	t.Edition = catalog.Edition(edition)

	rows, err := e.IndexDB.QueryContext(ctx, "SELECT id, table_id, COALESCE(parent_id, ''), label, full_label, depth, data_type, edition_type FROM censearch.acs_variables WHERE table_id = $1", tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detail := &TableDetail{Table: t}
	vars := []*catalog.Variable{}
	for rows.Next() {
		var id, table, parent, label, fullLabel, dataType string
		var depth int
		if err := rows.Scan(&id, &table, &parent, &label, &fullLabel, &depth, &dataType, &edition); err != nil {
			return nil, err
		}
		v, err := storedVariable(id, table, parent, label, fullLabel, dataType, depth, edition)
		if err != nil {
			e.ErrorLog.Warnf("Table %v: %v", tableID, err)
			detail.Dropped++
			continue
		}
		vars = append(vars, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unreachable int
	detail.Variables, unreachable = catalog.Nest(vars)
	detail.Dropped += unreachable
	if unreachable != 0 {
		e.ErrorLog.Warnf("Table %v has %v variables that are not reachable from a root", tableID, unreachable)
	}
	return detail, nil
}

// storedVariable validates a row of censearch.acs_variables
func storedVariable(id, tableID, parentID, label, fullLabel, dataType string, depth int, edition string) (*catalog.Variable, error) {
	v, err := catalog.NewVariable(id, tableID, parentID, label, dataType, depth)
	if err != nil {
		return nil, err
	}
	if fullLabel != "" {
		v.FullLabel = fullLabel
	}
	v.Edition, err = catalog.ParseEdition(edition)
	if err != nil {
		return nil, err
	}
	return v, nil
}
