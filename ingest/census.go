// Package ingest reads the census API metadata files, and the alias table, into catalogue records.
// Nothing here touches the database. See server.Engine for the writers.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/IMQS/censearch/catalog"
)

const (
	labelSeparator = "!!"
	estimateLabel  = "Estimate"
)

/*
The variables file looks like this:

	{
		"variables": {
			"B01001_002E": {
				"label": "Estimate!!Total:!!Male:",
				"concept": "Sex by Age",
				"predicateType": "int",
				"group": "B01001",
				...
			},
			...
		}
	}

Only estimates are kept. Margins of error and annotations ("Annotation of Estimate!!...") are
dropped. The trailing E of the id marks the estimate, and is removed.
*/
type variablesFile struct {
	Variables map[string]censusVariable `json:"variables"`
}

type censusVariable struct {
	Label         string `json:"label"`
	Concept       string `json:"concept"`
	PredicateType string `json:"predicateType"`
	Group         string `json:"group"`
}

// VariableBatch is every label path of one table.
// Invalid holds the entries that could not be turned into a path. A batch with any invalid
// entries must not be written, since its hierarchy is incomplete.
type VariableBatch struct {
	TableID string
	Paths   []*catalog.LabelPath
	Invalid []error
}

// ReadVariables parses a census variables file. Batches are ordered by table id, and paths within
// a batch by variable id. skipped counts entries that are not estimates.
// A malformed label only marks its own batch. See VariableBatch.Invalid.
func ReadVariables(r io.Reader) (batches []*VariableBatch, skipped int, err error) {
	var file variablesFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, 0, fmt.Errorf("When decoding variables file: %v", err)
	}

	ids := make([]string, 0, len(file.Variables))
	for id := range file.Variables {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byTable := map[string]*VariableBatch{}
	for _, rawID := range ids {
		v := file.Variables[rawID]
		segments := strings.Split(v.Label, labelSeparator)
		if segments[0] != estimateLabel || v.Group == "" || v.Group == "N/A" {
			skipped++
			continue
		}
		batch := byTable[v.Group]
		if batch == nil {
			batch = &VariableBatch{TableID: v.Group}
			byTable[v.Group] = batch
			batches = append(batches, batch)
		}
		path, err := catalog.NewLabelPath(strings.TrimSuffix(rawID, "E"), v.Group, segments, v.PredicateType)
		if err != nil {
			batch.Invalid = append(batch.Invalid, err)
			continue
		}
		batch.Paths = append(batch.Paths, path)
	}

	sort.Slice(batches, func(i, j int) bool { return batches[i].TableID < batches[j].TableID })
	return batches, skipped, nil
}

/*
The groups file looks like this:

	{
		"groups": [
			{
				"name": "B19013",
				"description": "Median Household Income in the Past 12 Months",
				"variables": "https://api.census.gov/...",
				"universe ": "Households"
			},
			...
		]
	}

Note the trailing space in "universe ". Some releases fix it, so we accept both spellings.
*/
type groupsFile struct {
	Groups []censusGroup `json:"groups"`
}

type censusGroup struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Universe      string `json:"universe"`
	UniverseSpace string `json:"universe "`
}

// ReadTables parses a census groups file into tables of the given edition
func ReadTables(r io.Reader, edition catalog.Edition) ([]*catalog.Table, error) {
	var file groupsFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("When decoding groups file: %v", err)
	}
	tables := make([]*catalog.Table, 0, len(file.Groups))
	seen := map[string]bool{}
	for _, g := range file.Groups {
		universe := g.UniverseSpace
		if universe == "" {
			universe = g.Universe
		}
		t, err := catalog.NewTable(g.Name, g.Description, universe, edition)
		if err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: table %v appears more than once", catalog.ErrInvalidRecord, t.ID)
		}
		seen[t.ID] = true
		tables = append(tables, t)
	}
	return tables, nil
}
