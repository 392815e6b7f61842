package search

// Logger is the subset of github.com/IMQS/log.Logger that the aggregator writes to
type Logger interface {
	Warnf(format string, params ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warnf(format string, params ...interface{}) {}

// Hit is one table in the result set. VariableIDs and HighlightedVariables always have the
// same length. When they are empty, the table itself matched.
type Hit struct {
	TableID              string
	VariableIDs          []string
	HighlightedTable     string
	HighlightedVariables []string
	Universe             string
	Rank                 float64
}

func (h *Hit) IsTableLevel() bool {
	return len(h.VariableIDs) == 0
}

type DisplayVariable struct {
	ID          string
	Highlighted string
}

// DisplayHit is a Hit with its variables paired up for iteration
type DisplayHit struct {
	TableID          string
	HighlightedTable string
	Universe         string
	Rank             float64
	Variables        []DisplayVariable
}

func (h *Hit) Display() *DisplayHit {
	d := &DisplayHit{
		TableID:          h.TableID,
		HighlightedTable: h.HighlightedTable,
		Universe:         h.Universe,
		Rank:             h.Rank,
		Variables:        make([]DisplayVariable, len(h.VariableIDs)),
	}
	for i := range h.VariableIDs {
		d.Variables[i] = DisplayVariable{ID: h.VariableIDs[i], Highlighted: h.HighlightedVariables[i]}
	}
	return d
}

func Display(hits []*Hit) []*DisplayHit {
	out := make([]*DisplayHit, len(hits))
	for i, h := range hits {
		out[i] = h.Display()
	}
	return out
}

// AggregateStats counts what happened to the backend rows
type AggregateStats struct {
	Rows       int // Rows received
	Suppressed int // Variable-tier rows dropped because their table matched directly
	Malformed  int // Rows that were repaired or dropped
	Ignored    int // Rows that added nothing to their group
}

/*
Aggregate folds backend rows into hits, one per table.

Rows are expected in backend order (rank, table id, variable id). That order is kept: groups
appear in the order of their first row. Within a group, if the first row has no variable, the
group is a table-level hit, and the remaining rows are ignored. Otherwise every row contributes
its variable.

Bad rows are logged and repaired where possible, never fatal:

	no table id                          the row is dropped
	variable id without highlighted text the variable is dropped, and the row is treated as table-only
	highlighted text without variable id the text is dropped

If nothing usable is left, the error is ErrNoMatches. The returned hits are never nil.
*/
func Aggregate(rows []Row, log Logger) ([]*Hit, AggregateStats, error) {
	if log == nil {
		log = nopLogger{}
	}
	stats := AggregateStats{Rows: len(rows)}

	clean := make([]Row, 0, len(rows))
	for i := range rows {
		r := rows[i]
		tier := r.tier()
		if r.TableID == "" {
			log.Warnf("%v: row %v has no table id, dropping it", ErrMalformedRow, i)
			stats.Malformed++
			continue
		}
		if r.VariableID != "" && r.HighlightedVariable == "" {
			log.Warnf("%v: row %v (table %v) has variable %v but no highlighted text, treating it as table-only", ErrMalformedRow, i, r.TableID, r.VariableID)
			stats.Malformed++
			r.VariableID = ""
		} else if r.VariableID == "" && r.HighlightedVariable != "" {
			log.Warnf("%v: row %v (table %v) has highlighted variable text but no variable id, dropping the text", ErrMalformedRow, i, r.TableID)
			stats.Malformed++
			r.HighlightedVariable = ""
		}
		r.Tier = tier
		clean = append(clean, r)
	}

	// A direct table match always wins over a match through one of its variables
	direct := map[string]bool{}
	for i := range clean {
		if clean[i].Tier == TierTable {
			direct[clean[i].TableID] = true
		}
	}

	hits := []*Hit{}
	groupOf := map[string]*Hit{}
	closed := map[string]bool{}
	for i := range clean {
		r := &clean[i]
		if r.Tier == TierVariable && direct[r.TableID] {
			stats.Suppressed++
			continue
		}
		hit, exists := groupOf[r.TableID]
		if exists && r.Rank > hit.Rank {
			// Groups are ordered by their best row, which need not be the first
			hit.Rank = r.Rank
		}
		if !exists {
			hit = &Hit{
				TableID:              r.TableID,
				VariableIDs:          []string{},
				HighlightedTable:     r.HighlightedTable,
				HighlightedVariables: []string{},
				Universe:             r.Universe,
				Rank:                 r.Rank,
			}
			groupOf[r.TableID] = hit
			hits = append(hits, hit)
			if r.VariableID == "" {
				closed[r.TableID] = true
				continue
			}
		} else if closed[r.TableID] || r.VariableID == "" {
			stats.Ignored++
			continue
		}
		hit.VariableIDs = append(hit.VariableIDs, r.VariableID)
		hit.HighlightedVariables = append(hit.HighlightedVariables, r.HighlightedVariable)
	}

	if len(hits) == 0 {
		return hits, stats, ErrNoMatches
	}
	return hits, stats, nil
}
