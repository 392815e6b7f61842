package catalog

import (
	"sort"
)

/*
Hierarchy resolution

The census files describe every variable by its label path, for example

	Estimate!!Total:!!Male:!!Under 5 years

and never by its parent. We recover the parent by looking up the path with its last segment
removed. Some levels are never published as variables of their own. For example

	Estimate!!Quintile Means:!!Fourth Quintile

exists, but "Estimate!!Quintile Means:" does not. When the parent is missing, we merge the last
two segments into one ("Quintile Means: Fourth Quintile") and look again, until we either find
a parent or reach the root level. A record that is missing k levels is placed after exactly k merges.

Every table starts with the "Estimate" segment, so a path whose parent would be "Estimate"
alone is a root. That threshold is Resolver.RootSegments.
*/

const DefaultRootSegments = 1

type Resolver struct {
	// A parent key with this many segments or fewer denotes a root
	RootSegments int
}

func NewResolver() *Resolver {
	return &Resolver{RootSegments: DefaultRootSegments}
}

// Placement is the outcome of resolving one LabelPath
type Placement struct {
	Original *LabelPath
	Path     *LabelPath // After merges. Identical to Original when Merges = 0
	ParentID string
	Merges   int
}

// Variable converts the placement into the record that gets stored
func (p *Placement) Variable(edition Edition) *Variable {
	return &Variable{
		ID:        p.Original.RawID,
		TableID:   p.Original.TableID,
		ParentID:  p.ParentID,
		Label:     p.Path.ShortLabel(),
		FullLabel: p.Path.FullLabel(),
		DataType:  p.Original.DataType,
		Depth:     p.Path.Depth(),
		Edition:   edition,
	}
}

type labelPathByDepth []*LabelPath

func (a labelPathByDepth) Len() int           { return len(a) }
func (a labelPathByDepth) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a labelPathByDepth) Less(i, j int) bool { return a[i].Depth() < a[j].Depth() }

// ResolveTable assigns a parent to every label path of one table.
// The result is in the same order as paths. If any record cannot be placed, no placements
// are returned, and the error is an *UnresolvedHierarchyError.
func (r *Resolver) ResolveTable(tableID string, paths []*LabelPath) ([]*Placement, error) {
	if err := r.validateBatch(tableID, paths); err != nil {
		return nil, err
	}

	// Ties keep arrival order
	order := make([]*LabelPath, len(paths))
	copy(order, paths)
	sort.Stable(labelPathByDepth(order))

	lookup := map[string]string{}
	placed := make(map[*LabelPath]*Placement, len(paths))

	place := func(original, resolved *LabelPath, parentID string, merges int) {
		placed[original] = &Placement{
			Original: original,
			Path:     resolved,
			ParentID: parentID,
			Merges:   merges,
		}
		lookup[original.key()] = original.RawID
		if merges != 0 {
			if _, exists := lookup[resolved.key()]; !exists {
				lookup[resolved.key()] = original.RawID
			}
		}
	}

	deferred := []*LabelPath{}
	for _, p := range order {
		if parentID, ok := r.findParent(p, lookup); ok {
			place(p, p, parentID, 0)
		} else {
			deferred = append(deferred, p)
		}
	}

	// Deferred records are still in depth order, so a record's parent is repaired before the record itself
	for _, p := range deferred {
		current := p
		merges := 0
		for {
			if parentID, ok := r.findParent(current, lookup); ok {
				place(p, current, parentID, merges)
				break
			}
			if merges >= p.Depth() || current.Depth() < 2 {
				return nil, &UnresolvedHierarchyError{
					TableID:  tableID,
					RecordID: p.RawID,
					Segments: p.Segments,
					Reason:   "no ancestor found after merging",
				}
			}
			current = current.mergeLastTwo()
			merges++
		}
	}

	result := make([]*Placement, len(paths))
	for i, p := range paths {
		result[i] = placed[p]
	}
	return result, nil
}

// findParent returns ok = true when the record can be placed: either under an existing
// record, or as a root (parentID = "").
func (r *Resolver) findParent(p *LabelPath, lookup map[string]string) (parentID string, ok bool) {
	if id, found := lookup[p.parentKey()]; found {
		return id, true
	}
	if p.Depth()-1 <= r.RootSegments {
		return "", true
	}
	return "", false
}

func (r *Resolver) validateBatch(tableID string, paths []*LabelPath) error {
	seenKey := map[string]bool{}
	seenID := map[string]bool{}
	for _, p := range paths {
		reason := ""
		switch {
		case p.TableID != tableID:
			reason = "belongs to table " + p.TableID
		case seenID[p.RawID]:
			reason = "variable id appears more than once"
		case seenKey[p.key()]:
			reason = "label path appears more than once"
		}
		if reason != "" {
			return &UnresolvedHierarchyError{
				TableID:  tableID,
				RecordID: p.RawID,
				Segments: p.Segments,
				Reason:   reason,
			}
		}
		seenID[p.RawID] = true
		seenKey[p.key()] = true
	}
	return nil
}

// Variables converts a full set of placements into stored records.
func Variables(placements []*Placement, edition Edition) []*Variable {
	vars := make([]*Variable, len(placements))
	for i, p := range placements {
		vars[i] = p.Variable(edition)
	}
	return vars
}
