package catalog

import (
	"fmt"
	"strings"
)

// Edition is the release a table or variable was published in.
type Edition string

const (
	EditionACS1 Edition = "acs1"
	EditionACS5 Edition = "acs5"
)

// ParseEdition accepts "acs1" or "acs5", case insensitive.
func ParseEdition(s string) (Edition, error) {
	switch Edition(strings.ToLower(strings.TrimSpace(s))) {
	case EditionACS1:
		return EditionACS1, nil
	case EditionACS5:
		return EditionACS5, nil
	}
	return "", fmt.Errorf("%w: edition must be acs1 or acs5, not '%v'", ErrInvalidRecord, s)
}

type Table struct {
	ID          string
	Description string
	Universe    string
	Keyword     string
	UnkeyedText string // Description with Keyword removed. See KeywordIndex.
	Edition     Edition
}

func NewTable(id, description, universe string, edition Edition) (*Table, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: table id is empty", ErrInvalidRecord)
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: table %v has no description", ErrInvalidRecord, id)
	}
	return &Table{
		ID:          id,
		Description: strings.TrimSpace(description),
		Universe:    strings.TrimSpace(universe),
		UnkeyedText: strings.TrimSpace(description),
		Edition:     edition,
	}, nil
}

type Variable struct {
	ID        string
	TableID   string
	ParentID  string // Empty for a root
	Label     string
	FullLabel string
	DataType  string
	Depth     int
	Edition   Edition
}

func (v *Variable) IsRoot() bool {
	return v.ParentID == ""
}

func NewVariable(id, tableID, parentID, label, dataType string, depth int) (*Variable, error) {
	if id == "" || tableID == "" {
		return nil, fmt.Errorf("%w: variable needs an id and a table id", ErrInvalidRecord)
	}
	if id == parentID {
		return nil, fmt.Errorf("%w: variable %v is its own parent", ErrInvalidRecord, id)
	}
	return &Variable{
		ID:        id,
		TableID:   tableID,
		ParentID:  parentID,
		Label:     label,
		FullLabel: label,
		DataType:  dataType,
		Depth:     depth,
	}, nil
}

// LabelPath is a variable as it arrives from the census files, before its parent is known.
// Segments is never modified in place. mergeLastTwo returns a new path.
type LabelPath struct {
	RawID    string
	TableID  string
	Segments []string
	DataType string
}

func NewLabelPath(rawID, tableID string, segments []string, dataType string) (*LabelPath, error) {
	if rawID == "" || tableID == "" {
		return nil, fmt.Errorf("%w: label path needs an id and a table id", ErrInvalidRecord)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: label path %v has no segments", ErrInvalidRecord, rawID)
	}
	clean := make([]string, len(segments))
	for i, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: label path %v has an empty segment at position %v", ErrInvalidRecord, rawID, i)
		}
		clean[i] = s
	}
	return &LabelPath{
		RawID:    rawID,
		TableID:  tableID,
		Segments: clean,
		DataType: dataType,
	}, nil
}

func (p *LabelPath) Depth() int {
	return len(p.Segments)
}

// Segments never contain a NUL byte, so joining on one gives an unambiguous map key
func segmentKey(segments []string) string {
	return strings.Join(segments, "\x00")
}

func (p *LabelPath) key() string {
	return segmentKey(p.Segments)
}

func (p *LabelPath) parentKey() string {
	return segmentKey(p.Segments[:len(p.Segments)-1])
}

// Collapse the last two segments into one, joined by a space.
func (p *LabelPath) mergeLastTwo() *LabelPath {
	n := len(p.Segments)
	merged := make([]string, n-1)
	copy(merged, p.Segments[:n-2])
	merged[n-2] = p.Segments[n-2] + " " + p.Segments[n-1]
	return &LabelPath{
		RawID:    p.RawID,
		TableID:  p.TableID,
		Segments: merged,
		DataType: p.DataType,
	}
}

// ShortLabel is the leaf segment without its trailing colon
func (p *LabelPath) ShortLabel() string {
	return strings.TrimSpace(strings.Trim(p.Segments[len(p.Segments)-1], ":"))
}

// FullLabel is every segment, colons removed, joined by a space
func (p *LabelPath) FullLabel() string {
	parts := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		parts[i] = strings.TrimSpace(strings.Trim(s, ":"))
	}
	return strings.Join(parts, " ")
}

// Alias maps a colloquial query fragment onto the catalogue's own vocabulary.
type Alias struct {
	Expected    string // Fragment as a user is likely to type it
	Replacement string // Fragment as the catalogue words it
}

func NewAlias(expected, replacement string) (*Alias, error) {
	expected = strings.Join(strings.Fields(strings.ToLower(expected)), " ")
	replacement = strings.Join(strings.Fields(strings.ToLower(replacement)), " ")
	if expected == "" || replacement == "" {
		return nil, fmt.Errorf("%w: alias needs both an expected and a replacement fragment", ErrInvalidRecord)
	}
	return &Alias{Expected: expected, Replacement: replacement}, nil
}
