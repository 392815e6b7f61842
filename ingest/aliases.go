package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/IMQS/censearch/catalog"
)

const (
	aliasExpectedColumn    = "expected_query"
	aliasReplacementColumn = "alias_query"
)

var errAliasHeader = errors.New("Alias file must have expected_query and alias_query columns")

// ReadAliases parses the alias CSV file. The header row names the columns, and other columns
// (such as a leading index column) are ignored.
func ReadAliases(r io.Reader) ([]*catalog.Alias, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errAliasHeader
		}
		return nil, fmt.Errorf("When reading alias header: %v", err)
	}
	expectedCol, replacementCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case aliasExpectedColumn:
			expectedCol = i
		case aliasReplacementColumn:
			replacementCol = i
		}
	}
	if expectedCol == -1 || replacementCol == -1 {
		return nil, errAliasHeader
	}

	aliases := []*catalog.Alias{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("When reading alias line %v: %v", line, err)
		}
		if len(rec) <= expectedCol || len(rec) <= replacementCol {
			return nil, fmt.Errorf("Alias line %v has %v columns", line, len(rec))
		}
		if strings.TrimSpace(rec[expectedCol]) == "" && strings.TrimSpace(rec[replacementCol]) == "" {
			continue
		}
		a, err := catalog.NewAlias(rec[expectedCol], rec[replacementCol])
		if err != nil {
			return nil, fmt.Errorf("Alias line %v: %w", line, err)
		}
		aliases = append(aliases, a)
	}
	return aliases, nil
}
