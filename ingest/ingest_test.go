package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMQS/censearch/catalog"
)

const variablesJSON = `{
	"variables": {
		"for": {"label": "Census API FIPS 'for' clause", "concept": "Census API Geography Specification", "predicateType": "fips-for", "group": "N/A"},
		"B19081_001E": {"label": "Estimate!!Quintile Means:!!Lowest Quintile", "concept": "Mean Household Income of Quintiles", "predicateType": "int", "group": "B19081"},
		"B19081_001M": {"label": "Margin of Error!!Quintile Means:!!Lowest Quintile", "predicateType": "int", "group": "B19081"},
		"B01001_002E": {"label": "Estimate!!Total:!!Male:", "concept": "Sex by Age", "predicateType": "int", "group": "B01001"},
		"B01001_001E": {"label": "Estimate!!Total:", "concept": "Sex by Age", "predicateType": "int", "group": "B01001"},
		"B01001_001EA": {"label": "Annotation of Estimate!!Total:", "predicateType": "string", "group": "B01001"}
	}
}`

const groupsJSON = `{
	"groups": [
		{"name": "B19013", "description": "Median Household Income in the Past 12 Months", "variables": "x", "universe ": "Households"},
		{"name": "B01001", "description": "Sex by Age", "variables": "x", "universe": "Total population"}
	]
}`

func TestReadVariables(t *testing.T) {
	batches, skipped, err := ReadVariables(strings.NewReader(variablesJSON))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, batches, 2)

	assert.Equal(t, "B01001", batches[0].TableID)
	require.Len(t, batches[0].Paths, 2)
	assert.Equal(t, "B01001_001", batches[0].Paths[0].RawID)
	assert.Equal(t, []string{"Estimate", "Total:", "Male:"}, batches[0].Paths[1].Segments)
	assert.Equal(t, "int", batches[0].Paths[1].DataType)

	assert.Equal(t, "B19081", batches[1].TableID)

	// The parsed batches resolve
	for _, b := range batches {
		_, err := catalog.NewResolver().ResolveTable(b.TableID, b.Paths)
		assert.NoError(t, err)
	}
}

func TestReadVariablesInvalidLabel(t *testing.T) {
	src := `{"variables": {
		"B01001_001E": {"label": "Estimate!!Total:", "predicateType": "int", "group": "B01001"},
		"B19013_001E": {"label": "Estimate!!Median household income!!", "predicateType": "int", "group": "B19013"},
		"B19013_002E": {"label": "Estimate!!Median household income", "predicateType": "int", "group": "B19013"}
	}}`
	batches, _, err := ReadVariables(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, "B01001", batches[0].TableID)
	assert.Empty(t, batches[0].Invalid)
	assert.Len(t, batches[0].Paths, 1)

	// Only the table with the trailing separator is marked
	assert.Equal(t, "B19013", batches[1].TableID)
	require.Len(t, batches[1].Invalid, 1)
	assert.ErrorIs(t, batches[1].Invalid[0], catalog.ErrInvalidRecord)
	assert.Len(t, batches[1].Paths, 1)
}

func TestReadVariablesBadJSON(t *testing.T) {
	_, _, err := ReadVariables(strings.NewReader(`{"variables": [`))
	assert.Error(t, err)
}

func TestReadTables(t *testing.T) {
	tables, err := ReadTables(strings.NewReader(groupsJSON), catalog.EditionACS5)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "B19013", tables[0].ID)
	assert.Equal(t, "Households", tables[0].Universe)
	assert.Equal(t, "Total population", tables[1].Universe)
	assert.Equal(t, catalog.EditionACS5, tables[1].Edition)

	_, err = ReadTables(strings.NewReader(`{"groups": [{"name": "A"}, {"name": "", "description": "x"}]}`), catalog.EditionACS1)
	assert.ErrorIs(t, err, catalog.ErrInvalidRecord)

	dup := `{"groups": [{"name": "A", "description": "x"}, {"name": "A", "description": "y"}]}`
	_, err = ReadTables(strings.NewReader(dup), catalog.EditionACS1)
	assert.ErrorIs(t, err, catalog.ErrInvalidRecord)
}

func TestReadAliases(t *testing.T) {
	src := ",expected_query,alias_query\n" +
		"0,Salary,income\n" +
		"1, kids ,children\n" +
		"\n" +
		"2,\"household salary\",household income\n"
	aliases, err := ReadAliases(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, aliases, 3)
	assert.Equal(t, &catalog.Alias{Expected: "salary", Replacement: "income"}, aliases[0])
	assert.Equal(t, "kids", aliases[1].Expected)
	assert.Equal(t, "household income", aliases[2].Replacement)

	_, err = ReadAliases(strings.NewReader("a,b\nx,y\n"))
	assert.ErrorIs(t, err, errAliasHeader)

	_, err = ReadAliases(strings.NewReader(""))
	assert.ErrorIs(t, err, errAliasHeader)

	_, err = ReadAliases(strings.NewReader("expected_query,alias_query\nsalary,\n"))
	assert.ErrorIs(t, err, catalog.ErrInvalidRecord)
}
