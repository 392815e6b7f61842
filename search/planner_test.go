package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMQS/censearch/catalog"
)

func testAliases(t *testing.T) []*catalog.Alias {
	t.Helper()
	pairs := [][2]string{
		{"salary", "income"},
		{"wages", "income"},
		{"kids", "children"},
		{"household salary", "household income"},
		{"rent", "gross rent"},
	}
	aliases := []*catalog.Alias{}
	for _, p := range pairs {
		a, err := catalog.NewAlias(p[0], p[1])
		require.NoError(t, err)
		aliases = append(aliases, a)
	}
	return aliases
}

func newTestPlanner(t *testing.T, aliases []*catalog.Alias) *Planner {
	t.Helper()
	p, err := NewPlanner(DefaultPlannerOptions(), aliases)
	require.NoError(t, err)
	return p
}

func TestPlanEmptyQuery(t *testing.T) {
	p := newTestPlanner(t, nil)
	for _, q := range []string{"", "   ", "\t\n", "?!."} {
		plan, err := p.Plan(q, ModeDocument)
		assert.Nil(t, plan)
		assert.ErrorIs(t, err, ErrEmptyQuery, "query %q", q)
		assert.True(t, IsNoResults(err))
		assert.Equal(t, "empty_query", NoResultsReason(err))
	}
}

func TestPlanTiers(t *testing.T) {
	p := newTestPlanner(t, nil)
	plan, err := p.Plan("Median Household Income", ModeDisplay)
	require.NoError(t, err)

	assert.Equal(t, "median household income", plan.Rewritten)
	assert.Equal(t, DefaultWeights, plan.Weights)
	assert.Equal(t, 1.0, plan.Weights.Class(WeightA))
	assert.Equal(t, 0.1, plan.Weights.Class(WeightD))

	assert.Equal(t, TierTable, plan.Tables.Tier)
	assert.Equal(t, []WeightedField{{FieldKeyword, WeightA}, {FieldUnkeyedText, WeightC}}, plan.Tables.Fields)
	assert.False(t, plan.Tables.CanonicalIDOnly)

	assert.Equal(t, TierVariable, plan.Variables.Tier)
	assert.Len(t, plan.Variables.Fields, 3)
	assert.True(t, plan.Variables.CanonicalIDOnly)

	assert.Equal(t, 6, plan.CanonicalIDLength)
	assert.Equal(t, "", plan.IDPrefix)
	assert.Equal(t, ModeDisplay, plan.Mode)
	assert.Equal(t, `StartSel="<mark>", StopSel="</mark>", MaxWords=35, MinWords=15`, plan.HeadlineOptions())
}

func TestPlanIDPrefix(t *testing.T) {
	p := newTestPlanner(t, nil)
	cases := []struct {
		query  string
		prefix string
	}{
		{"b19013", "B19013"},
		{"B190", "B190"},
		{"B01001_001", "B01001"},
		{" c24010 ", "C24010"},
		{"B19013 income", ""}, // more than one term
		{"income", ""},        // no digit
		{"B0100100AB", ""},    // longer than any canonical id
	}
	for _, c := range cases {
		t.Run(c.query, func(t *testing.T) {
			plan, err := p.Plan(c.query, ModeDocument)
			require.NoError(t, err)
			assert.Equal(t, c.prefix, plan.IDPrefix)
		})
	}
}

func TestAliasRewrite(t *testing.T) {
	p := newTestPlanner(t, testAliases(t))
	assert.Equal(t, 5, p.NumAliases())

	plan, err := p.Plan("Household Salary by kids", ModeDocument)
	require.NoError(t, err)
	// longest alias wins over "salary" alone
	assert.Equal(t, "household income by children", plan.Rewritten)
	assert.Equal(t, 2, plan.Aliased)
	assert.Equal(t, "Household Salary by kids", plan.Raw)

	// Applied once: "rent" becomes "gross rent", and the "rent" inside the replacement is left alone
	plan, err = p.Plan("median rent", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, "median gross rent", plan.Rewritten)
	assert.Equal(t, 1, plan.Aliased)

	plan, err = p.Plan("population", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, "population", plan.Rewritten)
	assert.Equal(t, 0, plan.Aliased)
}

func TestAliasWithoutReplacementTerms(t *testing.T) {
	punct, err := catalog.NewAlias("income", "!!!")
	require.NoError(t, err)
	p := newTestPlanner(t, append(testAliases(t), punct))
	assert.Equal(t, 5, p.NumAliases())

	plan, err := p.Plan("income", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, "income", plan.Rewritten)
	assert.Equal(t, []string{"income"}, plan.Terms)
	assert.Equal(t, 0, plan.Aliased)
}

func TestAliasRewriteIsOrderInsensitive(t *testing.T) {
	aliases := testAliases(t)
	reversed := make([]*catalog.Alias, len(aliases))
	for i, a := range aliases {
		reversed[len(aliases)-1-i] = a
	}
	// Same fragment, two replacements: the lexically first replacement wins in both orders
	conflict := []*catalog.Alias{{Expected: "pay", Replacement: "wages"}, {Expected: "pay", Replacement: "earnings"}}

	a := NewAliasRewriter(NewDefaultParser(), append(aliases, conflict...))
	b := NewAliasRewriter(NewDefaultParser(), append(append([]*catalog.Alias{}, conflict[1], conflict[0]), reversed...))
	for _, q := range []string{"household salary", "salary of household", "kids pay rent", "wages"} {
		ta, na := a.Rewrite(q)
		tb, nb := b.Rewrite(q)
		assert.Equal(t, ta, tb, q)
		assert.Equal(t, na, nb, q)
	}
	terms, _ := a.Rewrite("pay")
	assert.Equal(t, []string{"earnings"}, terms)
}

func TestPlannerOptions(t *testing.T) {
	opts := DefaultPlannerOptions()
	opts.Weights = Weights{0, 0, 0, 0}
	_, err := NewPlanner(opts, nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	opts = DefaultPlannerOptions()
	opts.Weights = Weights{0.1, 0.2, 0.4, 1.5}
	_, err = NewPlanner(opts, nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	opts = DefaultPlannerOptions()
	opts.CanonicalIDLength = 0
	_, err = NewPlanner(opts, nil)
	assert.Error(t, err)

	opts = DefaultPlannerOptions()
	opts.MaxRows = 0
	opts.HighlightStop = ""
	p, err := NewPlanner(opts, nil)
	require.NoError(t, err)
	plan, err := p.Plan("income", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRows, plan.MaxRows)
	assert.Equal(t, DefaultHighlightStop, plan.HighlightStop)
}

func TestParseOutputMode(t *testing.T) {
	assert.Equal(t, ModeDocument, ParseOutputMode("json"))
	assert.Equal(t, ModeDocument, ParseOutputMode("JSON"))
	assert.Equal(t, ModeDisplay, ParseOutputMode(""))
	assert.Equal(t, ModeDisplay, ParseOutputMode("html"))
}
