/*
Package search plans catalogue text searches, and folds the rows that come back into hits.

Concepts

The catalogue has two levels: tables, and the variables inside them. A query is run against both
levels at once. We call these levels tiers.

	Tier 1 (table)     matches the table's category keyword and the rest of its description
	Tier 2 (variable)  matches the variable's full label, plus its table's keyword and description

The ranking itself is done by the database (ts_rank, with a 4 element weight vector). Nothing in
this package computes a rank. The weights are ordered the way Postgres wants them, which is {D, C, B, A}.
The defaults are {0.1, 0.2, 0.4, 1.0}, and the fields are assigned to classes as follows:

	A  table keyword
	B  variable full label
	C  table description without the keyword (the "unkeyed" text)
	D  table id prefix match (only used as a fallback, see below)

The keyword is removed from the description before it is indexed. If it were not, a query that
hits the keyword would be counted twice, once at weight A and again at weight C.

Aliases

Before a query is planned, it is rewritten through the alias table, which maps colloquial terms onto
the catalogue's own vocabulary (eg "salary" -> "income"). The query is split into terms, and at every
position the longest matching alias wins. Ties between aliases of the same length are broken
lexically, so the outcome never depends on the order in which aliases were loaded. Rewriting happens
exactly once. The output of an alias is never fed back into the rewriter.

Table ids

A query that is a single id-like term (eg "b19013", or "B01001_001") is also tried as a prefix of the
table id. This only happens when no table matched by keyword or description. Ids of the wrong length
(anything but 6 characters) are placeholder rows in the census files, and never appear in results.
The canonical length filter applies to the id fallback and to the variable tier.

Precedence and grouping

If a table matched directly, then its variable-tier rows are discarded. A direct match always wins
over a match that came through one of the table's variables. The remaining rows are grouped by table
id, in the order in which the database returned them. We never re-sort. Each group becomes one Hit.

No results

There are two kinds of "no results": ErrEmptyQuery, when there was nothing to search for, and
ErrNoMatches, when the database returned nothing usable. IsNoResults is true for both, but they are
logged and reported separately.

Output modes

Document mode returns Hit values, with VariableIDs and HighlightedVariables as parallel lists.
Display mode zips those lists into (ID, Highlighted) pairs, which is what a template wants to iterate over.
*/
package search
