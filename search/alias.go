package search

import (
	"sort"
	"strings"

	"github.com/IMQS/censearch/catalog"
)

type aliasRule struct {
	expected    []string
	replacement string
}

type aliasRuleByPriority []*aliasRule

func (a aliasRuleByPriority) Len() int      { return len(a) }
func (a aliasRuleByPriority) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a aliasRuleByPriority) Less(i, j int) bool {
	if len(a[i].expected) != len(a[j].expected) {
		return len(a[i].expected) > len(a[j].expected)
	}
	ei := strings.Join(a[i].expected, " ")
	ej := strings.Join(a[j].expected, " ")
	if ei != ej {
		return ei < ej
	}
	return a[i].replacement < a[j].replacement
}

// AliasRewriter substitutes catalogue vocabulary for colloquial query terms.
// It is immutable once built, and safe for concurrent use.
type AliasRewriter struct {
	parser Parser
	rules  []*aliasRule
}

func NewAliasRewriter(parser Parser, aliases []*catalog.Alias) *AliasRewriter {
	r := &AliasRewriter{parser: parser}
	seen := map[string]bool{}
	candidates := []*aliasRule{}
	for _, a := range aliases {
		terms := parser.Tokenize(a.Expected)
		replacement := parser.Tokenize(a.Replacement)
		// A replacement with no terms would erase the fragment from the query
		if len(terms) == 0 || len(replacement) == 0 {
			continue
		}
		candidates = append(candidates, &aliasRule{
			expected:    terms,
			replacement: strings.Join(replacement, " "),
		})
	}
	sort.Sort(aliasRuleByPriority(candidates))
	// When one fragment has more than one replacement, the lexically first replacement wins
	for _, c := range candidates {
		key := strings.Join(c.expected, " ")
		if !seen[key] {
			seen[key] = true
			r.rules = append(r.rules, c)
		}
	}
	return r
}

func (r *AliasRewriter) Len() int {
	return len(r.rules)
}

// Rewrite returns the query terms after alias substitution, and the number of substitutions made.
// Replacement text is emitted as-is and is never matched again.
func (r *AliasRewriter) Rewrite(query string) (terms []string, substitutions int) {
	in := r.parser.Tokenize(query)
	terms = make([]string, 0, len(in))
	for i := 0; i < len(in); {
		matched := false
		for _, rule := range r.rules {
			if hasPrefixTerms(in[i:], rule.expected) {
				terms = append(terms, rule.replacement)
				i += len(rule.expected)
				substitutions++
				matched = true
				break
			}
		}
		if !matched {
			terms = append(terms, in[i])
			i++
		}
	}
	return terms, substitutions
}

func hasPrefixTerms(terms, prefix []string) bool {
	if len(prefix) > len(terms) {
		return false
	}
	for i := range prefix {
		if terms[i] != prefix[i] {
			return false
		}
	}
	return true
}
