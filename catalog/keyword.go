package catalog

import (
	"regexp"
	"sort"
	"strings"
)

// KeywordIndex picks the category keyword out of a table description.
// The vocabulary is the set of replacement fragments of the alias table, because those are the
// words that rewritten queries will contain.
type KeywordIndex struct {
	terms    []string
	patterns []*regexp.Regexp
}

func NewKeywordIndex(aliases []*Alias) *KeywordIndex {
	seen := map[string]bool{}
	terms := []string{}
	for _, a := range aliases {
		if !seen[a.Replacement] {
			seen[a.Replacement] = true
			terms = append(terms, a.Replacement)
		}
	}
	// Longest first, so that "median household income" beats "income"
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	k := &KeywordIndex{terms: terms}
	for _, t := range terms {
		k.patterns = append(k.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return k
}

func (k *KeywordIndex) Len() int {
	return len(k.terms)
}

// Extract returns the keyword found in description, and description with that keyword removed.
// If no keyword is present, keyword is empty and unkeyed is the whitespace-normalized description.
func (k *KeywordIndex) Extract(description string) (keyword, unkeyed string) {
	for i, re := range k.patterns {
		loc := re.FindStringIndex(description)
		if loc == nil {
			continue
		}
		rest := description[:loc[0]] + " " + description[loc[1]:]
		return k.terms[i], strings.Join(strings.Fields(rest), " ")
	}
	return "", strings.Join(strings.Fields(description), " ")
}

// Apply fills in Keyword and UnkeyedText on the table
func (k *KeywordIndex) Apply(t *Table) {
	t.Keyword, t.UnkeyedText = k.Extract(t.Description)
}
