package search

import (
	"fmt"
	"strings"
	"testing"
)

func verifyParser(t *testing.T, parser Parser, src string, expected ...string) {
	t.Helper()
	tokens := parser.Tokenize(src)
	msg := fmt.Sprintf("Expected [%v](len %v), but got [%v](len %v)\n", strings.Join(expected, " "), len(expected), strings.Join(tokens, " "), len(tokens))
	if len(tokens) != len(expected) {
		t.Error(msg)
		return
	}
	for i := 0; i < len(tokens); i++ {
		if tokens[i] != expected[i] {
			t.Error(msg)
			return
		}
	}
}

func TestDefaultParser(t *testing.T) {
	p := NewDefaultParser()

	verifyParser(t, p, "brown fox", "brown", "fox")
	verifyParser(t, p, "Median Household Income", "median", "household", "income")
	verifyParser(t, p, "self-employed", "self", "employed")
	verifyParser(t, p, "B01001_001", "b01001_001") // underscore is not a splitter
	verifyParser(t, p, "10 \t\n\r 30", "10", "30")
	verifyParser(t, p, "income, income", "income", "income") // repeats are kept
	verifyParser(t, p, "ab∞99", "ab∞99")                      // random unicode characters are not splitters
	verifyParser(t, p, "(Children) under 18?", "children", "under", "18")
	verifyParser(t, p, "") // empty string produces no tokens
	verifyParser(t, p, " ,;. ")

	p.MinimumTokenLength = 2
	verifyParser(t, p, "a bb", "bb")
	verifyParser(t, p, "aa b", "aa")
}

func TestIsIDLike(t *testing.T) {
	for _, s := range []string{"b19013", "B01001_001", "19013", "c24010a"} {
		if !isIDLike(s) {
			t.Errorf("Expected %v to look like an id", s)
		}
	}
	for _, s := range []string{"", "income", "_001", "b19013-1", "children's"} {
		if isIDLike(s) {
			t.Errorf("Did not expect %v to look like an id", s)
		}
	}
}
