package search

import (
	"strings"
	"unicode/utf8"
)

// Split a source string into zero or more terms.
type Parser interface {
	Tokenize(src string) []string
}

// The default parser lower-cases, and splits on punctuation and white space.
// Underscore is not a splitter, so that variable ids such as B01001_001 survive as one term.
type DefaultParser struct {
	MinimumTokenLength int // Repeated terms are kept, since alias matching needs them
}

var defaultSplitters []rune

type states int

const (
	state_space states = iota
	state_word_active
)

func NewDefaultParser() *DefaultParser {
	return &DefaultParser{
		MinimumTokenLength: 1,
	}
}

func isSplitter(c rune) bool {
	for _, r := range defaultSplitters {
		if r == c {
			return true
		}
	}
	return false
}

func canonicalizeString(input string) string {
	return strings.TrimSpace(strings.ToLower(input))
}

func (p *DefaultParser) Tokenize(src string) []string {
	tokens := []string{}
	token_buf := [64]rune{}
	token := token_buf[:0]
	state := state_space

	if p.MinimumTokenLength < 1 {
		panic("MinimumTokenLength must be at least 1")
	}

	emit := func() {
		tokenStr := canonicalizeString(string(token))
		token = token_buf[:0]
		if utf8.RuneCountInString(tokenStr) < p.MinimumTokenLength {
			return
		}
		tokens = append(tokens, tokenStr)
	}

	for _, ch := range src {
		// Incorporate alphanumeric test so that we can frequently avoid the lookup inside the splitter list
		is_alnum := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
		is_break := !is_alnum && isSplitter(ch)
		switch state {
		case state_space:
			if !is_break {
				state = state_word_active
				token = append(token, ch)
			}
		case state_word_active:
			if !is_break {
				token = append(token, ch)
			} else {
				emit()
				state = state_space
			}
		}
	}
	if state == state_word_active {
		emit()
	}

	return tokens
}

// isIDLike is true for terms that look like a census table or variable id: letters and digits,
// with at least one digit, optionally followed by an underscore and a line number.
func isIDLike(term string) bool {
	if term == "" {
		return false
	}
	hasDigit := false
	for i, ch := range term {
		switch {
		case ch >= '0' && ch <= '9':
			hasDigit = true
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch == '_' && i != 0:
		default:
			return false
		}
	}
	return hasDigit
}

func init() {
	for _, r := range " \t\r\n`~!@#$%^&*()-=+[{]}\\|;:'\",<.>/?" {
		defaultSplitters = append(defaultSplitters, r)
	}
}
