package search

import (
	"fmt"
	"strings"

	"github.com/IMQS/censearch/catalog"
)

const (
	DefaultCanonicalIDLength = 6
	DefaultMaxRows           = 200
	DefaultHighlightStart    = "<mark>"
	DefaultHighlightStop     = "</mark>"
	DefaultMaxWords          = 35
	DefaultMinWords          = 15
)

// Weights is the ts_rank weight array, in the order Postgres expects: {D, C, B, A}
type Weights [4]float64

var DefaultWeights = Weights{0.1, 0.2, 0.4, 1.0}

func (w Weights) Validate() error {
	sum := 0.0
	for _, v := range w {
		if v < 0 || v > 1 {
			return ErrInvalidWeights
		}
		sum += v
	}
	if sum == 0 {
		return ErrInvalidWeights
	}
	return nil
}

// Class returns the weight of the given class letter
func (w Weights) Class(c WeightClass) float64 {
	return w[c.index()]
}

type WeightClass byte

const (
	WeightA WeightClass = 'A'
	WeightB WeightClass = 'B'
	WeightC WeightClass = 'C'
	WeightD WeightClass = 'D'
)

func (c WeightClass) index() int {
	return int('D' - c)
}

func (c WeightClass) String() string {
	return string(rune(c))
}

type OutputMode int

const (
	ModeDocument OutputMode = iota // Structured hits, for API consumers
	ModeDisplay                    // Variables zipped into (id, highlighted) pairs, for templates
)

// ParseOutputMode follows the "how" query parameter. "json" asks for documents. Anything else is for display.
func ParseOutputMode(how string) OutputMode {
	if strings.EqualFold(strings.TrimSpace(how), "json") {
		return ModeDocument
	}
	return ModeDisplay
}

func (m OutputMode) String() string {
	if m == ModeDocument {
		return "document"
	}
	return "display"
}

type Tier int

const (
	TierTable    Tier = 1
	TierVariable Tier = 2
)

type Field string

const (
	FieldKeyword       Field = "keyword"
	FieldUnkeyedText   Field = "unkeyed_text"
	FieldFullLabel     Field = "full_label"
	FieldTableIDPrefix Field = "id"
)

type WeightedField struct {
	Field  Field
	Weight WeightClass
}

type TierPlan struct {
	Tier   Tier
	Fields []WeightedField
	// Only rows whose table id has the canonical length
	CanonicalIDOnly bool
}

// Plan is everything a Backend needs to run one search
type Plan struct {
	Raw       string
	Terms     []string // After alias rewrite
	Rewritten string   // Terms, joined by a space
	Aliased   int      // Number of alias substitutions made

	Weights   Weights
	Tables    TierPlan
	Variables TierPlan

	// Upper-cased table id prefix, when the query is a single id-like term. Tried only if no
	// table matched by keyword or description.
	IDPrefix          string
	CanonicalIDLength int

	HighlightStart string
	HighlightStop  string
	MaxWords       int
	MinWords       int

	MaxRows int
	Mode    OutputMode
}

// HeadlineOptions is the options string for ts_headline
func (p *Plan) HeadlineOptions() string {
	return fmt.Sprintf(`StartSel="%v", StopSel="%v", MaxWords=%v, MinWords=%v`, p.HighlightStart, p.HighlightStop, p.MaxWords, p.MinWords)
}

func (p *Plan) String() string {
	return fmt.Sprintf("%v -> %v (%v)", p.Raw, p.Rewritten, p.Mode)
}

type PlannerOptions struct {
	Weights           Weights
	CanonicalIDLength int
	MaxRows           int
	HighlightStart    string
	HighlightStop     string
	MaxWords          int
	MinWords          int
}

func DefaultPlannerOptions() PlannerOptions {
	return PlannerOptions{
		Weights:           DefaultWeights,
		CanonicalIDLength: DefaultCanonicalIDLength,
		MaxRows:           DefaultMaxRows,
		HighlightStart:    DefaultHighlightStart,
		HighlightStop:     DefaultHighlightStop,
		MaxWords:          DefaultMaxWords,
		MinWords:          DefaultMinWords,
	}
}

// Planner turns raw query text into a Plan. It holds no per-request state.
type Planner struct {
	opts    PlannerOptions
	parser  Parser
	aliases *AliasRewriter
}

func NewPlanner(opts PlannerOptions, aliases []*catalog.Alias) (*Planner, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.CanonicalIDLength <= 0 {
		return nil, fmt.Errorf("Canonical table id length must be positive, not %v", opts.CanonicalIDLength)
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.HighlightStart == "" || opts.HighlightStop == "" {
		opts.HighlightStart = DefaultHighlightStart
		opts.HighlightStop = DefaultHighlightStop
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = DefaultMaxWords
	}
	if opts.MinWords <= 0 || opts.MinWords >= opts.MaxWords {
		opts.MinWords = opts.MaxWords / 2
	}
	parser := NewDefaultParser()
	return &Planner{
		opts:    opts,
		parser:  parser,
		aliases: NewAliasRewriter(parser, aliases),
	}, nil
}

func (p *Planner) NumAliases() int {
	return p.aliases.Len()
}

func (p *Planner) Plan(raw string, mode OutputMode) (*Plan, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyQuery
	}
	terms, substitutions := p.aliases.Rewrite(raw)
	if len(terms) == 0 {
		// Only punctuation
		return nil, ErrEmptyQuery
	}

	plan := &Plan{
		Raw:       raw,
		Terms:     terms,
		Rewritten: strings.Join(terms, " "),
		Aliased:   substitutions,
		Weights:   p.opts.Weights,
		Tables: TierPlan{
			Tier: TierTable,
			Fields: []WeightedField{
				{FieldKeyword, WeightA},
				{FieldUnkeyedText, WeightC},
			},
		},
		Variables: TierPlan{
			Tier: TierVariable,
			Fields: []WeightedField{
				{FieldKeyword, WeightA},
				{FieldFullLabel, WeightB},
				{FieldUnkeyedText, WeightC},
			},
			CanonicalIDOnly: true,
		},
		CanonicalIDLength: p.opts.CanonicalIDLength,
		HighlightStart:    p.opts.HighlightStart,
		HighlightStop:     p.opts.HighlightStop,
		MaxWords:          p.opts.MaxWords,
		MinWords:          p.opts.MinWords,
		MaxRows:           p.opts.MaxRows,
		Mode:              mode,
	}

	// The id fallback looks at the query as typed, not as rewritten
	if typed := p.parser.Tokenize(raw); len(typed) == 1 && isIDLike(typed[0]) {
		prefix := strings.ToUpper(typed[0])
		if i := strings.IndexByte(prefix, '_'); i != -1 {
			prefix = prefix[:i]
		}
		if len(prefix) <= p.opts.CanonicalIDLength {
			plan.IDPrefix = prefix
		}
	}

	return plan, nil
}
