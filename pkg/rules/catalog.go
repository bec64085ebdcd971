// Package rules provides the rule catalog: per-tier thresholds and patterns
// used by the structural and pattern analysers.
//
// A Catalog is built once from Specs (defaults merged with configuration)
// and is read-only afterwards, so a single Catalog can be shared by any
// number of concurrent analyses.
package rules

import (
	"fmt"
	"slices"
	"sync"
)

// Tier selects which analysers run for a language.
type Tier string

const (
	// TierStructural languages have a syntax-tree parser available.
	TierStructural Tier = "structural"
	// TierGeneric languages are analysed by text patterns only.
	TierGeneric Tier = "generic"
)

// Tiers lists every tier in a stable order.
var Tiers = []Tier{TierStructural, TierGeneric}

// Spec is the configurable form of a rule set.
type Spec struct {
	MaxFunctionLength int      `json:"max_function_length" koanf:"max_function_length"`
	MaxClassLength    int      `json:"max_class_length" koanf:"max_class_length"`
	MaxFileLength     int      `json:"max_file_length" koanf:"max_file_length"`
	MaxComplexity     int      `json:"max_complexity" koanf:"max_complexity"`
	MaxParameters     int      `json:"max_parameters" koanf:"max_parameters"`
	MaxLineLength     int      `json:"max_line_length" koanf:"max_line_length"`
	RequireDocstrings bool     `json:"require_docstrings" koanf:"require_docstrings"`
	RequireTypeHints  bool     `json:"require_type_hints" koanf:"require_type_hints"`
	ForbiddenPatterns []string `json:"forbidden_patterns" koanf:"forbidden_patterns"`
	SecurityPatterns  []string `json:"security_patterns" koanf:"security_patterns"`
}

// Thresholds are the numeric limits of a rule set.
type Thresholds struct {
	MaxFunctionLength int
	MaxClassLength    int
	MaxFileLength     int
	MaxComplexity     int
	MaxParameters     int
	MaxLineLength     int
}

// RuleSet is a compiled Spec. The zero value has no limits and no patterns.
type RuleSet struct {
	Tier Tier
	Thresholds
	RequireDocstrings bool
	RequireTypeHints  bool

	forbidden []*Pattern
	security  []*Pattern
}

// ForbiddenPatterns returns the forbidden-construct patterns in order.
func (rs RuleSet) ForbiddenPatterns() []*Pattern {
	return slices.Clone(rs.forbidden)
}

// SecurityPatterns returns the sensitive-literal patterns in order.
func (rs RuleSet) SecurityPatterns() []*Pattern {
	return slices.Clone(rs.security)
}

// Spec converts the rule set back to its configurable form.
func (rs RuleSet) Spec() Spec {
	return Spec{
		MaxFunctionLength: rs.MaxFunctionLength,
		MaxClassLength:    rs.MaxClassLength,
		MaxFileLength:     rs.MaxFileLength,
		MaxComplexity:     rs.MaxComplexity,
		MaxParameters:     rs.MaxParameters,
		MaxLineLength:     rs.MaxLineLength,
		RequireDocstrings: rs.RequireDocstrings,
		RequireTypeHints:  rs.RequireTypeHints,
		ForbiddenPatterns: sources(rs.forbidden),
		SecurityPatterns:  sources(rs.security),
	}
}

func sources(ps []*Pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Source
	}
	return out
}

// Compile validates a Spec and compiles its patterns. Forbidden and security
// patterns match case-insensitively.
func Compile(tier Tier, spec Spec) (RuleSet, error) {
	if err := spec.validate(); err != nil {
		return RuleSet{}, fmt.Errorf("%s rules: %w", tier, err)
	}

	rs := RuleSet{
		Tier: tier,
		Thresholds: Thresholds{
			MaxFunctionLength: spec.MaxFunctionLength,
			MaxClassLength:    spec.MaxClassLength,
			MaxFileLength:     spec.MaxFileLength,
			MaxComplexity:     spec.MaxComplexity,
			MaxParameters:     spec.MaxParameters,
			MaxLineLength:     spec.MaxLineLength,
		},
		RequireDocstrings: spec.RequireDocstrings,
		RequireTypeHints:  spec.RequireTypeHints,
	}

	var err error
	if rs.forbidden, err = compileAll(spec.ForbiddenPatterns); err != nil {
		return RuleSet{}, fmt.Errorf("%s forbidden patterns: %w", tier, err)
	}
	if rs.security, err = compileAll(spec.SecurityPatterns); err != nil {
		return RuleSet{}, fmt.Errorf("%s security patterns: %w", tier, err)
	}
	return rs, nil
}

func compileAll(srcs []string) ([]*Pattern, error) {
	out := make([]*Pattern, 0, len(srcs))
	for _, src := range srcs {
		p, err := CompilePattern(src, true)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s Spec) validate() error {
	limits := []struct {
		name  string
		value int
	}{
		{"max_function_length", s.MaxFunctionLength},
		{"max_class_length", s.MaxClassLength},
		{"max_file_length", s.MaxFileLength},
		{"max_complexity", s.MaxComplexity},
		{"max_parameters", s.MaxParameters},
		{"max_line_length", s.MaxLineLength},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", l.name, l.value)
		}
	}
	return nil
}

// Catalog holds one compiled RuleSet per tier.
type Catalog struct {
	sets map[Tier]RuleSet
}

// NewCatalog compiles a catalog. Tiers missing from specs use their defaults.
func NewCatalog(specs map[Tier]Spec) (*Catalog, error) {
	c := &Catalog{sets: make(map[Tier]RuleSet, len(Tiers))}
	for _, tier := range Tiers {
		spec, ok := specs[tier]
		if !ok {
			spec = DefaultSpec(tier)
		}
		rs, err := Compile(tier, spec)
		if err != nil {
			return nil, err
		}
		c.sets[tier] = rs
	}
	return c, nil
}

// RulesFor returns the rule set for a tier. Unknown tiers get the generic
// rules.
func (c *Catalog) RulesFor(tier Tier) RuleSet {
	if rs, ok := c.sets[tier]; ok {
		return rs
	}
	return c.sets[TierGeneric]
}

// Specs returns the effective configuration of every tier.
func (c *Catalog) Specs() map[Tier]Spec {
	out := make(map[Tier]Spec, len(c.sets))
	for tier, rs := range c.sets {
		out[tier] = rs.Spec()
	}
	return out
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := NewCatalog(nil)
	if err != nil {
		panic(fmt.Sprintf("built-in rules do not compile: %v", err))
	}
	return c
})

// Default returns the catalog built from the built-in defaults.
func Default() *Catalog {
	return defaultCatalog()
}
