package main

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/qguard/pkg/lang"
	"github.com/jmylchreest/qguard/pkg/rules"
)

// rulesOutput is the catalog plus the languages that select each tier.
type rulesOutput struct {
	Tiers     map[rules.Tier]rules.Spec `json:"tiers" yaml:"tiers"`
	Languages map[rules.Tier][]string   `json:"languages" yaml:"languages"`
}

func (a *app) rulesOutput() rulesOutput {
	byTier := map[rules.Tier][]string{rules.TierStructural: a.analyzer.StructuralLanguages()}
	for _, l := range lang.Known() {
		if a.analyzer.TierFor(l) == rules.TierGeneric {
			byTier[rules.TierGeneric] = append(byTier[rules.TierGeneric], l)
		}
	}
	return rulesOutput{Tiers: a.analyzer.Catalog().Specs(), Languages: byTier}
}

func (a *app) cmdRules(args []string) error {
	if hasFlag(args, "--help") || hasFlag(args, "-h") {
		fmt.Println("Usage: qguard rules [--json | --format=yaml]")
		return nil
	}
	if err := validateFlags("rules", args, []string{"--json", "--format=", "--config="}); err != nil {
		return err
	}
	format, err := parseFormat(args)
	if err != nil {
		return err
	}
	out := a.rulesOutput()
	if format != formatText {
		return encode(a.out, format, out)
	}

	table := tablewriter.NewWriter(a.out)
	table.Header("Rule", string(rules.TierStructural), string(rules.TierGeneric))
	s, g := out.Tiers[rules.TierStructural], out.Tiers[rules.TierGeneric]
	rows := [][3]string{
		{"max_function_length", fmt.Sprint(s.MaxFunctionLength), fmt.Sprint(g.MaxFunctionLength)},
		{"max_class_length", fmt.Sprint(s.MaxClassLength), fmt.Sprint(g.MaxClassLength)},
		{"max_file_length", fmt.Sprint(s.MaxFileLength), fmt.Sprint(g.MaxFileLength)},
		{"max_complexity", fmt.Sprint(s.MaxComplexity), fmt.Sprint(g.MaxComplexity)},
		{"max_parameters", fmt.Sprint(s.MaxParameters), fmt.Sprint(g.MaxParameters)},
		{"max_line_length", fmt.Sprint(s.MaxLineLength), fmt.Sprint(g.MaxLineLength)},
		{"require_docstrings", fmt.Sprint(s.RequireDocstrings), fmt.Sprint(g.RequireDocstrings)},
		{"require_type_hints", fmt.Sprint(s.RequireTypeHints), fmt.Sprint(g.RequireTypeHints)},
		{"forbidden_patterns", fmt.Sprint(len(s.ForbiddenPatterns)), fmt.Sprint(len(g.ForbiddenPatterns))},
		{"security_patterns", fmt.Sprint(len(s.SecurityPatterns)), fmt.Sprint(len(g.SecurityPatterns))},
	}
	for _, r := range rows {
		if err := table.Append(r[0], r[1], r[2]); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, t := range rules.Tiers {
		spec := out.Tiers[t]
		fmt.Fprintf(a.out, "\n%s tier (%s)\n", t, strings.Join(out.Languages[t], ", "))
		for _, p := range spec.ForbiddenPatterns {
			fmt.Fprintf(a.out, "  forbidden  %s\n", p)
		}
		for _, p := range spec.SecurityPatterns {
			fmt.Fprintf(a.out, "  security   %s\n", p)
		}
	}
	return nil
}
