package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/qguard/pkg/quality"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func parseFormat(args []string) (outputFormat, error) {
	if hasFlag(args, "--json") {
		return formatJSON, nil
	}
	switch f := outputFormat(parseFlag(args, "--format=")); f {
	case "":
		return formatText, nil
	case formatText, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (text, json, yaml)", f)
	}
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// sortIssues orders issues by severity (critical first), then line.
func sortIssues(issues []quality.Issue) []quality.Issue {
	out := append([]quality.Issue(nil), issues...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := quality.SeverityRank(out[i].Severity), quality.SeverityRank(out[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return out[i].Line < out[j].Line
	})
	return out
}

func lineRef(line int) string {
	if line == 0 {
		return "-"
	}
	return fmt.Sprint(line)
}

// writeReport prints one report in human form.
func writeReport(w io.Writer, name string, r *quality.Report) error {
	fmt.Fprintf(w, "%s: %.1f (%s)\n", name, r.Score, strings.ToUpper(string(r.Level)))
	if len(r.Issues) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Line", "Severity", "Type", "Message")
		for _, iss := range sortIssues(r.Issues) {
			if err := table.Append(lineRef(iss.Line), string(iss.Severity), iss.Category, truncate(iss.Message, 80)); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	for _, s := range r.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	return nil
}
