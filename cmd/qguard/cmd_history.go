package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/store"
)

var historyFilterFlags = []string{
	"--kind=", "--file=", "--language=", "--level=", "--category=", "--limit=", "--json", "--format=", "--config=",
}

func (a *app) cmdHistory(args []string) error {
	if len(args) < 1 {
		printHistoryUsage()
		return nil
	}

	subcmd := args[0]
	subargs := args[1:]

	if subcmd == "help" || subcmd == "-h" || subcmd == "--help" {
		printHistoryUsage()
		return nil
	}

	s, err := a.openStore()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	if s == nil {
		return fmt.Errorf("history is disabled (store.disabled)")
	}

	switch subcmd {
	case "list":
		return a.cmdHistoryList(s, subargs)
	case "search":
		return a.cmdHistorySearch(s, subargs)
	case "show":
		return a.cmdHistoryShow(s, subargs)
	case "stats":
		return a.cmdHistoryStats(s, subargs)
	case "clear":
		return a.cmdHistoryClear(s, subargs)
	default:
		return fmt.Errorf("unknown history subcommand: %s", subcmd)
	}
}

func printHistoryUsage() {
	fmt.Println(`qguard history - Browse stored analysis and refinement results

Usage:
  qguard history <subcommand> [arguments]

Subcommands:
  list             List records, newest first
  search <query>   Full-text search over issues and suggestions
  show <id>        Show one record in full
  stats            Show totals by kind and level
  clear            Delete every record (requires --yes)

Filters (list, search, stats):
  --kind=KIND          analyze or refine
  --file=PATH          File path (substring for list, exact for search)
  --language=LANG      Language tag
  --level=LEVEL        excellent, good, fair or poor
  --category=TYPE      Issue type, e.g. security_issue
  --limit=N            Maximum results
  --json               Output as JSON

Examples:
  qguard history list --file=src/ --limit=10
  qguard history search "eval" --category=security_issue
  qguard history show 01J8Z6Q4N4S7M4W0X5T3B2R9KD`)
}

func parseHistoryFilters(cmd string, args []string) (store.SearchOptions, outputFormat, error) {
	if err := validateFlags("history "+cmd, args, historyFilterFlags); err != nil {
		return store.SearchOptions{}, "", err
	}
	format, err := parseFormat(args)
	if err != nil {
		return store.SearchOptions{}, "", err
	}
	limit, err := intFlag(args, "--limit=", 0)
	if err != nil {
		return store.SearchOptions{}, "", err
	}
	kind := store.Kind(parseFlag(args, "--kind="))
	switch kind {
	case "", store.KindAnalyze, store.KindRefine:
	default:
		return store.SearchOptions{}, "", fmt.Errorf("unknown kind %q (analyze, refine)", kind)
	}
	return store.SearchOptions{
		Kind:     kind,
		FilePath: parseFlag(args, "--file="),
		Language: parseFlag(args, "--language="),
		Level:    parseFlag(args, "--level="),
		Category: parseFlag(args, "--category="),
		Limit:    limit,
	}, format, nil
}

func (a *app) cmdHistoryList(s *store.Store, args []string) error {
	opts, format, err := parseHistoryFilters("list", args)
	if err != nil {
		return err
	}
	records, err := s.List(opts)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	if format != formatText {
		return encode(a.out, format, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No records found")
		return nil
	}
	return writeRecordTable(a.out, records, nil)
}

func (a *app) cmdHistorySearch(s *store.Store, args []string) error {
	query := strings.Join(positional(args), " ")
	if query == "" {
		return fmt.Errorf("usage: qguard history search <query> [--kind=KIND] [--level=LEVEL] [--limit=N]")
	}
	opts, format, err := parseHistoryFilters("search", args)
	if err != nil {
		return err
	}
	results, err := s.Search(query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if format != formatText {
		return encode(a.out, format, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(a.out, "No records found")
		return nil
	}

	records := make([]*store.Record, len(results))
	relevance := make([]float64, len(results))
	for i, r := range results {
		records[i] = r.Record
		relevance[i] = r.Score
	}
	fmt.Fprintf(a.out, "Found %d records:\n\n", len(results))
	return writeRecordTable(a.out, records, relevance)
}

func (a *app) cmdHistoryShow(s *store.Store, args []string) error {
	if err := validateFlags("history show", args, []string{"--json", "--format=", "--config="}); err != nil {
		return err
	}
	ids := positional(args)
	if len(ids) != 1 {
		return fmt.Errorf("usage: qguard history show <id>")
	}
	format, err := parseFormat(args)
	if err != nil {
		return err
	}

	r, err := s.Get(ids[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no record with id %s", ids[0])
	}
	if err != nil {
		return err
	}
	if format != formatText {
		return encode(a.out, format, r)
	}

	fmt.Fprintf(a.out, "ID:       %s\n", r.ID)
	fmt.Fprintf(a.out, "Kind:     %s\n", r.Kind)
	fmt.Fprintf(a.out, "Created:  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.FilePath != "" {
		fmt.Fprintf(a.out, "File:     %s\n", r.FilePath)
	}
	fmt.Fprintf(a.out, "Language: %s\n", r.Language)
	if r.Kind == store.KindRefine {
		fmt.Fprintf(a.out, "Run:      %s (%d iterations, stopped: %s)\n", r.RunID, r.Iterations, r.StopReason)
	}
	fmt.Fprintf(a.out, "Lines:    %d (%d functions, %d classes)\n\n", r.Metrics.TotalLines, r.Metrics.Functions, r.Metrics.Classes)

	rep := recordReport(r)
	return writeReport(a.out, r.Language, &rep)
}

func (a *app) cmdHistoryStats(s *store.Store, args []string) error {
	opts, format, err := parseHistoryFilters("stats", args)
	if err != nil {
		return err
	}
	stats, err := s.Stats(opts)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if format != formatText {
		return encode(a.out, format, stats)
	}

	fmt.Fprintf(a.out, "Records: %d across %d files\n", stats.Total, stats.Files)
	if stats.Total == 0 {
		return nil
	}
	fmt.Fprintf(a.out, "Average score: %.1f\n", stats.AvgScore)
	writeCounts(a.out, "By kind", stats.ByKind)
	writeCounts(a.out, "By level", stats.ByLevel)
	return nil
}

func (a *app) cmdHistoryClear(s *store.Store, args []string) error {
	if err := validateFlags("history clear", args, []string{"--yes", "--config="}); err != nil {
		return err
	}
	if !hasFlag(args, "--yes") {
		return fmt.Errorf("refusing to clear history without --yes")
	}
	n, err := s.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	fmt.Fprintf(a.out, "Cleared %d records\n", n)
	return nil
}

func recordReport(r *store.Record) quality.Report {
	return quality.Report{
		Score:       r.Score,
		Level:       r.Level,
		Issues:      r.Issues,
		Suggestions: r.Suggestions,
		Metrics:     r.Metrics,
	}
}

// writeRecordTable prints one row per record. relevance is optional and
// parallel to records.
func writeRecordTable(w io.Writer, records []*store.Record, relevance []float64) error {
	table := tablewriter.NewWriter(w)
	header := []any{"ID", "When", "Kind", "File", "Score", "Level", "Issues"}
	if relevance != nil {
		header = append(header, "Match")
	}
	table.Header(header...)
	for i, r := range records {
		row := []any{
			r.ID, r.CreatedAt.Format("01-02 15:04"), string(r.Kind), truncate(r.FilePath, 40),
			fmt.Sprintf("%.1f", r.Score), string(r.Level), fmt.Sprint(len(r.Issues)),
		}
		if relevance != nil {
			row = append(row, fmt.Sprintf("%.2f", relevance[i]))
		}
		if err := table.Append(row...); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k, counts[k])
	}
}
