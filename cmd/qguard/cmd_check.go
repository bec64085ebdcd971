package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/qguard/pkg/ignore"
	"github.com/jmylchreest/qguard/pkg/lang"
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/secrets"
	"github.com/jmylchreest/qguard/pkg/store"
	"github.com/jmylchreest/qguard/pkg/watcher"
)

// maxSourceSize bounds the files check will read.
const maxSourceSize = 4 << 20

var checkFlags = []string{
	"--lang=", "--json", "--format=", "--min-score=", "--include=", "--exclude=",
	"--deep-secrets", "--validate-secrets", "--no-store", "--no-ignore", "--verbose", "--config=",
}

// fileResult is one analysed file in check output.
type fileResult struct {
	Path           string `json:"file" yaml:"file"`
	Language       string `json:"language" yaml:"language"`
	quality.Report `yaml:",inline"`
}

type checkSummary struct {
	Files    int     `json:"files" yaml:"files"`
	AvgScore float64 `json:"avg_score" yaml:"avg_score"`
	MinScore float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	Below    int     `json:"below,omitempty" yaml:"below,omitempty"`
}

type checkOutput struct {
	Results []fileResult `json:"results" yaml:"results"`
	Summary checkSummary `json:"summary" yaml:"summary"`
}

type checkOptions struct {
	language    string
	include     []string
	exclude     []string
	minScore    float64
	deepSecrets bool
	validate    bool
	noStore     bool
	verbose     bool
	format      outputFormat

	// Walked paths are matched against ignore relative to root.
	root   string
	ignore *ignore.Matcher
}

func printCheckUsage() {
	fmt.Println(`qguard check - Analyze files and report quality scores

Usage:
  qguard check [paths...] [options]

Options:
  --lang=LANG          Treat every file as LANG (default: detect per file)
  --include=GLOB       Only files matching GLOB (repeatable, ** supported)
  --exclude=GLOB       Skip files matching GLOB (repeatable)
  --min-score=N        Exit non-zero if any file scores below N (default: refine.min_score)
  --deep-secrets       Also scan for secrets with the full titus rule set
  --validate-secrets   With --deep-secrets, check credentials against providers (network)
  --no-store           Do not record results in history
  --no-ignore          Do not apply .qguardignore and the generated-code defaults
  --verbose            Print issues for every file
  --json               Output as JSON
  --format=FORMAT      text, json or yaml

Examples:
  qguard check .
  qguard check src/ --include='**/*.py' --min-score=75
  qguard check app.py --json`)
}

func parseCheckArgs(args []string, defaultMin float64) (*checkOptions, []string, error) {
	if err := validateFlags("check", args, checkFlags); err != nil {
		return nil, nil, err
	}
	format, err := parseFormat(args)
	if err != nil {
		return nil, nil, err
	}
	minScore, err := floatFlag(args, "--min-score=", defaultMin)
	if err != nil {
		return nil, nil, err
	}
	opts := &checkOptions{
		language:    lang.Normalize(parseFlag(args, "--lang=")),
		include:     parseFlags(args, "--include="),
		exclude:     parseFlags(args, "--exclude="),
		minScore:    minScore,
		deepSecrets: hasFlag(args, "--deep-secrets"),
		validate:    hasFlag(args, "--validate-secrets"),
		noStore:     hasFlag(args, "--no-store"),
		verbose:     hasFlag(args, "--verbose"),
		format:      format,
	}
	for _, g := range append(opts.include, opts.exclude...) {
		if !doublestar.ValidatePattern(g) {
			return nil, nil, fmt.Errorf("invalid glob %q", g)
		}
	}

	paths := positional(args)
	if len(paths) == 0 {
		paths = []string{"."}
	}
	return opts, paths, nil
}

func (a *app) cmdCheck(ctx context.Context, args []string) error {
	if hasFlag(args, "--help") || hasFlag(args, "-h") {
		printCheckUsage()
		return nil
	}
	opts, paths, err := parseCheckArgs(args, a.cfg.Refine.MinScore)
	if err != nil {
		return err
	}
	opts.root = a.root
	if !hasFlag(args, "--no-ignore") {
		if opts.ignore, err = ignore.Load(a.root); err != nil {
			return err
		}
	}

	files, err := collectFiles(paths, opts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found in %s", strings.Join(paths, ", "))
	}

	var scanner *secrets.Scanner
	if opts.deepSecrets {
		var sopts []secrets.Option
		if opts.validate {
			sopts = append(sopts, secrets.WithValidation())
		}
		if scanner, err = secrets.New(sopts...); err != nil {
			return err
		}
		defer scanner.Close()
		a.log.Debug("secrets scanner ready", zap.Int("rules", scanner.RuleCount()))
	}

	start := time.Now()
	results, err := a.analyzeFiles(ctx, files, opts.language, scanner)
	if err != nil {
		return err
	}
	a.log.Info("check complete", zap.Int("files", len(results)), zap.Duration("elapsed", time.Since(start)))

	if !opts.noStore {
		for _, r := range results {
			rep := r.Report
			a.record(store.FromReport(r.Path, r.Language, &rep))
		}
	}

	out := checkOutput{Results: results, Summary: summarize(results, opts.minScore)}
	if opts.format == formatText {
		if err := a.writeCheckText(out, opts.verbose || len(results) == 1); err != nil {
			return err
		}
	} else if err := encode(a.out, opts.format, out); err != nil {
		return err
	}

	if out.Summary.Below > 0 {
		return fmt.Errorf("%d of %d files scored below %.1f", out.Summary.Below, out.Summary.Files, opts.minScore)
	}
	return nil
}

// collectFiles expands paths into source files. Named files are always
// included; directories are walked, skipping VCS, vendor and build dirs and
// anything opts.ignore matches.
func collectFiles(paths []string, opts *checkOptions) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && (watcher.SkipDir(d.Name()) || opts.ignored(path, true)) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || opts.ignored(path, false) {
				return nil
			}
			if opts.language == "" && !lang.Supported(path) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			if matchGlobs(filepath.ToSlash(rel), opts.include, opts.exclude) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error walking %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (o *checkOptions) ignored(path string, isDir bool) bool {
	if o.ignore == nil {
		return false
	}
	return o.ignore.Match(relPath(o.root, path), isDir)
}

// matchGlobs reports whether a slash path passes the include and exclude
// lists. An empty include list admits everything.
func matchGlobs(rel string, include, exclude []string) bool {
	for _, g := range exclude {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, g := range include {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// analyzeFiles scores files concurrently. Results keep the order of files.
func (a *app) analyzeFiles(ctx context.Context, files []string, override string, scanner *secrets.Scanner) ([]fileResult, error) {
	limit := a.cfg.Refine.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]fileResult, len(files))
	var scanMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, language, err := a.analyzeFile(path, override)
			if err != nil {
				return err
			}
			if scanner != nil && !rep.Failed() {
				// The titus scanner is not documented as goroutine safe.
				scanMu.Lock()
				found, err := scanner.ScanFile(gctx, path)
				scanMu.Unlock()
				if err != nil {
					a.log.Warn("secrets scan failed", zap.String("file", path), zap.Error(err))
				}
				rep = secrets.Merge(rep, found)
			}
			results[i] = fileResult{Path: relPath(a.root, path), Language: language, Report: *rep}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// analyzeFile reads and scores one file.
func (a *app) analyzeFile(path, override string) (*quality.Report, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if info.Size() > maxSourceSize {
		return nil, "", fmt.Errorf("%s: file too large to analyze (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	language := override
	if language == "" {
		language = lang.Detect(path, data)
	}
	if language == "" {
		language = "text"
	}
	return a.analyzer.Analyze(string(data), language), language, nil
}

func summarize(results []fileResult, minScore float64) checkSummary {
	s := checkSummary{Files: len(results), MinScore: minScore}
	var sum float64
	for _, r := range results {
		sum += r.Score
		if minScore > 0 && r.Score < minScore {
			s.Below++
		}
	}
	if len(results) > 0 {
		s.AvgScore = sum / float64(len(results))
	}
	return s
}

func (a *app) writeCheckText(out checkOutput, detail bool) error {
	if detail {
		for _, r := range out.Results {
			rep := r.Report
			if err := writeReport(a.out, r.Path, &rep); err != nil {
				return err
			}
			fmt.Fprintln(a.out)
		}
	}

	table := tablewriter.NewWriter(a.out)
	table.Header("File", "Language", "Score", "Level", "Critical", "Major", "Minor")
	for _, r := range out.Results {
		counts := r.CountBySeverity()
		if err := table.Append(
			truncate(r.Path, 60), r.Language,
			fmt.Sprintf("%.1f", r.Score), string(r.Level),
			fmt.Sprint(counts[quality.SevCritical]), fmt.Sprint(counts[quality.SevMajor]), fmt.Sprint(counts[quality.SevMinor]),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\n%d files, average %.1f (%s)\n", out.Summary.Files, out.Summary.AvgScore, quality.Classify(out.Summary.AvgScore))
	if out.Summary.MinScore > 0 {
		fmt.Fprintf(a.out, "%d below minimum score %.1f\n", out.Summary.Below, out.Summary.MinScore)
	}
	return nil
}
