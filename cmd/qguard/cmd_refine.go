package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/pkg/lang"
	"github.com/jmylchreest/qguard/pkg/ollama"
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/refine"
	"github.com/jmylchreest/qguard/pkg/store"
)

var refineFlags = []string{
	"--lang=", "--max-iterations=", "--out=", "--in-place", "--model=", "--json", "--format=", "--no-store", "--config=",
}

func printRefineUsage() {
	fmt.Println(`qguard refine - Improve a file with a local model

Runs the file through the analyzer, asks the model to fix the reported
issues, and repeats until the score reaches 90 (excellent), no issues
remain, or the iteration limit is hit. The best-scoring version wins.

Usage:
  qguard refine <file> [options]

Options:
  --lang=LANG            Override language detection
  --max-iterations=N     Revision limit (default: refine.max_iterations)
  --model=NAME           Ollama model (default: ollama.model)
  --out=PATH             Write the best version to PATH (default: stdout)
  --in-place             Overwrite the input file with the best version
  --no-store             Do not record the run in history
  --json                 Print the refinement result as JSON
  --format=FORMAT        text, json or yaml

Examples:
  qguard refine app.py --out=app.improved.py
  qguard refine handler.go --max-iterations=5 --model=qwen2.5-coder:7b`)
}

func (a *app) cmdRefine(ctx context.Context, args []string) error {
	if hasFlag(args, "--help") || hasFlag(args, "-h") {
		printRefineUsage()
		return nil
	}
	if err := validateFlags("refine", args, refineFlags); err != nil {
		return err
	}
	files := positional(args)
	if len(files) != 1 {
		return fmt.Errorf("usage: qguard refine <file> [options]")
	}
	path := files[0]

	format, err := parseFormat(args)
	if err != nil {
		return err
	}
	maxIter, err := intFlag(args, "--max-iterations=", a.cfg.Refine.MaxIterations)
	if err != nil {
		return err
	}
	out := parseFlag(args, "--out=")
	if hasFlag(args, "--in-place") {
		if out != "" {
			return fmt.Errorf("--out and --in-place are mutually exclusive")
		}
		out = path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	language := lang.Normalize(parseFlag(args, "--lang="))
	if language == "" {
		language = lang.Detect(path, data)
	}
	if language == "" {
		return fmt.Errorf("cannot detect language of %s; pass --lang", path)
	}

	ocfg := a.cfg.Ollama
	if m := parseFlag(args, "--model="); m != "" {
		ocfg.Model = m
	}
	client := ollama.New(ocfg, a.log.Named("ollama"))
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", ocfg.URL, err)
	}

	refiner := refine.New(a.analyzer, ollama.NewReviser(client, language), refine.WithLogger(a.log.Named("refine")))
	res := refiner.Refine(ctx, string(data), language, maxIter)

	if !hasFlag(args, "--no-store") {
		a.record(refineRecord(relPath(a.root, path), language, res, a.analyzer.Analyze(res.Code, language)))
	}

	if out != "" {
		if err := os.WriteFile(out, []byte(res.Code), 0o644); err != nil {
			return err
		}
		a.log.Info("wrote refined code", zap.String("path", out))
	}

	switch {
	case format != formatText:
		return encode(a.out, format, res)
	case out == "":
		fmt.Fprintln(a.out, res.Code)
	}
	fmt.Fprintf(os.Stderr, "%s: %.1f (%s) after %d iteration(s), stopped: %s\n",
		path, res.Score, res.Level, res.Iterations, res.StopReason)
	if res.Error != "" {
		fmt.Fprintf(os.Stderr, "collaborator error: %s\n", res.Error)
	}
	return nil
}

// refineRecord stores the best candidate's issues, recomputed from its code
// since the run result only carries the score.
func refineRecord(path, language string, res refine.Result, best *quality.Report) *store.Record {
	return &store.Record{
		Kind:        store.KindRefine,
		FilePath:    path,
		Language:    language,
		Score:       res.Score,
		Level:       res.Level,
		Issues:      best.Issues,
		Suggestions: res.Suggestions,
		Metrics:     best.Metrics,
		RunID:       res.RunID,
		Iterations:  res.Iterations,
		StopReason:  string(res.StopReason),
	}
}
