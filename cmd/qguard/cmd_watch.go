package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/pkg/ignore"
	"github.com/jmylchreest/qguard/pkg/lang"
	"github.com/jmylchreest/qguard/pkg/store"
	"github.com/jmylchreest/qguard/pkg/watcher"
)

func printWatchUsage() {
	fmt.Println(`qguard watch - Re-analyze files as they change

Usage:
  qguard watch [paths...] [options]

Options:
  --debounce=DURATION   Quiet period before analysing (default: watch.debounce)
  --min-score=N         Mark files scoring below N
  --no-store            Do not record results in history

Examples:
  qguard watch
  qguard watch src/ --debounce=2s`)
}

// watchHandler analyses each debounced batch. Batches can overlap when a
// slow batch is still running as the next window closes.
type watchHandler struct {
	a        *app
	minScore float64
	noStore  bool

	mu sync.Mutex
}

func (h *watchHandler) OnChanges(files map[string]fsnotify.Op) {
	h.mu.Lock()
	defer h.mu.Unlock()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rel := relPath(h.a.root, path)
		if watcher.IsRemove(files[path]) {
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintf(h.a.out, "%s removed\n", rel)
				continue
			}
		}
		rep, language, err := h.a.analyzeFile(path, "")
		if err != nil {
			h.a.log.Warn("analyze failed", zap.String("file", rel), zap.Error(err))
			continue
		}
		mark := ""
		if h.minScore > 0 && rep.Score < h.minScore {
			mark = "  below minimum"
		}
		fmt.Fprintf(h.a.out, "%s %.1f %s (%d issues)%s\n", rel, rep.Score, rep.Level, len(rep.Issues), mark)
		if !h.noStore {
			h.a.record(store.FromReport(rel, language, rep))
		}
	}
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if hasFlag(args, "--help") || hasFlag(args, "-h") {
		printWatchUsage()
		return nil
	}
	if err := validateFlags("watch", args, []string{"--debounce=", "--min-score=", "--no-store", "--config="}); err != nil {
		return err
	}
	debounce, err := durationFlag(args, "--debounce=", a.cfg.Watch.Debounce)
	if err != nil {
		return err
	}
	minScore, err := floatFlag(args, "--min-score=", a.cfg.Refine.MinScore)
	if err != nil {
		return err
	}

	h := &watchHandler{a: a, minScore: minScore, noStore: hasFlag(args, "--no-store")}
	if !h.noStore {
		// Open before handlers run; openStore is not safe for concurrent use.
		if _, err := a.openStore(); err != nil {
			a.log.Warn("history unavailable", zap.Error(err))
			h.noStore = true
		}
	}

	ign, err := ignore.Load(a.root)
	if err != nil {
		return err
	}
	w, err := watcher.New(watcher.Config{
		Paths:         positional(args),
		DebounceDelay: debounce,
		Logger:        a.log.Named("watcher"),
		FileFilter: func(path string) bool {
			return lang.Supported(path) && !ign.Match(relPath(a.root, path), false)
		},
	}, h)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	fmt.Fprintf(os.Stderr, "watching %d directories (ctrl-c to stop)\n", w.DirsWatched())

	<-ctx.Done()
	return w.Stop()
}
