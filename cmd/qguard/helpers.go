package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
)

// fatal prints an error message and exits with code 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// truncate shortens a string to n characters with ellipsis.
func truncate(s string, n int) string {
	if n < 4 {
		return s
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// parseFlag extracts a flag value from args (e.g., "--key=value").
func parseFlag(args []string, prefix string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
	}
	return ""
}

// parseFlags collects every value of a repeatable flag.
func parseFlags(args []string, prefix string) []string {
	var out []string
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			out = append(out, strings.TrimPrefix(arg, prefix))
		}
	}
	return out
}

// hasFlag checks if a flag is present in args.
func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

// positional returns the arguments that are not flags.
func positional(args []string) []string {
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
		}
	}
	return out
}

// intFlag parses --name=N, returning def when the flag is absent.
func intFlag(args []string, prefix string, def int) (int, error) {
	v := parseFlag(args, prefix)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, v, err)
	}
	return n, nil
}

// floatFlag parses --name=X, returning def when the flag is absent.
func floatFlag(args []string, prefix string, def float64) (float64, error) {
	v := parseFlag(args, prefix)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, v, err)
	}
	return f, nil
}

func durationFlag(args []string, prefix string, def time.Duration) (time.Duration, error) {
	v := parseFlag(args, prefix)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, v, err)
	}
	return d, nil
}

// validateFlags rejects flags not in known. Entries ending in "=" match any
// value.
func validateFlags(cmd string, args, known []string) error {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		ok := false
		for _, k := range known {
			if arg == k || (strings.HasSuffix(k, "=") && strings.HasPrefix(arg, k)) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s\n\nRun 'qguard %s --help' for usage", arg, cmd)
		}
	}
	return nil
}

// findProjectRoot returns the root of the git work tree containing dir, or
// dir itself outside a repository.
func findProjectRoot(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return dir
	}
	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no work tree.
		return dir
	}
	return wt.Filesystem.Root()
}

// relPath shortens path to be relative to root where possible.
func relPath(root, path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
