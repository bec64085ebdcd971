// Package main provides the qguard CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmylchreest/qguard/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := runCommand(ctx, os.Args[1], os.Args[2:])
	stop()
	if err != nil {
		fatal("%v", err)
	}
}

func runCommand(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		return cmdVersion(args)
	}

	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "check":
		return a.cmdCheck(ctx, args)
	case "refine":
		return a.cmdRefine(ctx, args)
	case "rules":
		return a.cmdRules(args)
	case "history":
		return a.cmdHistory(args)
	case "watch":
		return a.cmdWatch(ctx, args)
	case "mcp":
		return a.cmdMCP(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s\n\nRun 'qguard help' for usage", cmd)
	}
}

func cmdVersion(args []string) error {
	if hasFlag(args, "--json") {
		fmt.Println(version.JSON())
		return nil
	}
	fmt.Println(version.String())
	return nil
}

func printUsage() {
	fmt.Printf(`qguard %s - code quality analysis and iterative refinement

Usage:
  qguard <command> [arguments]

Commands:
  check      Analyze files and report quality scores
  refine     Improve a file with a local model until it scores excellent
  rules      Show the active rule catalog
  history    Browse stored analysis and refinement results
  watch      Re-analyze files as they change
  mcp        Start MCP server (tools over stdio)
  version    Show version information

Options (all commands):
  --config=PATH    JSON config file (default: $QGUARD_CONFIG, then .qguard/config.json)

Environment:
  QGUARD_CONFIG                 Config file path
  QGUARD_<SECTION>__<KEY>       Override any setting, e.g.
                                QGUARD_RULES__STRUCTURAL__MAX_FUNCTION_LENGTH=80
                                QGUARD_OLLAMA__MODEL=qwen2.5-coder:7b
                                QGUARD_LOG__LEVEL=debug

Examples:
  qguard check .
  qguard check src/ --min-score=75 --exclude='**/migrations/**'
  qguard check app.py --json
  qguard refine app.py --out=app.improved.py
  qguard history search "eval"
  qguard watch src/
`, version.Short())
}
