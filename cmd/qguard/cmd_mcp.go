package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/internal/version"
	"github.com/jmylchreest/qguard/pkg/lang"
	"github.com/jmylchreest/qguard/pkg/ollama"
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/refine"
	"github.com/jmylchreest/qguard/pkg/store"
)

// =============================================================================
// MCP Tool Input Types
// =============================================================================

type AnalyzeInput struct {
	Code     string `json:"code,omitempty" jsonschema:"Source code to analyze. Either code or file is required."`
	Language string `json:"language,omitempty" jsonschema:"Language tag, e.g. python, go, javascript. Detected from file when omitted."`
	File     string `json:"file,omitempty" jsonschema:"Path of a file to read and analyze instead of code"`
}

type RefineInput struct {
	Code          string `json:"code" jsonschema:"Source code to improve"`
	Language      string `json:"language" jsonschema:"Language tag, e.g. python, go"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"Revision limit (default 3)"`
	File          string `json:"file,omitempty" jsonschema:"Path the code came from, recorded in history only"`
}

type HistorySearchInput struct {
	Query    string `json:"query" jsonschema:"Search query over issue messages and suggestions. Supports Bleve query syntax."`
	Kind     string `json:"kind,omitempty" jsonschema:"Filter by record kind: analyze, refine"`
	FilePath string `json:"file,omitempty" jsonschema:"Filter by exact file path"`
	Level    string `json:"level,omitempty" jsonschema:"Filter by level: excellent, good, fair, poor"`
	Category string `json:"category,omitempty" jsonschema:"Filter by issue type, e.g. security_issue"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default 20)"`
}

type RulesInput struct{}

// mcpServer exposes the analyzer, refiner and history as MCP tools.
type mcpServer struct {
	app    *app
	server *mcp.Server
	store  *store.Store
	log    *zap.Logger
}

func printMCPUsage() {
	fmt.Println(`qguard mcp - Start MCP server over stdio

Tools:
  quality_analyze          Score code and list its issues
  quality_refine           Iteratively improve code with the local model
  quality_history_search   Search stored results
  quality_rules            Show the active rule catalog`)
}

func (a *app) cmdMCP(ctx context.Context, args []string) error {
	if hasFlag(args, "--help") || hasFlag(args, "-h") {
		printMCPUsage()
		return nil
	}
	if err := validateFlags("mcp", args, []string{"--config="}); err != nil {
		return err
	}
	s := newMCPServer(a)
	s.log.Info("mcp server listening on stdio", zap.String("version", version.Short()))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func newMCPServer(a *app) *mcpServer {
	s := &mcpServer{app: a, log: a.log.Named("mcp")}
	// Handlers run concurrently and openStore is not, so open it up front.
	st, err := a.openStore()
	if err != nil {
		s.log.Warn("history unavailable", zap.Error(err))
	}
	s.store = st

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "qguard",
		Version: version.Short(),
	}, nil)
	s.registerTools()
	return s
}

func (s *mcpServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "quality_analyze",
		Description: `Analyze source code and return a quality report as JSON.

Returns a 0-100 score, a level (excellent >= 90, good >= 75, fair >= 50, poor),
the issues found (type, severity, message, line) and improvement suggestions.

Pass either code with a language, or a file path. Python and Go get syntax-tree
checks (function length, complexity, parameters, docstrings); other languages
get line and pattern checks.`,
	}, s.handleAnalyze)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "quality_refine",
		Description: `Iteratively improve code with the local Ollama model.

Each iteration sends the current issues to the model, re-analyzes its answer
and keeps the best-scoring version. Stops at score 90, when no issues remain,
or after max_iterations. Returns the best code, its score and an iteration trace.`,
	}, s.handleRefine)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "quality_history_search",
		Description: `Search previously stored analysis and refinement results.

Matches issue messages and suggestions by keyword. Filter by kind, file, level
or issue type. History is populated by 'qguard check', 'qguard refine',
'qguard watch' and the tools of this server.`,
	}, s.handleHistorySearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "quality_rules",
		Description: `Show the active rule catalog: limits, required documentation and the forbidden and security patterns per tier.`,
	}, s.handleRules)
}

// =============================================================================
// MCP Tool Handlers
// =============================================================================

func (s *mcpServer) handleAnalyze(_ context.Context, _ *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, any, error) {
	s.log.Debug("tool: quality_analyze", zap.String("file", input.File), zap.String("language", input.Language))

	code, language := input.Code, lang.Normalize(input.Language)
	if input.File != "" {
		if code != "" {
			return errorResult("pass either code or file, not both"), nil, nil
		}
		data, err := os.ReadFile(input.File)
		if err != nil {
			return errorResult(fmt.Sprintf("read failed: %v", err)), nil, nil
		}
		code = string(data)
		if language == "" {
			language = lang.Detect(input.File, data)
		}
	}
	if code == "" {
		return errorResult("code or file is required"), nil, nil
	}
	if language == "" {
		return errorResult("language is required"), nil, nil
	}

	rep := s.app.analyzer.Analyze(code, language)
	if s.store != nil {
		if err := s.store.Add(store.FromReport(relPath(s.app.root, input.File), language, rep)); err != nil {
			s.log.Warn("failed to record history", zap.Error(err))
		}
	}
	return jsonResult(rep)
}

func (s *mcpServer) handleRefine(ctx context.Context, _ *mcp.CallToolRequest, input RefineInput) (*mcp.CallToolResult, any, error) {
	s.log.Debug("tool: quality_refine", zap.String("language", input.Language), zap.Int("max_iterations", input.MaxIterations))

	language := lang.Normalize(input.Language)
	if input.Code == "" || language == "" {
		return errorResult("code and language are required"), nil, nil
	}
	maxIter := input.MaxIterations
	if maxIter <= 0 {
		maxIter = s.app.cfg.Refine.MaxIterations
	}

	client := s.app.ollama()
	if err := client.Ping(ctx); err != nil {
		return errorResult(fmt.Sprintf("ollama not reachable at %s: %v", s.app.cfg.Ollama.URL, err)), nil, nil
	}
	refiner := refine.New(s.app.analyzer, ollama.NewReviser(client, language), refine.WithLogger(s.log.Named("refine")))
	res := refiner.Refine(ctx, input.Code, language, maxIter)

	if s.store != nil {
		best := s.app.analyzer.Analyze(res.Code, language)
		if err := s.store.Add(refineRecord(relPath(s.app.root, input.File), language, res, best)); err != nil {
			s.log.Warn("failed to record history", zap.Error(err))
		}
	}
	return jsonResult(res)
}

func (s *mcpServer) handleHistorySearch(_ context.Context, _ *mcp.CallToolRequest, input HistorySearchInput) (*mcp.CallToolResult, any, error) {
	s.log.Debug("tool: quality_history_search", zap.String("query", input.Query))

	if s.store == nil {
		return errorResult("history store not available"), nil, nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return errorResult("query is required"), nil, nil
	}

	results, err := s.store.Search(input.Query, store.SearchOptions{
		Kind:     store.Kind(input.Kind),
		FilePath: input.FilePath,
		Level:    input.Level,
		Category: input.Category,
		Limit:    input.Limit,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil, nil
	}
	if len(results) == 0 {
		return textResult("No records found."), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d records:\n\n", len(results))
	for _, r := range results {
		sb.WriteString(formatRecordLine(r.Record))
	}
	return textResult(sb.String()), nil, nil
}

func (s *mcpServer) handleRules(_ context.Context, _ *mcp.CallToolRequest, _ RulesInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(s.app.rulesOutput())
}

// =============================================================================
// Result helpers
// =============================================================================

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + message},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode failed: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func formatRecordLine(r *store.Record) string {
	name := r.FilePath
	if name == "" {
		name = "(inline " + r.Language + ")"
	}
	line := fmt.Sprintf("- %s [%s] %s %.1f (%s), %d issues", r.ID, r.Kind, name, r.Score, r.Level, len(r.Issues))
	if top := topIssue(r.Issues); top != nil {
		line += fmt.Sprintf("; worst: %s", top.Message)
	}
	return line + "\n"
}

func topIssue(issues []quality.Issue) *quality.Issue {
	if len(issues) == 0 {
		return nil
	}
	sorted := sortIssues(issues)
	return &sorted[0]
}
