// Package refine drives the bounded score-and-revise loop: a candidate is
// scored, and while it falls short a collaborator is asked for a revision.
// The best candidate seen is returned, never merely the last one.
package refine

import (
	"context"
	"errors"
	"slices"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/pkg/quality"
)

const (
	// DefaultMaxIterations bounds the number of revision requests per run.
	DefaultMaxIterations = 3
	// TargetScore stops the loop once reached.
	TargetScore = quality.ThresholdExcellent
)

// Collaborator produces a revised candidate addressing the given issues.
type Collaborator interface {
	Revise(ctx context.Context, code string, issues []quality.Issue) (string, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface.
type CollaboratorFunc func(ctx context.Context, code string, issues []quality.Issue) (string, error)

// Revise calls f.
func (f CollaboratorFunc) Revise(ctx context.Context, code string, issues []quality.Issue) (string, error) {
	return f(ctx, code, issues)
}

// Scorer produces a report for a candidate. *analyzer.Analyzer satisfies it.
type Scorer interface {
	Analyze(code, language string) *quality.Report
}

// StopReason records why a run ended.
type StopReason string

const (
	StopTargetReached      StopReason = "target_reached"
	StopNoIssues           StopReason = "no_issues"
	StopMaxIterations      StopReason = "max_iterations"
	StopCollaboratorFailed StopReason = "collaborator_failed"
	StopCancelled          StopReason = "cancelled"
)

// Iteration is one scored candidate in a run's trace.
type Iteration struct {
	Iteration int           `json:"iteration" yaml:"iteration"`
	Score     float64       `json:"score" yaml:"score"`
	Level     quality.Level `json:"level" yaml:"level"`
	BestScore float64       `json:"best_score" yaml:"best_score"`
	Issues    int           `json:"issues" yaml:"issues"`
}

// Result is the outcome of a run. Code, Score, Level and Suggestions belong
// to the best candidate; Iterations counts successful revisions.
type Result struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Code        string        `json:"code" yaml:"code"`
	Score       float64       `json:"score" yaml:"score"`
	Level       quality.Level `json:"level" yaml:"level"`
	Suggestions []string      `json:"suggestions" yaml:"suggestions"`
	Iterations  int           `json:"iterations" yaml:"iterations"`
	StopReason  StopReason    `json:"stop_reason" yaml:"stop_reason"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Trace       []Iteration   `json:"trace" yaml:"trace"`
}

// Refiner runs refinement loops. It keeps no per-run state, so one Refiner
// can serve concurrent runs.
type Refiner struct {
	scorer Scorer
	collab Collaborator
	log    *zap.Logger
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Refiner scoring with scorer and revising with collab.
func New(scorer Scorer, collab Collaborator, opts ...Option) *Refiner {
	r := &Refiner{scorer: scorer, collab: collab, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// noBest is below any real score, so the first candidate always becomes the
// best.
const noBest = -1.0

// state is owned by a single run and updated only between iterations.
type state struct {
	language  string
	max       int
	current   string
	iteration int

	bestScore       float64
	bestCode        string
	bestLevel       quality.Level
	bestSuggestions []string

	trace []Iteration
}

type stepKind int

const (
	stepContinue stepKind = iota
	stepStop
	stepFailure
)

type stepResult struct {
	kind   stepKind
	reason StopReason
	err    error
}

func proceed() stepResult { return stepResult{kind: stepContinue} }

func stop(reason StopReason) stepResult { return stepResult{kind: stepStop, reason: reason} }

func failure(reason StopReason, err error) stepResult {
	return stepResult{kind: stepFailure, reason: reason, err: err}
}

// Refine improves code until it scores at least TargetScore, has no issues,
// or maxIterations revisions have been made (DefaultMaxIterations when
// maxIterations <= 0). The collaborator is called at most maxIterations
// times. Collaborator failures and cancellation end the run early with the
// best candidate so far.
func (r *Refiner) Refine(ctx context.Context, code, language string, maxIterations int) Result {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	runID := ulid.Make().String()
	log := r.log.With(zap.String("run_id", runID), zap.String("language", language))

	st := &state{
		language:  language,
		max:       maxIterations,
		current:   code,
		bestScore: noBest,
	}

	for {
		res := r.step(ctx, st, log)
		switch res.kind {
		case stepContinue:
			continue
		case stepFailure:
			log.Warn("refinement stopped early",
				zap.String("reason", string(res.reason)),
				zap.Int("iterations", st.iteration),
				zap.Error(res.err))
		default:
			log.Info("refinement finished",
				zap.String("reason", string(res.reason)),
				zap.Int("iterations", st.iteration),
				zap.Float64("score", st.bestScore))
		}
		return st.result(runID, res)
	}
}

func (r *Refiner) step(ctx context.Context, st *state, log *zap.Logger) stepResult {
	report := r.scorer.Analyze(st.current, st.language)
	st.record(report)
	log.Debug("candidate scored",
		zap.Int("iteration", st.iteration),
		zap.Float64("score", report.Score),
		zap.Float64("best_score", st.bestScore),
		zap.Int("issues", len(report.Issues)))

	switch {
	case report.Score >= TargetScore:
		return stop(StopTargetReached)
	case len(report.Issues) == 0:
		return stop(StopNoIssues)
	case st.iteration >= st.max:
		return stop(StopMaxIterations)
	}

	if ctx.Err() != nil {
		return stop(StopCancelled)
	}

	revised, err := r.collab.Revise(ctx, st.current, slices.Clone(report.Issues))
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return stop(StopCancelled)
		}
		return failure(StopCollaboratorFailed, err)
	}

	st.current = revised
	st.iteration++
	return proceed()
}

// record keeps the report as the best only on strict improvement, so the
// earliest candidate wins a tie.
func (st *state) record(report *quality.Report) {
	if report.Score > st.bestScore {
		st.bestScore = report.Score
		st.bestCode = st.current
		st.bestLevel = report.Level
		st.bestSuggestions = report.Suggestions
	}
	st.trace = append(st.trace, Iteration{
		Iteration: st.iteration,
		Score:     report.Score,
		Level:     report.Level,
		BestScore: st.bestScore,
		Issues:    len(report.Issues),
	})
}

func (st *state) result(runID string, res stepResult) Result {
	out := Result{
		RunID:       runID,
		Code:        st.bestCode,
		Score:       st.bestScore,
		Level:       st.bestLevel,
		Suggestions: st.bestSuggestions,
		Iterations:  st.iteration,
		StopReason:  res.reason,
		Trace:       st.trace,
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	if res.err != nil {
		out.Error = res.err.Error()
	}
	return out
}
