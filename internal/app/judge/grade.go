package judge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"algoverse/internal/domain/model"
	"algoverse/internal/platform/executor"
)

// Runner executes code once against stdin.
type Runner interface {
	Execute(ctx context.Context, language, code, stdin string) executor.Outcome
}

type CaseResult struct {
	TestCaseID   string
	Passed       bool
	Kind         executor.Kind
	ActualOutput string
	RuntimeMs    int64
}

func (r CaseResult) IsError() bool {
	return r.Kind != executor.Success
}

// Report is the aggregate of one grading run. Results follow the order of
// the supplied test cases.
type Report struct {
	Passed      bool
	Score       int
	PassedTests int
	TotalTests  int
	Summary     string
	Results     []CaseResult
}

type Grader struct {
	runner Runner
	log    *zap.Logger
	now    func() time.Time
}

func NewGrader(runner Runner, log *zap.Logger) *Grader {
	return &Grader{runner: runner, log: log, now: time.Now}
}

// Grade runs every case in order, one at a time, with no short-circuit on
// failure. outputLimit caps each recorded actual output in characters; 0
// keeps it whole. An empty case list yields a failed report with no results.
func (g *Grader) Grade(ctx context.Context, language, code string, cases []model.TestCase, outputLimit int) Report {
	report := Report{
		Passed:     len(cases) > 0,
		TotalTests: len(cases),
		Results:    make([]CaseResult, 0, len(cases)),
	}

	for _, tc := range cases {
		start := g.now()
		outcome := g.runner.Execute(ctx, language, code, tc.Input)
		elapsed := g.now().Sub(start)

		passed := !outcome.IsError() && Equivalent(tc.ExpectedOutput, outcome.Output)
		text := outcome.Text()

		if passed {
			report.Score += tc.Points
			report.PassedTests++
		} else {
			report.Passed = false
		}
		if report.Summary == "" && text != "" {
			report.Summary = text
		}

		recorded := text
		if outputLimit > 0 {
			recorded = model.Truncate(text, outputLimit)
		}
		report.Results = append(report.Results, CaseResult{
			TestCaseID:   tc.ID,
			Passed:       passed,
			Kind:         outcome.Kind,
			ActualOutput: recorded,
			RuntimeMs:    elapsed.Milliseconds(),
		})

		g.log.Debug("graded test case",
			zap.String("testcase_id", tc.ID),
			zap.Stringer("outcome", outcome.Kind),
			zap.Bool("passed", passed),
			zap.Duration("runtime", elapsed),
		)
	}
	return report
}
