package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
	"algoverse/internal/platform/executor"
	"algoverse/internal/platform/store"
	"algoverse/internal/platform/store/memstore"
)

// fakeRunner answers by stdin and records every call. Like the real client
// it reports a cancelled context as an infrastructure failure.
type fakeRunner struct {
	mu      sync.Mutex
	answers map[string]executor.Outcome
	calls   []string
	onCall  func(stdin string)
}

func (r *fakeRunner) Execute(ctx context.Context, _, _, stdin string) executor.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, stdin)
	hook := r.onCall
	r.mu.Unlock()
	if hook != nil {
		hook(stdin)
	}
	if err := ctx.Err(); err != nil {
		return executor.Outcome{Kind: executor.InfrastructureError, Output: "Failed to execute code - " + err.Error()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answers[stdin]
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingQueue struct {
	jobs []model.DeferredWrite
}

func (q *recordingQueue) Enqueue(_ context.Context, job model.DeferredWrite) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	gw          *memstore.Store
	runner      *fakeRunner
	deferred    *recordingQueue
	problemRepo repository.ProblemRepository
	subRepo     repository.SubmissionRepository
	progRepo    repository.ProgressRepository
	userRepo    repository.UserRepository
	submissions *SubmissionService
	problems    *ProblemService
}

func ok(out string) executor.Outcome {
	return executor.Outcome{Kind: executor.Success, Output: out}
}

// newFixture seeds problem p1 with three cases worth 10, 20 and 30 points
// (only the first is a sample) and a runner that gets the third one wrong.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := memstore.New().Unique("user_progress", "user_id", "problem_id")
	f := &fixture{
		gw: gw,
		runner: &fakeRunner{answers: map[string]executor.Outcome{
			"1": ok("2\n"),
			"2": ok("4"),
			"3": ok("7"),
		}},
		deferred:    &recordingQueue{},
		problemRepo: repository.NewProblemRepository(gw),
		subRepo:     repository.NewSubmissionRepository(gw),
		progRepo:    repository.NewProgressRepository(gw),
		userRepo:    repository.NewUserRepository(gw),
	}

	require.NoError(t, gw.Seed("languages", store.Record{"slug": "python", "name": "Python", "executor_key": "python3"}))
	require.NoError(t, gw.Seed("problems",
		store.Record{"id": "p1", "slug": "double", "title": "Double", "difficulty": "easy", "tags": []string{"math"}},
		store.Record{"id": "p2", "slug": "empty", "title": "Empty", "difficulty": "hard", "tags": []string{}},
	))
	require.NoError(t, gw.Seed("testcases",
		store.Record{"id": "t1", "problem_id": "p1", "input": "1", "expected_output": "2", "is_sample": true, "points": 10},
		store.Record{"id": "t2", "problem_id": "p1", "input": "2", "expected_output": "4", "is_sample": false, "points": 20},
		store.Record{"id": "t3", "problem_id": "p1", "input": "3", "expected_output": "6", "is_sample": false, "points": 30},
	))

	progress := NewProgressService(f.progRepo)
	f.submissions = NewSubmissionService(f.subRepo, f.problemRepo, progress, f.runner, f.deferred, zap.NewNop())
	f.problems = NewProblemService(f.problemRepo, f.progRepo)

	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	f.submissions.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}
