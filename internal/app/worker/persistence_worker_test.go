package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"algoverse/internal/app/service"
	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
	"algoverse/internal/platform/queue"
	"algoverse/internal/platform/store/memstore"
)

type harness struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	gw       *memstore.Store
	q        *queue.RetryQueue
	locker   *queue.Locker
	subRepo  repository.SubmissionRepository
	progRepo repository.ProgressRepository
	worker   *PersistenceWorker
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	gw := memstore.New().Unique("user_progress", "user_id", "problem_id")
	h := &harness{
		mr:       mr,
		rdb:      rdb,
		gw:       gw,
		q:        queue.NewRetryQueue(rdb, "persistence_retry_queue"),
		locker:   queue.NewLocker(rdb),
		subRepo:  repository.NewSubmissionRepository(gw),
		progRepo: repository.NewProgressRepository(gw),
	}
	h.worker = NewPersistenceWorker(h.q, h.locker, h.subRepo, service.NewProgressService(h.progRepo), maxAttempts, 30*time.Second, zap.NewNop())
	h.worker.pollTimeout = 100 * time.Millisecond
	h.worker.newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	return h
}

func resultsJob(submissionID string) model.DeferredWrite {
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return model.DeferredWrite{
		Kind: model.DeferredSubmissionResults,
		Results: []model.SubmissionResult{
			{ID: "r1", SubmissionID: submissionID, TestCaseID: "t1", Passed: true, ActualOutput: "2", CreatedAt: at},
			{ID: "r2", SubmissionID: submissionID, TestCaseID: "t2", Passed: false, ActualOutput: "5", CreatedAt: at},
		},
	}
}

func progressJob(score int, passed bool) model.DeferredWrite {
	return model.DeferredWrite{
		Kind: model.DeferredUserProgress,
		Progress: &model.ProgressOutcome{
			UserID: "u1", ProblemID: "p1", Score: score, Passed: passed,
			At: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func queued(t *testing.T, h *harness) int64 {
	t.Helper()
	n, err := h.q.Len(context.Background())
	require.NoError(t, err)
	return n
}

func TestReplaysDeferredResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	require.NoError(t, h.q.Enqueue(ctx, resultsJob("s1")))

	handled, err := h.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, handled)

	results, err := h.subRepo.GetSubmissionResults(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Zero(t, queued(t, h))
}

func TestResultsAlreadyStoredCountAsApplied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	job := resultsJob("s1")
	require.NoError(t, h.subRepo.CreateSubmissionResults(ctx, job.Results))
	require.NoError(t, h.q.Enqueue(ctx, job))

	_, err := h.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued(t, h), "a conflict is not retried")
	assert.Len(t, h.gw.Rows("submission_results"), 2)
}

func TestFailedReplayIsRequeuedUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	h.gw.Fail(memstore.OpInsert, "submission_results", common.ErrUpstream, 10)
	require.NoError(t, h.q.Enqueue(ctx, resultsJob("s1")))

	_, err := h.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, queued(t, h))

	job, err := h.q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "upstream")
	require.NoError(t, h.q.Enqueue(ctx, *job))

	_, err = h.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued(t, h), "dropped after the last attempt")
	assert.Empty(t, h.gw.Rows("submission_results"))
}

func TestReplaysProgressUnderLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	require.NoError(t, h.q.Enqueue(ctx, progressJob(40, true)))
	require.NoError(t, h.q.Enqueue(ctx, progressJob(10, false)))

	for i := 0; i < 2; i++ {
		handled, err := h.worker.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, handled)
	}

	prog, err := h.progRepo.FindProgress(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, prog.Attempts)
	assert.Equal(t, 40, prog.BestScore)
	assert.True(t, prog.Solved)
	assert.False(t, h.mr.Exists("lock:progress:u1:p1"), "lock is released")
}

func TestProgressReplayWaitsForHeldLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	token, ok, err := h.locker.Acquire(ctx, "lock:progress:u1:p1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.q.Enqueue(ctx, progressJob(40, true)))

	_, err = h.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, queued(t, h), "re-queued while locked")
	assert.Empty(t, h.gw.Rows("user_progress"))

	job, err := h.q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, job.Attempts, "waiting on the lock is not a failed attempt")
	require.NoError(t, h.q.Enqueue(ctx, *job))

	released, err := h.locker.Release(ctx, "lock:progress:u1:p1", token)
	require.NoError(t, err)
	require.True(t, released)

	_, err = h.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Len(t, h.gw.Rows("user_progress"), 1)
}

func TestProcessOneOnEmptyQueue(t *testing.T) {
	h := newHarness(t, 3)

	handled, err := h.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestStartStopsOnCancel(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.q.Enqueue(ctx, resultsJob("s1")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.worker.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(h.gw.Rows("submission_results")) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
