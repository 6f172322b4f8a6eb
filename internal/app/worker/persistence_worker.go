package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"algoverse/internal/app/service"
	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
)

const (
	defaultPollTimeout = 5 * time.Second
	errorPause         = time.Second
)

type JobQueue interface {
	Enqueue(ctx context.Context, job model.DeferredWrite) error
	Pop(ctx context.Context, timeout time.Duration) (*model.DeferredWrite, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// PersistenceWorker replays submission results and progress updates that
// could not be written while the submit request was being served.
type PersistenceWorker struct {
	queue          JobQueue
	locker         Locker
	submissionRepo repository.SubmissionRepository
	progress       *service.ProgressService
	maxAttempts    int
	lockTTL        time.Duration
	pollTimeout    time.Duration
	newBackOff     func() backoff.BackOff
	log            *zap.Logger
}

func NewPersistenceWorker(
	queue JobQueue,
	locker Locker,
	subRepo repository.SubmissionRepository,
	progress *service.ProgressService,
	maxAttempts int,
	lockTTL time.Duration,
	log *zap.Logger,
) *PersistenceWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PersistenceWorker{
		queue:          queue,
		locker:         locker,
		submissionRepo: subRepo,
		progress:       progress,
		maxAttempts:    maxAttempts,
		lockTTL:        lockTTL,
		pollTimeout:    defaultPollTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return backoff.WithMaxRetries(b, 3)
		},
		log: log.Named("persistence_worker"),
	}
}

// Start consumes the retry queue until ctx is cancelled.
func (w *PersistenceWorker) Start(ctx context.Context) {
	w.log.Info("persistence worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("persistence worker stopping")
			return
		default:
		}

		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error("failed to read retry queue", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(errorPause):
			}
		}
	}
}

// ProcessOne pops and handles a single deferred write. It reports false when
// the queue stayed empty for the poll timeout.
func (w *PersistenceWorker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Pop(ctx, w.pollTimeout)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *PersistenceWorker) handle(ctx context.Context, job *model.DeferredWrite) {
	log := w.log.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempts", job.Attempts))

	var err error
	switch job.Kind {
	case model.DeferredSubmissionResults:
		err = w.replayResults(ctx, job.Results)
	case model.DeferredUserProgress:
		if job.Progress == nil {
			log.Error("dropping progress job without payload")
			return
		}
		var locked bool
		locked, err = w.replayProgress(ctx, *job.Progress)
		if err == nil && !locked {
			log.Info("progress is being updated elsewhere, re-queueing")
			w.requeue(ctx, log, *job)
			return
		}
	default:
		log.Error("dropping deferred write of unknown kind")
		return
	}

	if err == nil {
		log.Info("deferred write applied")
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= w.maxAttempts {
		log.Error("giving up on deferred write", zap.Error(err))
		return
	}
	log.Warn("deferred write failed, re-queueing", zap.Error(err))
	w.requeue(ctx, log, *job)
}

func (w *PersistenceWorker) replayResults(ctx context.Context, results []model.SubmissionResult) error {
	if len(results) == 0 {
		return nil
	}
	return w.retry(ctx, func() error {
		err := w.submissionRepo.CreateSubmissionResults(ctx, results)
		if errors.Is(err, common.ErrConflict) {
			// an earlier attempt already landed
			return nil
		}
		return err
	})
}

// replayProgress folds the outcome while holding the per-(user, problem)
// lock. It reports false without doing anything when the lock is taken.
func (w *PersistenceWorker) replayProgress(ctx context.Context, o model.ProgressOutcome) (bool, error) {
	key := fmt.Sprintf("lock:progress:%s:%s", o.UserID, o.ProblemID)
	token, ok, err := w.locker.Acquire(ctx, key, w.lockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		released, err := w.locker.Release(context.WithoutCancel(ctx), key, token)
		if err != nil {
			w.log.Error("failed to release progress lock", zap.String("key", key), zap.Error(err))
		} else if !released {
			w.log.Warn("progress lock expired before release", zap.String("key", key))
		}
	}()

	return true, w.retry(ctx, func() error {
		return w.progress.Record(ctx, o)
	})
}

func (w *PersistenceWorker) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, common.ErrBadRequest) || errors.Is(err, common.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(w.newBackOff(), ctx))
}

func (w *PersistenceWorker) requeue(ctx context.Context, log *zap.Logger, job model.DeferredWrite) {
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		log.Error("failed to re-queue deferred write", zap.Error(err))
	}
}
