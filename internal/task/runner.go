package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
	"github.com/phrazzld/apply-orchestrator/internal/store"
)

// InterruptedMessage is stored on records whose run died before the remote
// task was created.
const InterruptedMessage = "Automation was interrupted before submission. Please try again."

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge is how long a record may go without updates before the
	// sweep considers its run lost.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to sweep. If zero, defaults
	// to 5 minutes.
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner executes apply tasks on a bounded worker pool. Each task's
// mirror record is moved to in_progress before Execute and is guaranteed to
// be terminal afterwards, unless the runner is shutting down, in which case
// the record is left for recovery on the next start.
type TaskRunner struct {
	store      store.MirrorStore
	factory    TaskFactory
	taskChan   chan Task
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	observer   RunObserver
	errHandler func(task Task, err error)
	now        func() time.Time

	mu sync.Mutex
	// tracked holds ids that are queued or running in this process.
	tracked map[uuid.UUID]struct{}
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(mirrors store.MirrorStore, factory TaskFactory, config TaskRunnerConfig, log *slog.Logger) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      mirrors,
		factory:    factory,
		taskChan:   make(chan Task, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     log,
		observer:   noopObserver{},
		errHandler: func(task Task, err error) {},
		now:        time.Now,
		tracked:    make(map[uuid.UUID]struct{}),
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// SetObserver registers o for run start and finish notifications.
func (r *TaskRunner) SetObserver(o RunObserver) {
	if o == nil {
		o = noopObserver{}
	}
	r.observer = o
}

// Submit queues task without blocking. A task whose record is already
// queued or running in this process is accepted and dropped.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if r.ctx.Err() != nil {
		return ErrRunnerStopped
	}
	if err := r.enqueue(task); err != nil {
		return err
	}
	logger.FromContextOrDefault(ctx, r.logger).Debug("task queued",
		"mirror_id", task.ID(),
		"task_type", task.Type())
	return nil
}

// Start recovers unfinished records and starts the workers and the stuck
// run monitor.
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop cancels running tasks and waits for the workers to exit.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

// Recover re-queues every unfinished record regardless of age.
func (r *TaskRunner) Recover() error {
	requeued, failed, err := r.sweep(r.ctx, time.Time{})
	if err != nil {
		return err
	}
	r.logger.Info("recovered unfinished tasks", "requeued", requeued, "failed", failed)
	return nil
}

// sweep handles records not tracked by this process whose updated_at is
// before olderThan (zero means any age). Pending records and in_progress
// records with a remote task id are re-queued; in_progress records without
// one can never be resumed and are failed.
func (r *TaskRunner) sweep(ctx context.Context, olderThan time.Time) (requeued, failed int, err error) {
	pending, err := r.store.ListByStatus(ctx, domain.MirrorStatusPending, olderThan)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending records: %w", err)
	}
	running, err := r.store.ListByStatus(ctx, domain.MirrorStatusInProgress, olderThan)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list in-progress records: %w", err)
	}

	for _, rec := range append(pending, running...) {
		if r.isTracked(rec.ID) {
			continue
		}
		log := r.logger.With("mirror_id", rec.ID, "status", rec.Status)

		if rec.Status == domain.MirrorStatusInProgress && rec.RemoteTaskID == "" {
			if _, err := r.store.Transition(ctx, rec.ID, domain.MirrorStatusFailed, InterruptedMessage); err != nil &&
				!errors.Is(err, domain.ErrMirrorTerminal) {
				log.Error("failed to fail interrupted record", "error", redact.Error(err))
				continue
			}
			log.Warn("failed record interrupted before submission")
			failed++
			continue
		}

		task, err := r.factory.ResumeTask(rec)
		if err != nil {
			log.Error("failed to rebuild task", "error", redact.Error(err))
			continue
		}
		if err := r.enqueue(task); err != nil {
			log.Error("failed to requeue task", "error", err)
			continue
		}
		requeued++
	}
	return requeued, failed, nil
}

func (r *TaskRunner) enqueue(task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracked[task.ID()]; ok {
		return nil
	}
	select {
	case r.taskChan <- task:
		r.tracked[task.ID()] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *TaskRunner) isTracked(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tracked[id]
	return ok
}

func (r *TaskRunner) release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracked, id)
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task := <-r.taskChan:
			r.processTask(task, id)
		}
	}
}

// processTask runs one task and settles its record.
func (r *TaskRunner) processTask(task Task, workerID int) {
	defer r.release(task.ID())

	log := r.logger.With(
		"mirror_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)
	ctx := logger.WithLogger(r.ctx, log)

	if _, err := r.store.Transition(ctx, task.ID(), domain.MirrorStatusInProgress, ""); err != nil {
		if errors.Is(err, domain.ErrMirrorTerminal) {
			log.Info("record already finished, skipping task")
			return
		}
		log.Error("failed to update record status to in_progress", "error", redact.Error(err))
		return
	}

	r.observer.RunStarted()
	log.Info("processing task")

	err := task.Execute(ctx)

	if err != nil && r.ctx.Err() != nil {
		log.Warn("task interrupted by shutdown, record left for recovery", "error", redact.Error(err))
		r.observer.RunFinished(domain.MirrorStatusInProgress)
		return
	}

	if err != nil {
		log.Error("task execution failed", "error", redact.Error(err))
		r.settle(ctx, log, task.ID(), domain.MirrorStatusFailed, domain.DefaultFailureMessage)
		r.errHandler(task, err)
		return
	}

	log.Info("task finished")
	r.settle(ctx, log, task.ID(), domain.MirrorStatusCompleted, "")
}

// settle makes sure the record is terminal. A record the task already
// finished keeps its status; status is only applied to records still in
// flight.
func (r *TaskRunner) settle(ctx context.Context, log *slog.Logger, id uuid.UUID, status domain.MirrorStatus, errMsg string) {
	final := status
	rec, err := r.store.Get(ctx, id)
	switch {
	case err != nil:
		log.Error("failed to read record after run", "error", redact.Error(err))
	case rec.Status.IsTerminal():
		final = rec.Status
	default:
		if _, err := r.store.Transition(ctx, id, status, errMsg); err != nil && !errors.Is(err, domain.ErrMirrorTerminal) {
			log.Error("failed to settle record", "status", status, "error", redact.Error(err))
		}
	}
	r.observer.RunFinished(final)
}

// stuckTaskMonitor periodically sweeps records whose runs were lost.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			requeued, failed, err := r.sweep(r.ctx, r.now().Add(-r.config.StuckTaskAge))
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", redact.Error(err))
				continue
			}
			if requeued+failed > 0 {
				r.logger.Info("swept stuck tasks", "requeued", requeued, "failed", failed)
			}
		}
	}
}
