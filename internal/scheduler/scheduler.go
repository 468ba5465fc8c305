package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/store"
)

// Handler executes one picked task.
type Handler func(ctx context.Context, t models.Task) error

// ExecutionError carries the exception columns of a failed execution.
type ExecutionError struct {
	Class      string
	Message    string
	StackTrace string
}

func (e *ExecutionError) Error() string {
	return e.Class + ": " + e.Message
}

// Scheduler picks due tasks and runs them on a bounded worker pool.
type Scheduler struct {
	store   *store.Store
	config  *Config
	handler Handler
	log     logrus.FieldLogger
	now     func() time.Time
	name    string

	// Worker pool state
	mu            sync.Mutex
	activeWorkers int
	executed      int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler. A nil handler sleeps for cfg.Duration and
// fails at cfg.FailureRate.
func New(s *store.Store, cfg *Config, handler Handler) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	sch := &Scheduler{
		store:   s,
		config:  cfg,
		handler: handler,
		log:     logrus.WithField("component", "scheduler"),
		now:     time.Now,
		name:    "taskboard-" + uuid.New().String()[:8],
		ctx:     ctx,
		cancel:  cancel,
	}
	if sch.handler == nil {
		sch.handler = simulated(cfg)
	}
	return sch
}

// SetLogger replaces the scheduler logger.
func (sch *Scheduler) SetLogger(l logrus.FieldLogger) {
	sch.log = l
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.log.WithField("workers", sch.config.Workers).Info("scheduler started")
}

// Stop gracefully stops the scheduler and waits for running executions.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.log.Info("scheduler stopped")
}

func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			for sch.pollAndDispatch() {
			}
		}
	}
}

// pollAndDispatch picks one due task if a worker is free. It reports
// whether a task was dispatched.
func (sch *Scheduler) pollAndDispatch() bool {
	sch.mu.Lock()
	if sch.activeWorkers >= sch.config.Workers {
		sch.mu.Unlock()
		return false
	}
	sch.mu.Unlock()

	task, err := sch.store.PickDue(sch.ctx, sch.name, sch.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			sch.log.WithError(err).Warn("error picking task")
		}
		return false
	}
	if task == nil {
		return false
	}

	sch.mu.Lock()
	sch.activeWorkers++
	sch.mu.Unlock()

	sch.wg.Add(1)
	go sch.runWorker(*task)
	return true
}

func (sch *Scheduler) runWorker(task models.Task) {
	defer sch.wg.Done()
	defer func() {
		sch.mu.Lock()
		sch.activeWorkers--
		sch.executed++
		sch.mu.Unlock()
	}()

	log := sch.log.WithFields(logrus.Fields{"task_name": task.TaskName, "task_instance": task.TaskInstance})
	started := sch.now()
	err := sch.handler(sch.ctx, task)
	finished := sch.now()

	entry := models.LogEntry{
		TaskName:     task.TaskName,
		TaskInstance: task.TaskInstance,
		TaskData:     task.TaskData,
		PickedBy:     sch.name,
		TimeStarted:  started,
		TimeFinished: finished,
		Succeeded:    err == nil,
		DurationMs:   finished.Sub(started).Milliseconds(),
	}
	if err != nil {
		class, msg, trace := describe(err)
		entry.ExceptionClass = &class
		entry.ExceptionMessage = &msg
		entry.ExceptionStackTrace = &trace
		log.WithError(err).Info("execution failed")
	} else {
		log.Debug("execution succeeded")
	}

	// Recording must outlive Stop so picked rows are released.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sch.store.FinishExecution(ctx, entry, finished.Add(sch.config.Interval)); err != nil {
		log.WithError(err).Warn("error recording execution")
	}
}

// Stats is a point-in-time view of the worker pool.
type Stats struct {
	ActiveWorkers int `json:"active_workers"`
	Workers       int `json:"workers"`
	Executed      int `json:"executed"`
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return Stats{
		ActiveWorkers: sch.activeWorkers,
		Workers:       sch.config.Workers,
		Executed:      sch.executed,
	}
}

func describe(err error) (class, msg, trace string) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Class, ee.Message, ee.StackTrace
	}
	return fmt.Sprintf("%T", err), err.Error(), err.Error()
}

func simulated(cfg *Config) Handler {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(ctx context.Context, t models.Task) error {
		select {
		case <-ctx.Done():
			return &ExecutionError{Class: "InterruptedException", Message: "scheduler stopped"}
		case <-time.After(cfg.Duration):
		}

		mu.Lock()
		fail := rng.Float64() < cfg.FailureRate
		mu.Unlock()
		if !fail {
			return nil
		}
		return &ExecutionError{
			Class:   "java.lang.RuntimeException",
			Message: fmt.Sprintf("simulated failure of %s", t.ID()),
			StackTrace: fmt.Sprintf("java.lang.RuntimeException: simulated failure of %s\n"+
				"\tat com.example.tasks.%s.execute(Task.java:42)\n"+
				"\tat com.github.kagkarlsson.scheduler.ExecutePicked.run(ExecutePicked.java:88)", t.ID(), t.TaskName),
		}
	}
}
