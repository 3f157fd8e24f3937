// Package orchestrator owns the job table: it arms triggers, runs every
// firing in its own goroutine behind a per-job reentrancy guard and keeps
// run history for status reporting.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"classguard/pkg/logger"

	"github.com/robfig/cron/v3"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobRunning    = errors.New("job is already running")
	ErrLockHeld      = errors.New("job is running on another replica")
	ErrShuttingDown  = errors.New("orchestrator is shutting down")
	errInvalidHandle = errors.New("job handler cannot be nil")
)

// Handler is the work a job performs on each firing.
type Handler func(ctx context.Context) error

// Locker guards a job across processes. release is non-nil only when
// acquired is true.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

type JobStatus struct {
	Name           string    `json:"name"`
	Trigger        string    `json:"trigger"`
	Running        bool      `json:"running"`
	Runs           int64     `json:"runs"`
	Skipped        int64     `json:"skipped"`
	LastStartedAt  time.Time `json:"last_started_at,omitzero"`
	LastFinishedAt time.Time `json:"last_finished_at,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
	NextRunAt      time.Time `json:"next_run_at,omitzero"`
}

type job struct {
	name    string
	trigger Trigger
	handler Handler
	entries []cron.EntryID

	mu             sync.Mutex
	runs           int64
	skipped        int64
	lastStartedAt  time.Time
	lastFinishedAt time.Time
	lastError      string
}

type Orchestrator struct {
	cron    *cron.Cron
	mu      sync.Mutex
	jobs    map[string]*job
	locker  Locker
	lockTTL time.Duration
	log     *logger.Logger

	// running is keyed by job name so a stopped and restarted job still
	// sees a run of its previous registration that has not returned.
	guardMu sync.Mutex
	running map[string]bool

	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	stopped  bool
}

type Option func(*Orchestrator)

// WithLocker enables the cross-replica run lock.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.locker = l
		o.lockTTL = ttl
	}
}

func New(log *logger.Logger, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		jobs:    make(map[string]*job),
		running: make(map[string]bool),
		log:     log.With("component", "orchestrator"),
		baseCtx: ctx,
		cancel:  cancel,
		lockTTL: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: o.log}),
		cron.WithChain(cron.Recover(cronLogger{log: o.log})),
	)
	o.cron.Start()
	return o
}

// Start registers and arms a job. Starting a name that is already
// registered logs a warning and leaves the existing job untouched.
func (o *Orchestrator) Start(name string, trigger Trigger, handler Handler) error {
	if handler == nil {
		return errInvalidHandle
	}
	schedules, err := trigger.schedules()
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return ErrShuttingDown
	}
	if _, exists := o.jobs[name]; exists {
		o.log.Warn("Job already running, ignoring start", "job", name)
		return nil
	}

	j := &job{name: name, trigger: trigger, handler: handler}
	for _, s := range schedules {
		id := o.cron.Schedule(s, cron.FuncJob(func() { o.fire(j, "schedule") }))
		j.entries = append(j.entries, id)
	}
	o.jobs[name] = j

	if trigger.firesImmediately() {
		o.inflight.Add(1)
		go func() {
			defer o.inflight.Done()
			o.fire(j, "startup")
		}()
	}

	o.log.Info("Job started", "job", name, "trigger", trigger.String())
	return nil
}

// Stop disarms a job. A firing already in progress runs to completion.
// Stopping an unknown job is a no-op.
func (o *Orchestrator) Stop(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked(name)
}

func (o *Orchestrator) stopLocked(name string) {
	j, ok := o.jobs[name]
	if !ok {
		return
	}
	for _, id := range j.entries {
		o.cron.Remove(id)
	}
	delete(o.jobs, name)
	o.log.Info("Job stopped", "job", name)
}

func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name := range o.jobs {
		o.stopLocked(name)
	}
}

// Status returns the names of registered jobs, sorted.
func (o *Orchestrator) Status() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) Jobs() []JobStatus {
	o.mu.Lock()
	jobs := make([]*job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	o.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		var next time.Time
		for _, id := range j.entries {
			if n := o.cron.Entry(id).Next; !n.IsZero() && (next.IsZero() || n.Before(next)) {
				next = n
			}
		}

		j.mu.Lock()
		out = append(out, JobStatus{
			Name:           j.name,
			Trigger:        j.trigger.String(),
			Running:        o.isRunning(j.name),
			Runs:           j.runs,
			Skipped:        j.skipped,
			LastStartedAt:  j.lastStartedAt,
			LastFinishedAt: j.lastFinishedAt,
			LastError:      j.lastError,
			NextRunAt:      next,
		})
		j.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// RunNow runs a registered job synchronously through the same guard and
// lock as scheduled firings.
func (o *Orchestrator) RunNow(ctx context.Context, name string) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	j, ok := o.jobs[name]
	if ok {
		o.inflight.Add(1)
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	defer o.inflight.Done()

	return o.execute(ctx, j, "manual")
}

// Shutdown disarms every job, cancels in-flight runs and waits for them
// to return or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	o.StopAll()
	o.cancel()
	cronDone := o.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.log.Info("Orchestrator stopped")
		return nil
	case <-ctx.Done():
		o.log.Warn("Orchestrator shutdown timed out with jobs still running")
		return ctx.Err()
	}
}

func (o *Orchestrator) fire(j *job, source string) {
	if err := o.execute(o.baseCtx, j, source); err != nil {
		switch {
		case errors.Is(err, ErrJobRunning), errors.Is(err, ErrLockHeld):
		default:
			o.log.Error("Job run failed", "job", j.name, "trigger", source, "error", err)
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, j *job, source string) (err error) {
	log := o.log.ForJob(j.name).With("trigger", source)

	if !o.markRunning(j.name) {
		j.mu.Lock()
		j.skipped++
		j.mu.Unlock()
		log.Warn("Previous run still in progress, skipping this firing")
		return ErrJobRunning
	}
	defer o.clearRunning(j.name)

	if o.locker != nil {
		release, acquired, lockErr := o.locker.Acquire(ctx, j.name, o.lockTTL)
		switch {
		case lockErr != nil:
			log.Warn("Run lock unavailable, continuing with local guard only", "error", lockErr)
		case !acquired:
			j.mu.Lock()
			j.skipped++
			j.mu.Unlock()
			log.Info("Job is running on another replica, skipping this firing")
			return ErrLockHeld
		default:
			defer release()
		}
	}

	started := time.Now()
	j.mu.Lock()
	j.lastStartedAt = started
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}

		j.mu.Lock()
		j.runs++
		j.lastFinishedAt = time.Now()
		j.lastError = ""
		if err != nil {
			j.lastError = err.Error()
		}
		j.mu.Unlock()

		log.Debug("Job run finished", "duration_ms", time.Since(started).Milliseconds(), "error", err)
	}()

	return j.handler(ctx)
}

func (o *Orchestrator) markRunning(name string) bool {
	o.guardMu.Lock()
	defer o.guardMu.Unlock()
	if o.running[name] {
		return false
	}
	o.running[name] = true
	return true
}

func (o *Orchestrator) clearRunning(name string) {
	o.guardMu.Lock()
	delete(o.running, name)
	o.guardMu.Unlock()
}

func (o *Orchestrator) isRunning(name string) bool {
	o.guardMu.Lock()
	defer o.guardMu.Unlock()
	return o.running[name]
}

// cronLogger routes robfig/cron's internal logging into the service logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
