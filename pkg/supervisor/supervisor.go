// Package supervisor runs named background jobs that are restarted whenever
// they return or panic, until they are stopped explicitly.
//
// Typical usage:
//
//	sv := supervisor.NewManager(func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	err := sv.Start("presence", func(ctx context.Context) error {
//	    // do work until ctx is cancelled
//	    return nil
//	})
//
//	// later...
//	_ = sv.Stop("presence")
//
// A job's runner is one "life": when it returns (with or without an error)
// while its context is still alive, the manager waits a backoff delay and
// calls it again. Only Stop, StopAll or cancellation of the parent context
// end a job.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Runner is one life of a supervised job.
type Runner func(ctx context.Context) error

// Job represents a supervised unit of work.
type Job struct {
	Name      string
	StartedAt time.Time

	restarts atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// Restarts returns how many times the runner was started again.
func (j *Job) Restarts() int64 { return j.restarts.Load() }

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:presence
//	error:presence:connection lost
//	restart:presence:1s
//	stopped:presence
type StatusReporter func(string)

// PanicError is returned to the reporter when a runner panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic: %v", p.Value) }

// Manager orchestrates starting, restarting and stopping jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	Reporter StatusReporter

	// MinDelay is the first restart delay; it doubles up to MaxDelay while a
	// job keeps failing faster than StableAfter.
	MinDelay    time.Duration
	MaxDelay    time.Duration
	StableAfter time.Duration
}

// NewManager creates a new Manager. The reporter callback may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:        make(map[string]*Job),
		Reporter:    reporter,
		MinDelay:    time.Second,
		MaxDelay:    30 * time.Second,
		StableAfter: time.Minute,
	}
}

// Start supervises runner under name in a new goroutine. The job lives until
// Stop, StopAll or cancellation of parent.
func (m *Manager) Start(parent context.Context, name string, runner Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job '%s' is already running", name)
	}

	ctx, cancel := context.WithCancel(parent)
	job := &Job{Name: name, StartedAt: time.Now(), cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = job

	go m.supervise(ctx, job, runner)
	return nil
}

func (m *Manager) supervise(ctx context.Context, job *Job, runner Runner) {
	defer func() {
		m.mu.Lock()
		if m.jobs[job.Name] == job {
			delete(m.jobs, job.Name)
		}
		m.mu.Unlock()
		m.report("stopped:" + job.Name)
		close(job.done)
	}()

	delay := m.MinDelay
	for {
		m.report("running:" + job.Name)
		began := time.Now()
		err := safeRun(ctx, runner)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			m.report("error:" + job.Name + ":" + err.Error())
		} else {
			m.report("exited:" + job.Name)
		}

		if time.Since(began) >= m.StableAfter {
			delay = m.MinDelay
		}
		m.report(fmt.Sprintf("restart:%s:%v", job.Name, delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		job.restarts.Add(1)
		delay = min(delay*2, m.MaxDelay)
	}
}

// safeRun turns a panic inside runner into a *PanicError.
func safeRun(ctx context.Context, runner Runner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return runner(ctx)
}

// Stop cancels a job by name and waits for its goroutine to exit.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}

	job.cancel()
	<-job.done
	return nil
}

// StopAll stops every job and waits for all of them.
func (m *Manager) StopAll() {
	for _, name := range m.List() {
		_ = m.Stop(name)
	}
}

// Get returns the job registered under name.
func (m *Manager) Get(name string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[name]
	return job, ok
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs.
// Example:
//
//	"Running jobs: presence (restarts: 2)"
//
// If none are running: "No jobs are running."
func (m *Manager) Status() string {
	names := m.List()
	if len(names) == 0 {
		return "No jobs are running."
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if job, ok := m.Get(name); ok {
			parts = append(parts, fmt.Sprintf("%s (restarts: %d)", name, job.Restarts()))
		}
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(parts, ", "))
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
