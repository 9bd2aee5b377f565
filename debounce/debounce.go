// Package debounce runs recomputations triggered by bursts of input events
// without piling them up.
//
// A Mailbox has a single slot.  Submitting while nothing runs starts the job
// at once on a worker goroutine.  Submitting while a job runs replaces
// whatever waits in the slot, so when the running job returns, at most one
// more job runs: the most recent one.  Then the worker goes idle.
package debounce

import (
	"log"
	"sync"
)

// Mailbox is a single-slot job queue drained by at most one worker.
// The zero value is ready to use.
type Mailbox struct {
	// Name prefixes log lines about recovered panics
	Name string

	mu      sync.Mutex
	running bool
	pending func()
	dropped uint64
	ran     uint64
	idle    chan struct{}
}

// Submit schedules job.  It never blocks on the job.
func (m *Mailbox) Submit(job func()) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		if m.pending != nil {
			m.dropped++
		}
		m.pending = job
		return
	}
	m.running = true
	m.idle = make(chan struct{})
	go m.work(job)
}

func (m *Mailbox) work(job func()) {
	for {
		m.safely(job)
		m.mu.Lock()
		m.ran++
		job, m.pending = m.pending, nil
		if job == nil {
			m.running = false
			close(m.idle)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
	}
}

func (m *Mailbox) safely(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: recovered from panic in job: %v", m.name(), r)
		}
	}()
	job()
}

func (m *Mailbox) name() string {
	if m.Name == "" {
		return "debounce"
	}
	return m.Name
}

// Wait blocks until the worker is idle.  It returns at once if nothing runs.
func (m *Mailbox) Wait() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	ch := m.idle
	m.mu.Unlock()
	<-ch
}

// Busy reports whether a job is running.
func (m *Mailbox) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stats returns the number of jobs run and the number overwritten before
// they could run.
func (m *Mailbox) Stats() (ran, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ran, m.dropped
}

// Func debounces calls to a function of one argument; only the arguments of
// the latest call made during a run are used for the next one.
type Func[T any] struct {
	box Mailbox
	fn  func(T)
}

// New wraps fn.
func New[T any](name string, fn func(T)) *Func[T] {
	return &Func[T]{box: Mailbox{Name: name}, fn: fn}
}

// Call submits fn(arg).
func (f *Func[T]) Call(arg T) {
	f.box.Submit(func() { f.fn(arg) })
}

// Wait blocks until no call is running or pending.
func (f *Func[T]) Wait() {
	f.box.Wait()
}

// Stats is Mailbox.Stats.
func (f *Func[T]) Stats() (ran, dropped uint64) {
	return f.box.Stats()
}
