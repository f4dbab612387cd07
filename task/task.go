// Package task provides the deferred unit of work shared by render and
// display tasks.
//
// A Task moves through Created, Setup, Pushed, Running, Finalised and Done
// exactly once and in that order. Before it is pushed it collects the
// allocations it will access; the task holds a reference on each until it
// is done. Tasks may notify later tasks, forming a chain in which a task
// does not start running before every task it depends on is done.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	fbcore "github.com/deniskropp/DirectFB-sub015"
	"github.com/deniskropp/DirectFB-sub015/pool"
)

// Task errors.
var (
	// ErrFrozen is returned when the access list is changed after Push.
	ErrFrozen = errors.New("task: access list is fixed once pushed")

	// ErrAborted is the result of a task finished without running.
	ErrAborted = errors.New("task: aborted")
)

// Phase is a lifecycle phase.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseSetup
	PhasePushed
	PhaseRunning
	PhaseFinalised
	PhaseDone
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "Created"
	case PhaseSetup:
		return "Setup"
	case PhasePushed:
		return "Pushed"
	case PhaseRunning:
		return "Running"
	case PhaseFinalised:
		return "Finalised"
	case PhaseDone:
		return "Done"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// Runner executes the work of a task.
type Runner interface {
	Run(ctx context.Context, t *Task) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t *Task) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, t *Task) error { return f(ctx, t) }

// Optional hooks a Runner may implement.
type (
	Setupper interface {
		Setup(t *Task) error
	}
	Pusher interface {
		Push(t *Task) error
	}
	Finaliser interface {
		Finalise(t *Task)
	}
)

// Access is one entry of the access list.
type Access struct {
	Handle *pool.Handle
	Access pool.Access
}

// Task is a deferred unit of work.
type Task struct {
	id     string
	kind   string
	runner Runner

	mu       sync.Mutex
	phase    Phase
	accesses []Access
	deps     []*Task
	notify   []*Task
	err      error

	done chan struct{}
}

// New creates a task of the given kind, e.g. "render" or "display".
func New(kind string, r Runner) *Task {
	return &Task{
		id:     uuid.New().String(),
		kind:   kind,
		runner: r,
		done:   make(chan struct{}),
	}
}

// ID returns the trace id of the task.
func (t *Task) ID() string { return t.id }

// Kind returns the task kind.
func (t *Task) Kind() string { return t.kind }

// Runner returns the runner the task was created with.
func (t *Task) Runner() Runner { return t.runner }

// Phase returns the current phase.
func (t *Task) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// LogAttr returns the attribute identifying t in logs.
func (t *Task) LogAttr() slog.Attr {
	return slog.String("task", t.id)
}

// advance moves to next. Moving backwards or skipping past a phase that
// must be visited is a programming error.
func (t *Task) advance(from, next Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != from {
		panic(fmt.Sprintf("BUG: task %s: %s -> %s from phase %s", t.id, from, next, t.phase))
	}
	t.phase = next
}

// AddAccess adds an allocation the task will access. The task takes its
// own reference, released when the task is done.
func (t *Task) AddAccess(h *pool.Handle, access pool.Access) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase >= PhasePushed {
		return ErrFrozen
	}
	t.accesses = append(t.accesses, Access{Handle: h.Clone(), Access: access})
	return nil
}

// Accesses returns the access list.
func (t *Task) Accesses() []Access {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Access(nil), t.accesses...)
}

// AddNotify makes next wait for t. It must be called before next runs.
// Linking to a task that is already done has no effect.
func (t *Task) AddNotify(next *Task) {
	if next == t {
		panic("BUG: task: notify cycle")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == PhaseDone {
		return
	}
	t.notify = append(t.notify, next)

	next.mu.Lock()
	if next.phase >= PhaseRunning {
		next.mu.Unlock()
		panic(fmt.Sprintf("BUG: task %s: dependency added while %s", next.id, next.phase))
	}
	next.deps = append(next.deps, t)
	next.mu.Unlock()
}

// Setup runs the optional setup hook.
func (t *Task) Setup() error {
	t.advance(PhaseCreated, PhaseSetup)
	if s, ok := t.runner.(Setupper); ok {
		if err := s.Setup(t); err != nil {
			t.finish(err)
			return err
		}
	}
	return nil
}

// Push freezes the access list and runs the optional push hook, which
// normally queues the task for execution.
func (t *Task) Push() error {
	t.advance(PhaseSetup, PhasePushed)
	if p, ok := t.runner.(Pusher); ok {
		if err := p.Push(t); err != nil {
			t.finish(err)
			return err
		}
	}
	return nil
}

// Run waits for every dependency, runs the task and finalises it.
// Cancelling ctx while waiting finishes the task with the context error.
func (t *Task) Run(ctx context.Context) error {
	t.mu.Lock()
	deps := t.deps
	t.mu.Unlock()
	for _, d := range deps {
		select {
		case <-d.done:
		case <-ctx.Done():
			t.advance(PhasePushed, PhaseRunning)
			t.finish(ctx.Err())
			return ctx.Err()
		}
	}

	t.advance(PhasePushed, PhaseRunning)
	err := t.runner.Run(ctx, t)
	if err != nil {
		fbcore.Logger().Warn("task failed", t.LogAttr(), "kind", t.kind, "err", err)
	}
	t.finish(err)
	return err
}

// Abort finishes a task that will never run, releasing its references.
// Aborting a finished task has no effect. A pushed task belongs to its
// queue and must not be aborted.
func (t *Task) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	t.mu.Lock()
	p := t.phase
	t.mu.Unlock()
	switch {
	case p >= PhaseFinalised:
		return
	case p >= PhasePushed:
		panic(fmt.Sprintf("BUG: task %s aborted while %s", t.id, p))
	}
	t.finish(err)
}

// finish finalises, releases references and notifies dependents.
func (t *Task) finish(err error) {
	t.mu.Lock()
	if t.phase >= PhaseFinalised {
		t.mu.Unlock()
		panic(fmt.Sprintf("BUG: task %s finished twice", t.id))
	}
	t.phase = PhaseFinalised
	t.err = err
	t.mu.Unlock()

	if f, ok := t.runner.(Finaliser); ok {
		f.Finalise(t)
	}

	t.mu.Lock()
	accesses := t.accesses
	t.accesses = nil
	t.notify = nil
	t.deps = nil
	t.phase = PhaseDone
	t.mu.Unlock()

	for _, a := range accesses {
		a.Handle.Release()
	}
	close(t.done)
}

// Done is closed when the task reached PhaseDone.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the result of a done task.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task is done and returns its result.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
