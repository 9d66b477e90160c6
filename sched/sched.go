// Package sched implements the cooperative, per-CPU task runner described
// by spec.md §4.7: a task moves NEW -> READY -> SCHEDULED -> RUNNING -> DONE
// with no other transition allowed, is pinned to exactly one CPU by
// ScheduleTask, and that CPU's RunTasks loop is the only goroutine that ever
// runs it. Grounded on original_source/common/sched.c and
// original_source/include/sched.h.
package sched

import (
	"io"
	"sync/atomic"

	"ktf/kernel"
	"ktf/kfmt"
	ktfsync "ktf/sync"
)

// InvalidCPU marks a task that hasn't been scheduled to a CPU yet, matching
// original's INVALID_CPU sentinel.
const InvalidCPU = ^uint32(0)

// State is one of the five legal task states.
type State uint32

const (
	StateNew State = iota
	StateReady
	StateScheduled
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateReady:
		return "READY"
	case StateScheduled:
		return "SCHEDULED"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Group tags a task for bulk waiting (WaitForTaskGroup), per
// original_source/include/sched.h's task_group_t.
type Group uint32

const (
	GroupUnspecified Group = iota
	GroupTest
)

// Func is a task's entry point. It receives the Task itself (so it can set
// Result or inspect its own Arg/CPU) the way original's task_func_t(arg)
// receives the raw argument — arg is carried separately since Go tasks are
// typed *Task values, not void* payloads.
type Func func(t *Task, arg interface{})

// Task is one schedulable unit of work. original_source page-aligns every
// task struct for easy pointer-arithmetic lookup from assembly and links
// them through an intrusive list_head_t; neither constraint carries over to
// a GC-managed struct, so Task here is an ordinary heap value and the
// registry below is a plain growable slice.
type Task struct {
	ID    uint32
	Group Group
	CPU   uint32
	Name  string
	Func  Func
	Arg   interface{}

	Result uintptr

	state uint32
}

func (t *Task) setState(w io.Writer, s State) {
	kfmt.Fprintf(w, "CPU[%d]: state transition %s -> %s\n", t.CPU, State(atomic.LoadUint32(&t.state)).String(), s.String())
	atomic.StoreUint32(&t.state, uint32(s))
}

func (t *Task) State() State {
	return State(atomic.LoadUint32(&t.state))
}

func (t *Task) waitForState(s State) {
	for t.State() != s {
		cpuRelax()
	}
}

var cpuRelax = func() {}

// SetRelaxFunc installs the architecture-specific pause instruction for
// sched's busy-waits, mirroring sync.SetRelaxFunc. Nothing in this
// repository calls it, so the default no-op relax stays in place.
func SetRelaxFunc(fn func()) {
	if fn != nil {
		cpuRelax = fn
	}
}

var (
	lock      ktfsync.Spinlock
	tasks     []*Task
	nextTID   uint32
	terminate uint32
)

// Init (re)initializes the task registry; it must run once before any other
// function in this package is called.
func Init(w io.Writer) {
	kfmt.Fprintf(w, "sched: initializing tasks\n")
	tasks = tasks[:0]
	nextTID = 0
	atomic.StoreUint32(&terminate, 0)
}

var (
	errDuplicateName = &kernel.Error{Module: "sched", Message: "a task with this name already exists"}
	errBadState      = &kernel.Error{Module: "sched", Message: "task is not in the expected state for this transition"}
	errBadCPU        = &kernel.Error{Module: "sched", Message: "target CPU does not exist"}
)

// ByName returns the task named name, or nil if none exists.
func ByName(name string) *Task {
	for _, t := range tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ByID returns the task with the given id, or nil if none exists.
func ByID(id uint32) *Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ForCPU returns the first task pinned to cpu that has not reached DONE,
// or nil if none is.
func ForCPU(cpu uint32) *Task {
	for _, t := range tasks {
		if t.CPU == cpu && t.State() != StateDone {
			return t
		}
	}
	return nil
}

// NewTask allocates a task in state NEW, fills in its name/entry/arg and
// transitions it to READY, rejecting duplicate names — mirroring
// original's new_task (create_task + prepare_task collapsed into one call,
// since Go has no separate allocation-failure path to recover from).
func NewTask(w io.Writer, name string, fn Func, arg interface{}) (*Task, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()

	if ByName(name) != nil {
		return nil, errDuplicateName
	}

	t := &Task{
		ID:   nextTID,
		CPU:  InvalidCPU,
		Name: name,
		Func: fn,
		Arg:  arg,
	}
	nextTID++

	tasks = append(tasks, t)

	t.setState(w, StateReady)
	return t, nil
}

// ScheduleTask pins task to cpu and transitions it READY -> SCHEDULED. cpu
// must already have been validated against the live CPU count by the
// caller (package smp publishes that count); nrCPUs is passed explicitly so
// this package doesn't need to depend on smp.
func ScheduleTask(w io.Writer, t *Task, cpu uint32, nrCPUs uint32) *kernel.Error {
	if cpu >= nrCPUs {
		return errBadCPU
	}
	if t.State() != StateReady {
		return errBadState
	}

	kfmt.Fprintf(w, "CPU[%d]: scheduling task %s[%d]\n", cpu, t.Name, t.ID)

	t.CPU = cpu
	t.setState(w, StateScheduled)
	return nil
}

func runTask(w io.Writer, t *Task) {
	if t == nil {
		return
	}

	t.waitForState(StateScheduled)

	kfmt.Fprintf(w, "CPU[%d]: running task %s[%d]\n", t.CPU, t.Name, t.ID)

	t.setState(w, StateRunning)
	t.Func(t, t.Arg)
	t.setState(w, StateDone)
}

// RunTasks is the per-CPU main loop: it repeatedly looks up the task
// scheduled onto cpu, blocks until that task is runnable, runs it to
// completion, and repeats until Terminate() is called. original's run_tasks
// has the identical unconditional loop.
func RunTasks(w io.Writer, cpu uint32) {
	for {
		runTask(w, ForCPU(cpu))
		cpuRelax()
		if atomic.LoadUint32(&terminate) != 0 {
			return
		}
	}
}

// WaitForTaskGroup busy-waits until every task in group reaches DONE, or
// until Terminate() is called.
func WaitForTaskGroup(group Group) {
	waitForTasks(func(t *Task) bool { return t.Group == group })
}

// WaitForAllTasks busy-waits until every task, regardless of group, reaches
// DONE, or until Terminate() is called - original's wait_for_all_tasks()
// iterates the whole task list with no group filter at all, rather than
// being an alias for waiting on TASK_GROUP_UNSPECIFIED.
func WaitForAllTasks() {
	waitForTasks(func(t *Task) bool { return true })
}

func waitForTasks(include func(t *Task) bool) {
	for {
		busy := false
		for _, t := range tasks {
			if !include(t) {
				continue
			}
			if t.State() != StateDone {
				busy = true
				t.waitForState(StateDone)
			}
		}
		cpuRelax()
		if !busy || atomic.LoadUint32(&terminate) != 0 {
			return
		}
	}
}

// Terminate sets the global cancellation flag every RunTasks/WaitFor* loop
// checks. There is no forceful abort of a task already RUNNING.
func Terminate() {
	atomic.StoreUint32(&terminate, 1)
}

// Terminated reports whether Terminate has been called.
func Terminated() bool {
	return atomic.LoadUint32(&terminate) != 0
}
