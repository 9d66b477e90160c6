package sched

import (
	"bytes"
	"testing"
)

func reset() {
	Init(&bytes.Buffer{})
}

func TestNewTaskStartsReadyAndRejectsDuplicateNames(t *testing.T) {
	reset()
	var w bytes.Buffer

	task, err := NewTask(&w, "probe-cpu", func(t *Task, arg interface{}) {}, nil)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if task.State() != StateReady {
		t.Errorf("state = %s, want READY", task.State())
	}
	if task.CPU != InvalidCPU {
		t.Errorf("CPU = %d, want InvalidCPU", task.CPU)
	}

	if _, err := NewTask(&w, "probe-cpu", func(t *Task, arg interface{}) {}, nil); err == nil {
		t.Fatal("expected duplicate-name error, got nil")
	}
}

func TestScheduleTaskRejectsOutOfRangeCPU(t *testing.T) {
	reset()
	var w bytes.Buffer

	task, _ := NewTask(&w, "t1", func(t *Task, arg interface{}) {}, nil)
	if err := ScheduleTask(&w, task, 4, 2); err == nil {
		t.Fatal("expected out-of-range CPU error, got nil")
	}
	if err := ScheduleTask(&w, task, 1, 2); err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	if task.State() != StateScheduled {
		t.Errorf("state = %s, want SCHEDULED", task.State())
	}
	if task.CPU != 1 {
		t.Errorf("CPU = %d, want 1", task.CPU)
	}
}

func TestScheduleTaskRejectsWrongState(t *testing.T) {
	reset()
	var w bytes.Buffer

	task, _ := NewTask(&w, "t1", func(t *Task, arg interface{}) {}, nil)
	if err := ScheduleTask(&w, task, 0, 1); err != nil {
		t.Fatalf("first ScheduleTask: %v", err)
	}
	if err := ScheduleTask(&w, task, 0, 1); err == nil {
		t.Fatal("expected bad-state error scheduling an already-SCHEDULED task")
	}
}

func TestRunTasksRunsScheduledTaskThenTerminates(t *testing.T) {
	reset()
	var w bytes.Buffer

	ran := false
	task, _ := NewTask(&w, "t1", func(t *Task, arg interface{}) {
		ran = true
		t.Result = 42
	}, nil)
	if err := ScheduleTask(&w, task, 0, 1); err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}

	Terminate()
	RunTasks(&w, 0)

	if !ran {
		t.Fatal("task function never ran")
	}
	if task.State() != StateDone {
		t.Errorf("state = %s, want DONE", task.State())
	}
	if task.Result != 42 {
		t.Errorf("Result = %d, want 42", task.Result)
	}
}

func TestWaitForAllTasksReturnsWhenEveryTaskIsDone(t *testing.T) {
	reset()
	var w bytes.Buffer

	task, _ := NewTask(&w, "t1", func(t *Task, arg interface{}) {}, nil)
	ScheduleTask(&w, task, 0, 1)
	task.setState(&w, StateRunning)
	task.setState(&w, StateDone)

	WaitForAllTasks()
}

func TestByIDAndByNameAndForCPU(t *testing.T) {
	reset()
	var w bytes.Buffer

	task, _ := NewTask(&w, "probe", func(t *Task, arg interface{}) {}, nil)
	ScheduleTask(&w, task, 3, 4)

	if got := ByName("probe"); got != task {
		t.Errorf("ByName returned %v, want %v", got, task)
	}
	if got := ByID(task.ID); got != task {
		t.Errorf("ByID returned %v, want %v", got, task)
	}
	if got := ForCPU(3); got != task {
		t.Errorf("ForCPU(3) returned %v, want %v", got, task)
	}
	if got := ForCPU(0); got != nil {
		t.Errorf("ForCPU(0) = %v, want nil", got)
	}
}
