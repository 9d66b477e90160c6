package kmain

import (
	"bytes"
	"testing"

	"ktf/mm/vmm"
	"ktf/regions"
	"ktf/sched"
)

func TestWindowBaseOfMatchesVmmWindows(t *testing.T) {
	for _, tc := range []struct {
		win  vmm.Window
		base uintptr
	}{
		{vmm.WindowIdentity, 0x0},
		{vmm.WindowUser, 0x0000000000400000},
		{vmm.WindowKernel, 0xffffffff80000000},
	} {
		got := windowBaseOf(regions.Region{Window: tc.win})
		if got != tc.base {
			t.Errorf("windowBaseOf(%v) = %#x, want %#x", tc.win, got, tc.base)
		}
	}
}

func TestRegionPhysStartEndSubtractWindowBase(t *testing.T) {
	const base = 0xffffffff80000000
	r := regions.Region{Window: vmm.WindowKernel, Start: base + 0x1000, End: base + 0x3000}

	if got := regionPhysStart(r); got != 0x1000 {
		t.Errorf("regionPhysStart = %#x, want 0x1000", got)
	}
	if got := regionPhysEnd(r); got != 0x3000 {
		t.Errorf("regionPhysEnd = %#x, want 0x3000", got)
	}
}

func TestReservedFnMatchesOnlyWithinTableRanges(t *testing.T) {
	prevTable := regions.Table
	defer func() { regions.Table = prevTable }()

	const base = 0xffffffff80000000
	regions.Table = []regions.Region{
		{Name: ".text", Window: vmm.WindowKernel, Start: base + 0x1000, End: base + 0x3000},
	}

	if !reservedFn(0x1500) {
		t.Error("reservedFn should report a physical address inside the region as reserved")
	}
	if reservedFn(0x5000) {
		t.Error("reservedFn should not report an address outside every region as reserved")
	}
}

func TestSplitCommaList(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{"a,,b", []string{"a", "b"}},
		{",a,", []string{"a"}},
	} {
		got := splitCommaList(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("splitCommaList(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("splitCommaList(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestScheduleRequestedTestsSkipsWithoutLookup(t *testing.T) {
	sched.Init(&bytes.Buffer{})
	prevLookup := TestLookup
	TestLookup = nil
	defer func() { TestLookup = prevLookup }()

	var buf bytes.Buffer
	scheduleRequestedTests(&buf, "selftest", 1)

	if buf.Len() == 0 {
		t.Error("scheduleRequestedTests should log when no registry is installed")
	}
	if sched.ByName("selftest") != nil {
		t.Error("no task should have been created without a registry")
	}
}

func TestScheduleRequestedTestsCreatesAndSchedulesKnownTests(t *testing.T) {
	sched.Init(&bytes.Buffer{})
	prevLookup := TestLookup
	defer func() { TestLookup = prevLookup }()

	ran := false
	TestLookup = func(name string) sched.Func {
		if name != "selftest" {
			return nil
		}
		return func(t *sched.Task, arg interface{}) { ran = true }
	}

	var buf bytes.Buffer
	scheduleRequestedTests(&buf, "selftest,unknown", 2)

	task := sched.ByName("selftest")
	if task == nil {
		t.Fatal("expected a task named selftest to be created")
	}
	if task.State() != sched.StateScheduled {
		t.Errorf("task state = %v, want Scheduled", task.State())
	}
	task.Func(task, task.Arg)
	if !ran {
		t.Error("scheduled task's Func should have run")
	}

	if sched.ByName("unknown") != nil {
		t.Error("unresolved test name should not create a task")
	}
}

func TestScheduleRequestedTestsNoopOnEmptyOptionOrZeroCPUs(t *testing.T) {
	sched.Init(&bytes.Buffer{})
	prevLookup := TestLookup
	TestLookup = func(name string) sched.Func {
		return func(task *sched.Task, arg interface{}) {}
	}
	defer func() { TestLookup = prevLookup }()

	var buf bytes.Buffer
	scheduleRequestedTests(&buf, "", 4)
	scheduleRequestedTests(&buf, "selftest", 0)

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
