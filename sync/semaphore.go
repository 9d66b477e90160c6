package sync

import "sync/atomic"

// MaxSemaphoreValue mirrors the original's MAX_SEMAPHORE_VALUE
// (UINT32_MAX / 2). Post and PostUnits do not check the count against it.
const MaxSemaphoreValue = int32(^uint32(0) >> 1)

// Semaphore is a simple counting semaphore backed by an atomic int32,
// matching original_source/include/semaphore.h. Tasks have no other
// blocking primitive (spec.md §4.7), so all inter-task ordering goes
// through one of these.
type Semaphore struct {
	v int32
}

// NewSemaphore returns a semaphore initialized to value.
func NewSemaphore(value int32) *Semaphore {
	return &Semaphore{v: value}
}

// Value returns the current semaphore count.
func (s *Semaphore) Value() int32 {
	return atomic.LoadInt32(&s.v)
}

// TryWait attempts to decrement the semaphore by one unit without blocking.
// It returns true if the decrement succeeded.
func (s *Semaphore) TryWait() bool {
	return s.TryWaitUnits(1)
}

// Wait busy-waits until it can decrement the semaphore by one unit.
func (s *Semaphore) Wait() {
	s.WaitUnits(1)
}

// Post increments the semaphore by one unit.
func (s *Semaphore) Post() {
	s.PostUnits(1)
}

// TryWaitUnits attempts to decrement the semaphore by units without
// blocking, refusing if doing so would take the count negative.
func (s *Semaphore) TryWaitUnits(units int32) bool {
	for {
		cur := atomic.LoadInt32(&s.v)
		if cur < units {
			return false
		}
		if atomic.CompareAndSwapInt32(&s.v, cur, cur-units) {
			return true
		}
	}
}

// WaitUnits busy-waits until it can decrement the semaphore by units.
func (s *Semaphore) WaitUnits(units int32) {
	for !s.TryWaitUnits(units) {
		cpuRelax()
	}
}

// PostUnits increments the semaphore by units.
func (s *Semaphore) PostUnits(units int32) {
	atomic.AddInt32(&s.v, units)
}
