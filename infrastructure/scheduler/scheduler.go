package scheduler

import (
	"sync"
	"time"

	"github.com/google/btree"
)

const taskQueueDegree = 2

// task is a single queued unit of work, ordered by deadline. The sequence
// number breaks ties so that tasks scheduled for the same instant run in
// insertion order.
type task struct {
	deadline time.Time
	seq      uint64
	f        func()
}

func (t *task) Less(than btree.Item) bool {
	other := than.(*task)
	if t.deadline.Equal(other.deadline) {
		return t.seq < other.seq
	}
	return t.deadline.Before(other.deadline)
}

// Scheduler runs functions at or after their requested deadlines. Any number
// of goroutines may run Service concurrently to drain the queue; tasks
// scheduled for the same instant are executed in the order they were
// scheduled, though with more than one service goroutine they may overlap.
type Scheduler struct {
	mtx              sync.Mutex
	taskQueue        *btree.BTree
	wake             chan struct{}
	nextSeq          uint64
	servicingThreads int
	stopRequested    bool
	stopWhenEmpty    bool
}

// New returns a Scheduler with an empty task queue. Service must be started
// separately, usually on one or more dedicated goroutines.
func New() *Scheduler {
	return &Scheduler{
		taskQueue: btree.New(taskQueueDegree),
		wake:      make(chan struct{}),
	}
}

// broadcast wakes every goroutine currently blocked in wait. Callers must
// hold mtx.
func (s *Scheduler) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// wait blocks until broadcast is called or, when timeout is non-negative,
// until the timeout elapses. Callers must hold mtx; it is released while
// blocked and reacquired before returning.
func (s *Scheduler) wait(timeout time.Duration) {
	wake := s.wake
	s.mtx.Unlock()
	defer s.mtx.Lock()

	if timeout < 0 {
		<-wake
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-wake:
	case <-timer.C:
	}
}

// Schedule queues f to run at or after the given deadline.
func (s *Scheduler) Schedule(f func(), deadline time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.taskQueue.ReplaceOrInsert(&task{
		deadline: deadline,
		seq:      s.nextSeq,
		f:        f,
	})
	s.nextSeq++
	s.broadcast()
}

// ScheduleFromNow queues f to run once the given duration has elapsed.
func (s *Scheduler) ScheduleFromNow(f func(), delta time.Duration) {
	s.Schedule(f, time.Now().Add(delta))
}

// ScheduleEvery queues f to run every delta, starting delta from now, until
// the scheduler is stopped. The next run is queued only after the previous
// one returned, so a slow f delays subsequent runs instead of piling up.
func (s *Scheduler) ScheduleEvery(f func(), delta time.Duration) {
	s.ScheduleFromNow(func() {
		s.repeat(f, delta)
	}, delta)
}

func (s *Scheduler) repeat(f func(), delta time.Duration) {
	f()
	s.ScheduleFromNow(func() {
		s.repeat(f, delta)
	}, delta)
}

// Service runs queued tasks as their deadlines come due and blocks until the
// scheduler is stopped. It may be called from multiple goroutines to service
// the queue concurrently.
func (s *Scheduler) Service() {
	s.mtx.Lock()
	s.servicingThreads++

	for !s.stopRequested && !(s.stopWhenEmpty && s.taskQueue.Len() == 0) {
		if s.taskQueue.Len() == 0 {
			s.wait(-1)
			continue
		}

		next := s.taskQueue.Min().(*task)
		now := time.Now()
		if next.deadline.After(now) {
			// Sleep until the deadline, a new task or a stop request.
			// The head may have changed by the time we wake up, so
			// re-evaluate from scratch.
			s.wait(next.deadline.Sub(now))
			continue
		}

		s.taskQueue.DeleteMin()

		// Run the task without the lock held so other service
		// goroutines can keep draining the queue meanwhile.
		s.mtx.Unlock()
		s.runTask(next.f)
		s.mtx.Lock()
	}

	s.servicingThreads--
	s.broadcast()
	s.mtx.Unlock()
}

// runTask keeps the servicing thread accounted for even when f panics. The
// panic itself is left to the caller's goroutine wrapper.
func (s *Scheduler) runTask(f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.mtx.Lock()
			s.servicingThreads--
			s.broadcast()
			s.mtx.Unlock()
			panic(r)
		}
	}()
	f()
}

// Stop tells all service goroutines to exit. When drain is true they first
// finish every task already in the queue, otherwise they exit as soon as the
// currently running tasks return. Stop does not wait for the goroutines to
// exit.
func (s *Scheduler) Stop(drain bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if drain {
		s.stopWhenEmpty = true
	} else {
		s.stopRequested = true
	}
	s.broadcast()
}

// WaitExit blocks until every Service goroutine has returned. Stop must have
// been called already, otherwise this waits forever.
func (s *Scheduler) WaitExit() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for s.servicingThreads > 0 {
		s.wait(-1)
	}
}

// QueueInfo returns the number of queued tasks and the earliest and latest
// deadlines among them. The returned times are zero values when the queue is
// empty.
func (s *Scheduler) QueueInfo() (count int, earliest, latest time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	count = s.taskQueue.Len()
	if count > 0 {
		earliest = s.taskQueue.Min().(*task).deadline
		latest = s.taskQueue.Max().(*task).deadline
	}
	return count, earliest, latest
}

// ServicingThreads returns the number of goroutines currently inside
// Service.
func (s *Scheduler) ServicingThreads() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.servicingThreads
}
