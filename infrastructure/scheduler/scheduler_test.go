package scheduler

import (
	"sync"
	"testing"
	"time"
)

// serviceAndSignal runs Service on a new goroutine and returns a channel
// that is closed when Service returns.
func serviceAndSignal(s *Scheduler) chan struct{} {
	done := make(chan struct{})
	go func() {
		s.Service()
		close(done)
	}()
	return done
}

func waitForService(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Service did not exit in time")
	}
}

func TestScheduleOrdering(t *testing.T) {
	s := New()

	var mtx sync.Mutex
	var got []int
	record := func(id int) func() {
		return func() {
			mtx.Lock()
			got = append(got, id)
			mtx.Unlock()
		}
	}

	now := time.Now()
	// Queue deliberately out of order.
	s.Schedule(record(3), now.Add(60*time.Millisecond))
	s.Schedule(record(1), now.Add(20*time.Millisecond))
	s.Schedule(record(2), now.Add(40*time.Millisecond))

	done := serviceAndSignal(s)
	time.Sleep(200 * time.Millisecond)
	s.Stop(true)
	waitForService(t, done)

	mtx.Lock()
	defer mtx.Unlock()
	if len(got) != 3 {
		t.Fatalf("Expected 3 executed tasks, got %d", len(got))
	}
	for i, id := range []int{1, 2, 3} {
		if got[i] != id {
			t.Errorf("Task %d executed out of order: got id %d, want %d", i, got[i], id)
		}
	}
}

func TestSameDeadlineRunsInScheduleOrder(t *testing.T) {
	s := New()

	var mtx sync.Mutex
	var got []int
	deadline := time.Now().Add(20 * time.Millisecond)
	for i := 1; i <= 5; i++ {
		id := i
		s.Schedule(func() {
			mtx.Lock()
			got = append(got, id)
			mtx.Unlock()
		}, deadline)
	}

	done := serviceAndSignal(s)
	s.Stop(true)
	waitForService(t, done)

	mtx.Lock()
	defer mtx.Unlock()
	if len(got) != 5 {
		t.Fatalf("Expected 5 executed tasks, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i] != i+1 {
			t.Fatalf("Tasks with an equal deadline ran out of insertion order: %v", got)
		}
	}
}

func TestStopWithoutDrainSkipsQueuedTasks(t *testing.T) {
	s := New()

	executed := make(chan struct{}, 1)
	s.ScheduleFromNow(func() {
		executed <- struct{}{}
	}, time.Hour)

	done := serviceAndSignal(s)
	s.Stop(false)
	waitForService(t, done)

	select {
	case <-executed:
		t.Fatalf("Task scheduled an hour ahead was executed on a non-draining stop")
	default:
	}

	if count, _, _ := s.QueueInfo(); count != 1 {
		t.Errorf("Expected the skipped task to remain queued, got count %d", count)
	}
}

func TestStopWithDrainRunsQueuedTasks(t *testing.T) {
	s := New()

	var mtx sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		s.ScheduleFromNow(func() {
			mtx.Lock()
			ran++
			mtx.Unlock()
		}, 0)
	}

	done := serviceAndSignal(s)
	s.Stop(true)
	waitForService(t, done)

	mtx.Lock()
	defer mtx.Unlock()
	if ran != 10 {
		t.Fatalf("Expected all 10 queued tasks to run before a draining stop, got %d", ran)
	}
}

func TestScheduleEvery(t *testing.T) {
	s := New()

	ticks := make(chan struct{}, 100)
	s.ScheduleEvery(func() {
		ticks <- struct{}{}
	}, 10*time.Millisecond)

	done := serviceAndSignal(s)

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(10 * time.Second):
			t.Fatalf("Recurring task did not tick for the %d time", i+1)
		}
	}

	s.Stop(false)
	waitForService(t, done)
}

func TestQueueInfo(t *testing.T) {
	s := New()

	if count, earliest, latest := s.QueueInfo(); count != 0 || !earliest.IsZero() || !latest.IsZero() {
		t.Fatalf("Expected an empty queue, got count %d, earliest %s, latest %s", count, earliest, latest)
	}

	later := time.Now().Add(2 * time.Hour)
	sooner := time.Now().Add(time.Hour)
	s.Schedule(func() {}, later)
	s.Schedule(func() {}, sooner)

	count, earliest, latest := s.QueueInfo()
	if count != 2 {
		t.Errorf("Expected 2 queued tasks, got %d", count)
	}
	if !earliest.Equal(sooner) {
		t.Errorf("Expected the earliest deadline to be %s, got %s", sooner, earliest)
	}
	if !latest.Equal(later) {
		t.Errorf("Expected the latest deadline to be %s, got %s", later, latest)
	}
}

func TestMultipleServiceGoroutines(t *testing.T) {
	s := New()

	var mtx sync.Mutex
	ran := 0
	for i := 0; i < 20; i++ {
		s.ScheduleFromNow(func() {
			mtx.Lock()
			ran++
			mtx.Unlock()
		}, 0)
	}

	var dones []chan struct{}
	for i := 0; i < 4; i++ {
		dones = append(dones, serviceAndSignal(s))
	}

	s.Stop(true)
	for _, done := range dones {
		waitForService(t, done)
	}
	s.WaitExit()

	if got := s.ServicingThreads(); got != 0 {
		t.Errorf("Expected no servicing threads after WaitExit, got %d", got)
	}

	mtx.Lock()
	defer mtx.Unlock()
	if ran != 20 {
		t.Fatalf("Expected all 20 tasks to run, got %d", ran)
	}
}
