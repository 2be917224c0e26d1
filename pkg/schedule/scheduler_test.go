package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fixedAgents []string

func (f fixedAgents) Agents() []string { return f }

// ============================================================================
// Registration Tests
// ============================================================================

func TestAdd_RejectsInvalidCron(t *testing.T) {
	s := NewScheduler(fixedAgents{"a"}, nil)
	job := JobFunc{JobName: "noop", Fn: func(ctx context.Context, agent string) error { return nil }}

	if err := s.Add("not a schedule", job); err == nil {
		t.Fatal("Expected an invalid cron expression to be rejected")
	}
	if err := s.Add("0 2 * * *", job); err != nil {
		t.Fatalf("Valid cron expression rejected: %v", err)
	}
}

// ============================================================================
// Execution Tests
// ============================================================================

func TestRunNow_VisitsEveryAgent(t *testing.T) {
	s := NewScheduler(fixedAgents{"alpha", "beta", "gamma"}, nil)

	var mu sync.Mutex
	seen := make(map[string]int)
	job := JobFunc{JobName: "count", Fn: func(ctx context.Context, agent string) error {
		mu.Lock()
		seen[agent]++
		mu.Unlock()
		return nil
	}}

	s.RunNow(context.Background(), job)

	if len(seen) != 3 {
		t.Fatalf("Expected 3 agents visited, got %v", seen)
	}
	for agent, n := range seen {
		if n != 1 {
			t.Errorf("Agent %s ran %d times", agent, n)
		}
	}
}

// Two jobs for the same agent never overlap; different agents may run in
// parallel.
func TestRunNow_SerializesPerAgent(t *testing.T) {
	s := NewScheduler(fixedAgents{"alpha"}, nil)

	var inFlight int32
	var overlapped int32
	job := JobFunc{JobName: "slow", Fn: func(ctx context.Context, agent string) error {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunNow(context.Background(), job)
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Error("Jobs for the same agent overlapped")
	}
}

func TestRunNow_AgentsRunInParallel(t *testing.T) {
	s := NewScheduler(fixedAgents{"alpha", "beta"}, nil)

	start := time.Now()
	job := JobFunc{JobName: "slow", Fn: func(ctx context.Context, agent string) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}}
	s.RunNow(context.Background(), job)

	// Serial execution would take at least 100ms.
	if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
		t.Errorf("Agents did not run in parallel: %s", elapsed)
	}
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestStart_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(fixedAgents{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx)
	s.Start(ctx) // idempotent

	cancel()
	deadline := time.After(time.Second)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Scheduler did not stop after context cancellation")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
