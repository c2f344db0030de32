package memory

import (
	"testing"
	"time"
)

func testMonitor(alloc *uint64) *Monitor {
	m := NewMonitor(Config{LimitBytes: 1000, ResumeRatio: 0.5, PauseRatio: 0.8, CheckInterval: time.Hour})
	m.alloc = func() uint64 { return *alloc }
	return m
}

func TestMonitorPauseAndResume(t *testing.T) {
	alloc := uint64(100)
	m := testMonitor(&alloc)
	defer m.Stop()

	m.check()
	if m.IsPaused() {
		t.Fatal("paused at 10% usage")
	}
	if !m.WaitIfPaused() {
		t.Fatal("WaitIfPaused() = false while running")
	}

	alloc = 900
	m.check()
	if !m.IsPaused() {
		t.Fatal("not paused at 90% usage")
	}
	if got := m.Usage(); got != 0.9 {
		t.Errorf("Usage() = %v, want 0.9", got)
	}

	released := make(chan bool, 1)
	go func() { released <- m.WaitIfPaused() }()

	// Between the thresholds the pause holds.
	alloc = 600
	m.check()
	select {
	case <-released:
		t.Fatal("waiter released above the resume ratio")
	case <-time.After(50 * time.Millisecond):
	}

	alloc = 400
	m.check()
	select {
	case ok := <-released:
		if !ok {
			t.Error("WaitIfPaused() = false after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released after usage dropped")
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	alloc := uint64(950)
	m := testMonitor(&alloc)
	m.check()

	released := make(chan bool, 1)
	go func() { released <- m.WaitIfPaused() }()
	m.Stop()
	m.Stop()

	select {
	case ok := <-released:
		if ok {
			t.Error("WaitIfPaused() = true after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the waiter")
	}
}

func TestMonitorWithoutLimit(t *testing.T) {
	alloc := uint64(1 << 40)
	m := testMonitor(&alloc)
	m.limit = 0
	m.check()
	if m.IsPaused() || m.Usage() != 0 {
		t.Error("monitor without a limit paused")
	}
}
