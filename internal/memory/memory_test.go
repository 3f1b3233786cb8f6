package memory

import (
	"context"
	"math"
	"runtime/debug"
	"testing"
	"time"
)

func testMonitor(limit int64) *Monitor {
	return NewMonitor(Config{
		MemoryLimitBytes:  limit,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Hour,
	})
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.HighWaterMark >= c.CriticalWaterMark {
		t.Errorf("high water mark %.2f should be below critical %.2f", c.HighWaterMark, c.CriticalWaterMark)
	}
	if c.CheckInterval <= 0 {
		t.Error("check interval must be positive")
	}
}

func TestMonitorPauseAndResume(t *testing.T) {
	m := testMonitor(1000)

	m.observe(900)
	if !m.IsPaused() {
		t.Fatal("expected pause above critical water mark")
	}
	if !m.ShouldThrottle() {
		t.Error("expected throttle while paused")
	}

	released := make(chan bool, 1)
	go func() { released <- m.WaitIfPaused(context.Background()) }()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	// between the marks the pause holds
	m.observe(800)
	if !m.IsPaused() {
		t.Fatal("pause should hold until usage drops below the high water mark")
	}

	m.observe(100)
	select {
	case ok := <-released:
		if !ok {
			t.Error("expected WaitIfPaused to report success after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after resume")
	}
}

func TestWaitIfPausedHonoursContext(t *testing.T) {
	m := testMonitor(1000)
	m.observe(950)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.WaitIfPaused(ctx) {
		t.Error("expected false for a cancelled context")
	}
}

func TestWaitIfPausedAfterStop(t *testing.T) {
	m := testMonitor(1000)
	m.observe(950)
	m.Stop()
	m.Stop()

	if m.WaitIfPaused(context.Background()) {
		t.Error("expected false after Stop")
	}
}

func TestNilMonitor(t *testing.T) {
	var m *Monitor
	if !m.WaitIfPaused(context.Background()) {
		t.Error("nil monitor should never block")
	}
	if m.IsPaused() || m.ShouldThrottle() {
		t.Error("nil monitor should report no pressure")
	}
}

func TestGetStats(t *testing.T) {
	m := testMonitor(1000)
	m.observe(250)

	current, limit, usage := m.GetStats()
	if current != 250 || limit != 1000 || usage != 0.25 {
		t.Errorf("GetStats = %d, %d, %.2f", current, limit, usage)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })

	tests := []struct {
		name       string
		limit      string
		ratio      string
		configured bool
		wantRatio  float64
	}{
		{"unset", "", "", false, 0},
		{"default ratio", "1000000", "", true, DefaultMemoryRatio},
		{"custom ratio", "1000000", "0.5", true, 0.5},
		{"ratio out of range", "1000000", "1.5", true, DefaultMemoryRatio},
		{"garbage limit", "lots", "", false, 0},
		{"negative limit", "-5", "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()
			if result.Configured != tt.configured {
				t.Fatalf("Configured = %v, want %v", result.Configured, tt.configured)
			}
			if want := int64(float64(1000000) * tt.wantRatio); tt.configured && result.GoMemLimit != want {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
			}
			debug.SetMemoryLimit(math.MaxInt64)
		})
	}
}
