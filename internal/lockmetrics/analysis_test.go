package lockmetrics

import (
	"slices"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func acquire(role string, pid int, offset time.Duration, waitMs float64, ok bool) Sample {
	return Sample{
		Timestamp:  base.Add(offset),
		PID:        pid,
		Role:       role,
		Operation:  OpAcquire,
		DurationMs: waitMs,
		Success:    ok,
	}
}

func release(role string, pid int, offset time.Duration) Sample {
	return Sample{Timestamp: base.Add(offset), PID: pid, Role: role, Operation: OpRelease, Success: true}
}

func TestSummarize(t *testing.T) {
	samples := []Sample{
		acquire("standard", 1, 0, 2, true),
		release("standard", 1, time.Second),
		acquire("standard", 2, 500*time.Millisecond, 50, true),
		release("standard", 2, 2*time.Second),
		acquire("visual", 3, 0, 800, true),
		release("visual", 3, 3*time.Second),
		acquire("visual", 4, 100*time.Millisecond, 200, true),
		acquire("visual", 5, 200*time.Millisecond, 2500, false),
	}

	s := Summarize(samples)

	if s.TotalOperations != 8 || s.Acquisitions != 5 || s.Releases != 3 || s.Failures != 1 {
		t.Errorf("totals = %+v", s)
	}
	// successful waits: 2, 50, 800, 200
	if s.AvgWaitMs != 263 {
		t.Errorf("AvgWaitMs = %v, want 263", s.AvgWaitMs)
	}
	if s.MaxWaitMs != 800 {
		t.Errorf("MaxWaitMs = %v, want 800", s.MaxWaitMs)
	}
	if s.Health != HealthModerate {
		t.Errorf("Health = %q, want %q", s.Health, HealthModerate)
	}

	if len(s.Roles) != 2 {
		t.Fatalf("len(Roles) = %d, want 2", len(s.Roles))
	}
	visual, standard := s.Roles[0], s.Roles[1]
	if visual.Role != "visual" {
		t.Fatalf("Roles[0] = %q, want visual (highest average first)", visual.Role)
	}
	if visual.Acquires != 2 || visual.Failures != 1 || visual.Releases != 1 {
		t.Errorf("visual = %+v", visual)
	}
	if visual.MinWaitMs != 200 || visual.MaxWaitMs != 800 || visual.AvgWaitMs != 500 {
		t.Errorf("visual waits = %+v", visual)
	}
	if visual.Distribution != (Distribution{Medium: 1, Slow: 1}) {
		t.Errorf("visual distribution = %+v", visual.Distribution)
	}
	if standard.Distribution != (Distribution{Immediate: 1, Fast: 1}) {
		t.Errorf("standard distribution = %+v", standard.Distribution)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalOperations != 0 || s.AvgWaitMs != 0 || len(s.Roles) != 0 {
		t.Errorf("Summarize(nil) = %+v", s)
	}
	if s.Health != HealthExcellent {
		t.Errorf("Health = %q, want %q", s.Health, HealthExcellent)
	}
}

func TestDistribution_Boundaries(t *testing.T) {
	tests := []struct {
		ms       float64
		expected Distribution
	}{
		{9.9, Distribution{Immediate: 1}},
		{10, Distribution{Fast: 1}},
		{99.9, Distribution{Fast: 1}},
		{100, Distribution{Medium: 1}},
		{500, Distribution{Slow: 1}},
	}

	for _, tt := range tests {
		var d Distribution
		d.add(tt.ms)
		if d != tt.expected {
			t.Errorf("add(%v) = %+v, want %+v", tt.ms, d, tt.expected)
		}
	}
}

func TestConcurrentAttempts(t *testing.T) {
	samples := []Sample{
		acquire("standard", 1, 0, 2, true),
		acquire("standard", 2, 4*time.Second, 900, true),
		acquire("standard", 3, 10*time.Second, 1, true),
		acquire("visual", 4, time.Second, 5, true),
		release("standard", 1, time.Second),
	}

	pairs := ConcurrentAttempts(samples, 0)
	if len(pairs) != 1 {
		t.Fatalf("len(pairs) = %d, want 1: %+v", len(pairs), pairs)
	}
	p := pairs[0]
	if p.Role != "standard" || p.PID1 != 1 || p.PID2 != 2 || p.GapMs != 4000 || p.Wait2Ms != 900 {
		t.Errorf("pair = %+v", p)
	}

	if got := ConcurrentAttempts(samples, 20*time.Second); len(got) != 3 {
		t.Errorf("with 20s window len = %d, want 3", len(got))
	}
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name       string
		summary    Summary
		concurrent int
		want       []string
	}{
		{
			name:    "healthy",
			summary: Summary{TotalOperations: 10, AvgWaitMs: 5, MaxWaitMs: 20},
			want:    []string{"No issues detected"},
		},
		{
			name:    "slow average",
			summary: Summary{TotalOperations: 10, AvgWaitMs: 700, MaxWaitMs: 900},
			want:    []string{"Reduce parallel workers to decrease lock contention"},
		},
		{
			name:    "stuck worker and failures",
			summary: Summary{TotalOperations: 10, AvgWaitMs: 100, MaxWaitMs: 3500, Failures: 2},
			want: []string{
				"Investigate workers with high wait times (>3s)",
				"Review lock acquisition failures; they may indicate timeout issues",
			},
		},
		{
			name:       "many concurrent attempts",
			summary:    Summary{TotalOperations: 10, AvgWaitMs: 50},
			concurrent: 4,
			want:       []string{"High concurrent access detected; the lock is preventing duplicate logins"},
		},
		{
			name:    "low contention",
			summary: Summary{TotalOperations: 4, Acquisitions: 2, AvgWaitMs: 3.4, MaxWaitMs: 6},
			want:    []string{"Low contention (3ms avg), locking overhead is minimal"},
		},
		{
			name: "role waited too long",
			summary: Summary{
				TotalOperations: 20,
				Acquisitions:    10,
				AvgWaitMs:       300,
				MaxWaitMs:       2500,
				Roles: []RoleSummary{
					{Role: "problem", Acquires: 4, MaxWaitMs: 2500},
					{Role: "standard", Acquires: 6, MaxWaitMs: 1900},
				},
			},
			want: []string{`Role "problem" waited up to 2500ms for its lock; high contention`},
		},
		{
			name: "heavily used role",
			summary: Summary{
				TotalOperations: 30,
				Acquisitions:    15,
				AvgWaitMs:       40,
				MaxWaitMs:       90,
				Roles: []RoleSummary{
					{Role: "standard", Acquires: 11, MaxWaitMs: 90},
					{Role: "visual", Acquires: 10, MaxWaitMs: 80},
				},
			},
			want: []string{`Role "standard" was locked 11 times; keep its session cached longer`},
		},
		{
			name: "role checks follow the average check",
			summary: Summary{
				TotalOperations: 40,
				Acquisitions:    20,
				AvgWaitMs:       800,
				MaxWaitMs:       2600,
				Roles: []RoleSummary{
					{Role: "error", Acquires: 12, MaxWaitMs: 2600},
				},
			},
			want: []string{
				"Reduce parallel workers to decrease lock contention",
				`Role "error" waited up to 2600ms for its lock; high contention`,
				`Role "error" was locked 12 times; keep its session cached longer`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommendations(tt.summary, tt.concurrent)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Recommendations() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInsights(t *testing.T) {
	got := Insights(Summary{Health: HealthHigh, MaxWaitMs: 2500})
	if len(got) != 2 {
		t.Fatalf("Insights() = %v, want 2 entries", got)
	}
	if got[1] != "Some workers waited over 2 seconds for locks" {
		t.Errorf("Insights()[1] = %q", got[1])
	}
}
