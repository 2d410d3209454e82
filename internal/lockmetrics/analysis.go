package lockmetrics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultConcurrencyWindow is the window within which two acquisitions of
// the same role count as concurrent.
const DefaultConcurrencyWindow = 5 * time.Second

// Wait time thresholds in milliseconds.
const (
	immediateMs = 10
	fastMs      = 100
	mediumMs    = 500
	slowWaitMs  = 2000
	stuckWaitMs = 3000
)

// heavyUseAcquires is the number of locked acquisitions above which a role
// is reported as heavily used.
const heavyUseAcquires = 10

// Health grades overall contention by average acquisition wait.
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthModerate  Health = "moderate"
	HealthHigh      Health = "high contention"
)

// Distribution buckets successful acquisition waits.
type Distribution struct {
	Immediate int `json:"immediate"` // < 10ms
	Fast      int `json:"fast"`      // 10-100ms
	Medium    int `json:"medium"`    // 100-500ms
	Slow      int `json:"slow"`      // >= 500ms
}

func (d *Distribution) add(ms float64) {
	switch {
	case ms < immediateMs:
		d.Immediate++
	case ms < fastMs:
		d.Fast++
	case ms < mediumMs:
		d.Medium++
	default:
		d.Slow++
	}
}

// RoleSummary aggregates the samples of one role.
type RoleSummary struct {
	Role         string       `json:"role"`
	Acquires     int          `json:"acquires"`
	Releases     int          `json:"releases"`
	Failures     int          `json:"failures"`
	AvgWaitMs    float64      `json:"avgWaitMs"`
	MinWaitMs    float64      `json:"minWaitMs"`
	MaxWaitMs    float64      `json:"maxWaitMs"`
	Distribution Distribution `json:"distribution"`
}

// Summary aggregates a metrics file. Wait statistics only consider
// successful acquisitions; failed acquisitions count as failures.
type Summary struct {
	TotalOperations int           `json:"totalOperations"`
	Acquisitions    int           `json:"acquisitions"`
	Releases        int           `json:"releases"`
	Failures        int           `json:"failures"`
	AvgWaitMs       float64       `json:"avgWaitMs"`
	MaxWaitMs       float64       `json:"maxWaitMs"`
	Health          Health        `json:"health"`
	Roles           []RoleSummary `json:"roles"`
}

// Summarize computes overall and per-role statistics. Roles are ordered by
// descending average wait.
func Summarize(samples []Sample) Summary {
	s := Summary{TotalOperations: len(samples)}

	byRole := make(map[string]*RoleSummary)
	waits := make(map[string][]float64)
	var all []float64

	for _, m := range samples {
		rs, ok := byRole[m.Role]
		if !ok {
			rs = &RoleSummary{Role: m.Role}
			byRole[m.Role] = rs
		}
		switch {
		case m.Operation != OpAcquire:
			s.Releases++
			rs.Releases++
		case m.Success:
			s.Acquisitions++
			rs.Acquires++
			rs.Distribution.add(m.DurationMs)
			waits[m.Role] = append(waits[m.Role], m.DurationMs)
			all = append(all, m.DurationMs)
		default:
			s.Acquisitions++
		}
		if !m.Success {
			s.Failures++
			if m.Operation == OpAcquire {
				rs.Failures++
			}
		}
	}

	s.AvgWaitMs, _, s.MaxWaitMs = stats(all)
	s.Health = grade(s.AvgWaitMs)

	for role, rs := range byRole {
		rs.AvgWaitMs, rs.MinWaitMs, rs.MaxWaitMs = stats(waits[role])
		s.Roles = append(s.Roles, *rs)
	}
	sort.Slice(s.Roles, func(i, j int) bool {
		if s.Roles[i].AvgWaitMs != s.Roles[j].AvgWaitMs {
			return s.Roles[i].AvgWaitMs > s.Roles[j].AvgWaitMs
		}
		return s.Roles[i].Role < s.Roles[j].Role
	})
	return s
}

func stats(values []float64) (avg, lo, hi float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return sum / float64(len(values)), lo, hi
}

func grade(avgMs float64) Health {
	switch {
	case avgMs < immediateMs:
		return HealthExcellent
	case avgMs < fastMs:
		return HealthGood
	case avgMs < mediumMs:
		return HealthModerate
	default:
		return HealthHigh
	}
}

// ConcurrentAttempt is a pair of acquisitions of the same role that started
// within the concurrency window of each other.
type ConcurrentAttempt struct {
	Role    string  `json:"role"`
	PID1    int     `json:"pid1"`
	PID2    int     `json:"pid2"`
	Wait1Ms float64 `json:"wait1Ms"`
	Wait2Ms float64 `json:"wait2Ms"`
	GapMs   float64 `json:"gapMs"`
}

// ConcurrentAttempts returns every pair of acquire samples of the same role
// whose start times are less than window apart, in sample order.
func ConcurrentAttempts(samples []Sample, window time.Duration) []ConcurrentAttempt {
	if window <= 0 {
		window = DefaultConcurrencyWindow
	}

	var acquires []Sample
	for _, m := range samples {
		if m.Operation == OpAcquire {
			acquires = append(acquires, m)
		}
	}

	var pairs []ConcurrentAttempt
	for i, a := range acquires {
		for _, b := range acquires[i+1:] {
			if a.Role != b.Role {
				continue
			}
			gap := a.Timestamp.Sub(b.Timestamp).Abs()
			if gap >= window {
				continue
			}
			pairs = append(pairs, ConcurrentAttempt{
				Role:    a.Role,
				PID1:    a.PID,
				PID2:    b.PID,
				Wait1Ms: a.DurationMs,
				Wait2Ms: b.DurationMs,
				GapMs:   float64(gap) / float64(time.Millisecond),
			})
		}
	}
	return pairs
}

// Recommendations returns tuning advice for a run. concurrent is the number
// of concurrent attempt pairs found by ConcurrentAttempts.
func Recommendations(s Summary, concurrent int) []string {
	var recs []string
	if s.AvgWaitMs > mediumMs {
		recs = append(recs, "Reduce parallel workers to decrease lock contention")
	} else if s.Acquisitions > 0 && s.AvgWaitMs < immediateMs {
		recs = append(recs, fmt.Sprintf("Low contention (%.0fms avg), locking overhead is minimal", s.AvgWaitMs))
	}
	for _, rs := range s.Roles {
		if rs.MaxWaitMs > slowWaitMs {
			recs = append(recs, fmt.Sprintf("Role %q waited up to %.0fms for its lock; high contention", rs.Role, rs.MaxWaitMs))
		}
		if rs.Acquires > heavyUseAcquires {
			recs = append(recs, fmt.Sprintf("Role %q was locked %d times; keep its session cached longer", rs.Role, rs.Acquires))
		}
	}
	if s.MaxWaitMs > stuckWaitMs {
		recs = append(recs, "Investigate workers with high wait times (>3s)")
	}
	if float64(concurrent) > float64(s.TotalOperations)*0.3 {
		recs = append(recs, "High concurrent access detected; the lock is preventing duplicate logins")
	}
	if s.Failures > 0 {
		recs = append(recs, "Review lock acquisition failures; they may indicate timeout issues")
	}
	if len(recs) == 0 {
		recs = append(recs, "No issues detected")
	}
	return recs
}

// Insights returns observations about the run that are not actionable on
// their own.
func Insights(s Summary) []string {
	var out []string
	switch s.Health {
	case HealthExcellent:
		out = append(out, "Very low contention, locking overhead is minimal")
	case HealthGood:
		out = append(out, "Low contention, acceptable performance")
	case HealthModerate:
		out = append(out, "Moderate contention detected; monitor for degradation")
	default:
		out = append(out, "High contention; consider reducing parallelism")
	}
	if s.MaxWaitMs > slowWaitMs {
		out = append(out, "Some workers waited over 2 seconds for locks")
	}
	return out
}
