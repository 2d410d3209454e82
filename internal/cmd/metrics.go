package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/lockmetrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Analyze lock contention from recorded lock metrics",
	Long: `Summarize the lock timings recorded by test workers: overall and per-role
wait statistics, a wait time distribution, concurrent attempts for the same
role, and tuning recommendations.`,
	RunE: runMetrics,
}

var (
	metricsJSON   bool
	metricsWindow time.Duration
	metricsFile   string
)

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output the analysis as JSON")
	metricsCmd.Flags().DurationVar(&metricsWindow, "window", lockmetrics.DefaultConcurrencyWindow, "window within which two acquisitions count as concurrent")
	metricsCmd.Flags().StringVar(&metricsFile, "file", "", "metrics file (default: <diagnostics_dir>/lock-metrics.json)")
	rootCmd.AddCommand(metricsCmd)
}

// metricsReport is the --json output of the metrics command.
type metricsReport struct {
	Summary         lockmetrics.Summary             `json:"summary"`
	Concurrent      []lockmetrics.ConcurrentAttempt `json:"concurrentAttempts"`
	Recommendations []string                        `json:"recommendations"`
	Insights        []string                        `json:"insights"`
}

func runMetrics(cmd *cobra.Command, args []string) (err error) {
	path := metricsFile
	if path == "" {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		path = rt.metricsPath()
		if err := rt.close(); err != nil {
			return err
		}
	}

	samples, err := lockmetrics.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(cmd.OutOrStdout(), "No lock metrics found at %s\n", path)
			return nil
		}
		return err
	}

	report := analyze(samples, metricsWindow)
	if metricsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printMetricsReport(cmd.OutOrStdout(), report)
	return nil
}

func analyze(samples []lockmetrics.Sample, window time.Duration) metricsReport {
	summary := lockmetrics.Summarize(samples)
	concurrent := lockmetrics.ConcurrentAttempts(samples, window)
	return metricsReport{
		Summary:         summary,
		Concurrent:      concurrent,
		Recommendations: lockmetrics.Recommendations(summary, len(concurrent)),
		Insights:        lockmetrics.Insights(summary),
	}
}

func printMetricsReport(w io.Writer, r metricsReport) {
	s := r.Summary

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("LOCK SUMMARY"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "Operations:   %d (%d acquires, %d releases)\n", s.TotalOperations, s.Acquisitions, s.Releases)
	fmt.Fprintf(w, "Failures:     %d\n", s.Failures)
	fmt.Fprintf(w, "Average wait: %.1fms\n", s.AvgWaitMs)
	fmt.Fprintf(w, "Max wait:     %.1fms\n", s.MaxWaitMs)
	fmt.Fprintf(w, "Health:       %s\n", healthLabel(s.Health))
	fmt.Fprintln(w)

	if len(s.Roles) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"ROLE", "ACQ", "FAIL", "AVG", "MIN", "MAX", "<10ms", "<100ms", "<500ms", "SLOW"})
		for _, rs := range s.Roles {
			d := rs.Distribution
			t.AppendRow(table.Row{
				rs.Role, rs.Acquires, rs.Failures,
				fmt.Sprintf("%.1f", rs.AvgWaitMs), fmt.Sprintf("%.1f", rs.MinWaitMs), fmt.Sprintf("%.1f", rs.MaxWaitMs),
				d.Immediate, d.Fast, d.Medium, d.Slow,
			})
		}
		t.Render()
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s %d\n", headerStyle.Render("CONCURRENT ATTEMPTS:"), len(r.Concurrent))
	for _, c := range r.Concurrent {
		fmt.Fprintf(w, "  %s: pid %d and pid %d %.0fms apart (waited %.1fms / %.1fms)\n",
			c.Role, c.PID1, c.PID2, c.GapMs, c.Wait1Ms, c.Wait2Ms)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, headerStyle.Render("INSIGHTS"))
	for _, line := range r.Insights {
		fmt.Fprintf(w, "  - %s\n", line)
	}
	fmt.Fprintln(w, headerStyle.Render("RECOMMENDATIONS"))
	for _, line := range r.Recommendations {
		fmt.Fprintf(w, "  - %s\n", line)
	}
}

func healthLabel(h lockmetrics.Health) string {
	switch h {
	case lockmetrics.HealthExcellent, lockmetrics.HealthGood:
		return okStyle.Render(string(h))
	case lockmetrics.HealthModerate:
		return warnStyle.Render(string(h))
	default:
		return errStyle.Render(string(h))
	}
}
