package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/logging"
)

var raceCmd = &cobra.Command{
	Use:   "race [logfile]",
	Short: "Detect duplicate logins in the auth log",
	Long: `Scan the auth log for fresh logins of the same role that happened within
--window of each other. Any hit means two workers logged in for the same
role concurrently, which the session lock is supposed to prevent.

The log defaults to <diagnostics_dir>/auth.log. Use --export to dump the
(optionally role-filtered) entries instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRace,
}

var (
	raceWindow time.Duration
	raceRole   string
	raceExport string
)

func init() {
	raceCmd.Flags().DurationVar(&raceWindow, "window", 5*time.Second, "two fresh logins closer than this count as a race")
	raceCmd.Flags().StringVar(&raceRole, "role", "", "only consider entries for this role")
	raceCmd.Flags().StringVar(&raceExport, "export", "", "export matching entries as json, text or csv instead of analyzing")
	rootCmd.AddCommand(raceCmd)
}

func runRace(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		path = rt.logPath()
		if err := rt.close(); err != nil {
			return err
		}
	}

	entries, err := logging.AggregateLogs(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(cmd.OutOrStdout(), "No auth log found at %s\n", path)
			return nil
		}
		return err
	}
	entries = logging.FilterLogs(entries, logging.LogFilter{Role: raceRole})

	if raceExport != "" {
		return logging.ExportLogEntries(cmd.OutOrStdout(), entries, raceExport)
	}

	dups := logging.DetectDuplicateLogins(entries, raceWindow)
	printDuplicates(cmd.OutOrStdout(), dups)
	if len(dups) > 0 {
		return fmt.Errorf("%d duplicate login(s) detected", len(dups))
	}
	return nil
}

func printDuplicates(w io.Writer, dups []logging.DuplicateLogin) {
	if len(dups) == 0 {
		fmt.Fprintln(w, okStyle.Render("No duplicate logins detected"))
		return
	}
	fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("%d duplicate login(s) detected", len(dups))))
	for _, d := range dups {
		fmt.Fprintf(w, "  %s: pid %d at %s and pid %d at %s (%s apart)\n",
			d.Role,
			d.First.PID, d.First.Timestamp.Format("15:04:05.000"),
			d.Second.PID, d.Second.Timestamp.Format("15:04:05.000"),
			d.Gap.Round(time.Millisecond))
	}
}
