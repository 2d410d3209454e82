package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shopqa/authcache/internal/auth"
	"github.com/shopqa/authcache/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached sessions and lock state per role",
	Long: `Display, for every role, whether a session is cached, how old it is, and
whether a worker currently holds its lock. Nothing is validated against the
site and no locks are taken.`,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) (err error) {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	mgr, err := rt.manager(nil)
	if err != nil {
		return err
	}
	statuses, err := mgr.Status()
	if err != nil {
		return err
	}

	if statusJSON {
		return printStatusJSON(cmd, statuses)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", headerStyle.Render("Auth dir:"), util.ShortenPath(rt.authDir, 60))
	printStatusTable(cmd, statuses, time.Now())
	return nil
}

type statusJSONRow struct {
	Role       string     `json:"role"`
	Cached     bool       `json:"cached"`
	CachedAt   *time.Time `json:"cached_at,omitempty"`
	Size       int64      `json:"size,omitempty"`
	Locked     bool       `json:"locked"`
	LockStale  bool       `json:"lock_stale,omitempty"`
	HolderPID  int        `json:"holder_pid,omitempty"`
	HolderHost string     `json:"holder_host,omitempty"`
}

func printStatusJSON(cmd *cobra.Command, statuses []auth.RoleStatus) error {
	rows := make([]statusJSONRow, 0, len(statuses))
	for _, st := range statuses {
		row := statusJSONRow{Role: string(st.Role), Cached: st.Cached, Size: st.Size}
		if st.Cached {
			at := st.CachedAt
			row.CachedAt = &at
		}
		if st.Lock != nil && st.Lock.Locked {
			row.Locked = true
			row.LockStale = st.Lock.Stale
			if st.Lock.Holder != nil {
				row.HolderPID = st.Lock.Holder.PID
				row.HolderHost = st.Lock.Holder.Hostname
			}
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func printStatusTable(cmd *cobra.Command, statuses []auth.RoleStatus, now time.Time) {
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"ROLE", "SESSION", "AGE", "LOCK"})
	for _, st := range statuses {
		session, age := mutedStyle.Render("none"), "-"
		if st.Cached {
			session = okStyle.Render(fmt.Sprintf("cached (%d B)", st.Size))
			age = util.FormatAge(now.Sub(st.CachedAt))
		}
		t.AppendRow(table.Row{st.Role, session, age, lockLabel(st, now)})
	}
	t.Render()
}

func lockLabel(st auth.RoleStatus, now time.Time) string {
	if st.Lock == nil || !st.Lock.Locked {
		return mutedStyle.Render("free")
	}
	holder := "unknown holder"
	if h := st.Lock.Holder; h != nil {
		holder = fmt.Sprintf("pid %d on %s", h.PID, h.Hostname)
	}
	if st.Lock.Stale {
		return errStyle.Render(fmt.Sprintf("stale, %s, %s old", holder, util.FormatAge(st.Lock.Age)))
	}
	return warnStyle.Render(fmt.Sprintf("held by %s", holder))
}
