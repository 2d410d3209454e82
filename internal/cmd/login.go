package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shopqa/authcache/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login [role...]",
	Short: "Warm the session cache for one or more roles",
	Long: `Acquire a session for each role, logging in through the browser only when
the cached session is missing or no longer valid. Without arguments every
configured role is warmed.

Use --force to discard the cached sessions first.`,
	RunE: runLogin,
}

var (
	loginParallel int
	loginForce    bool
)

func init() {
	loginCmd.Flags().IntVar(&loginParallel, "parallel", 2, "maximum roles warmed at once (0 = unlimited)")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "invalidate cached sessions before logging in")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) (err error) {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	roles, err := parseRoles(rt.cfg, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	driver, err := newDriver(rt.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = driver.Close() }()

	mgr, err := rt.manager(driver)
	if err != nil {
		return err
	}

	if loginForce {
		for _, r := range roles {
			if err := mgr.Invalidate(ctx, r); err != nil {
				return fmt.Errorf("failed to invalidate %s: %w", r, err)
			}
		}
	}

	results, warmErr := mgr.WarmUp(ctx, roles, loginParallel)
	printWarmResults(cmd, results)
	if warmErr != nil {
		return fmt.Errorf("%d role(s) failed to log in", countFailed(results))
	}
	return nil
}

func printWarmResults(cmd *cobra.Command, results []auth.WarmResult) {
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"ROLE", "SOURCE", "ELAPSED", "RESULT"})
	for _, res := range results {
		if res.Err != nil {
			t.AppendRow(table.Row{res.Role, "-", "-", errStyle.Render(res.Err.Error())})
			continue
		}
		t.AppendRow(table.Row{res.Role, sourceLabel(res.Source), res.Elapsed.Round(time.Millisecond), okStyle.Render("ok")})
	}
	t.Render()
}

func sourceLabel(s auth.Source) string {
	switch s {
	case auth.SourceLogin:
		return warnStyle.Render(string(s))
	case auth.SourceCache, auth.SourceCacheAfterWait:
		return okStyle.Render(string(s))
	default:
		return string(s)
	}
}

func countFailed(results []auth.WarmResult) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
