package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear [role...]",
	Short: "Delete cached sessions",
	Long: `Delete the cached session of each role so the next worker logs in again.
Each file is removed under the role's lock. Without arguments every
configured role is cleared.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) (err error) {
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
	mgr, err := rt.manager(nil)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	for _, r := range roles {
		if err := mgr.Invalidate(ctx, r); err != nil {
			return fmt.Errorf("failed to clear %s: %w", r, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", r)
	}
	return nil
}
