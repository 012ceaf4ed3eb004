package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// calibrate: report the PBKDF2 iteration count for a target duration.
func (c *cli) calibrateCmd() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure how many PBKDF2 iterations fit a time budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target <= 0 {
				target = c.cfg.PBKDFTargetMillis
			}
			component, err := c.newComponent()
			if err != nil {
				return err
			}
			start := time.Now()
			iterations := component.ChooseIterationCount(target)
			fmt.Fprintf(cmd.OutOrStdout(), "%d iterations for %dms (calibrated in %s)\n",
				iterations, target, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "target-ms", 0, "target duration in milliseconds (default from config)")
	return cmd
}
