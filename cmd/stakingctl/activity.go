package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/token_staking/internal/units"
)

func init() {
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().StringSlice("window", nil, "look-back window, e.g. 24h or 7d (repeatable; default 1d,7d,30d)")
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Summarize deposits, withdrawals and penalties over recent windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		decimals, err := cmd.Flags().GetInt32(decimalsFlagName)
		if err != nil {
			return err
		}
		raw, err := cmd.Flags().GetStringSlice("window")
		if err != nil {
			return err
		}
		var windows []time.Duration
		for _, r := range raw {
			d, err := parseSimDuration(r)
			if err != nil {
				return fmt.Errorf("bad window %q: %w", r, err)
			}
			windows = append(windows, d)
		}

		ctx := cmd.Context()
		svc, closeStore, err := openService(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		report, err := svc.Activity(ctx, windows)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WINDOW\tSTAKES\tDEPOSITED\tCOMPOUNDED\tWITHDRAWALS\tEARLY\tWITHDRAWN\tPENALTIES\tFLOW")
		for _, w := range report.Windows {
			flow := w.Direction
			if w.IsConsistent {
				flow += " (steady)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				w.Window, w.Stakes,
				units.Format(w.Deposits, decimals), units.Format(w.Compounded, decimals),
				w.Withdrawals, w.EarlyWithdrawals,
				units.Format(w.Withdrawn, decimals), units.Format(w.Penalties, decimals),
				flow)
		}
		return tw.Flush()
	},
}
