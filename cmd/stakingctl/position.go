package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/units"
)

func init() {
	rootCmd.AddCommand(positionCmd)
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int("limit", 20, "number of most recent events to print")
}

var positionCmd = &cobra.Command{
	Use:   "position <address>",
	Short: "Print a participant's position, pending rewards and rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("%q is not an address", args[0])
		}
		addr := common.HexToAddress(args[0])
		decimals, err := cmd.Flags().GetInt32(decimalsFlagName)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, closeStore, err := openService(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		pos, err := svc.UserInfo(ctx, addr)
		if err != nil {
			return err
		}
		pending, err := svc.PendingRewards(ctx, addr)
		if err != nil {
			return err
		}
		rate, err := svc.EffectiveRate(ctx, addr)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), struct {
			Participant       string `json:"participant"`
			State             string `json:"state"`
			TotalStaked       string `json:"total_staked"`
			WeightedStartTime uint64 `json:"weighted_start_time"`
			PendingRewards    string `json:"pending_rewards"`
			Tier              int    `json:"tier"`
			EffectiveRateBps  uint64 `json:"effective_rate_bps"`
		}{
			Participant:       pos.Participant.Hex(),
			State:             string(pos.State()),
			TotalStaked:       units.Format(pos.TotalStaked, decimals),
			WeightedStartTime: pos.WeightedStartTime,
			PendingRewards:    units.Format(pending, decimals),
			Tier:              rate.Tier,
			EffectiveRateBps:  rate.EffectiveRate,
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the most recent pool events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		svc, closeStore, err := openService(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		events, err := svc.ListEvents(ctx, limit)
		if err != nil {
			return err
		}
		if events == nil {
			events = []*domain.EventRecord{}
		}
		return printJSON(cmd.OutOrStdout(), events)
	},
}
