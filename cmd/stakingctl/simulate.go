package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/vitos/token_staking/internal/config"
	"github.com/vitos/token_staking/internal/infrastructure/ledger"
	"github.com/vitos/token_staking/internal/infrastructure/storage"
	"github.com/vitos/token_staking/internal/units"
	"github.com/vitos/token_staking/internal/usecase"
	"go.uber.org/zap"
)

var (
	simParticipant = common.HexToAddress("0x1111111111111111111111111111111111111111")
	simOwner       = common.HexToAddress("0x9999999999999999999999999999999999999999")
	simCustody     = common.HexToAddress("0x000000000000000000000000000000000000c057")
	simStart       = time.Unix(1_700_000_000, 0).UTC()
	simFunding     = "1000000"
)

var defaultSteps = []string{
	"stake:1000",
	"advance:10d",
	"withdraw:500",
	"advance:60d",
	"stake:1000",
	"advance:182d",
	"withdraw-all",
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringArray("step", nil,
		"step to run, repeatable: stake:<amount>, withdraw:<amount>, withdraw-all, advance:<duration|Nd>, penalty:<bps>, minimum:<amount>")
	simulateCmd.Flags().String("config", "", "optional YAML config supplying the economic parameters")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a stake/withdraw scenario against an in-memory pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := cmd.Flags().GetStringArray("step")
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			steps = defaultSteps
		}

		cfg := config.Default()
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if cfg, err = config.Load(path); err != nil {
				return err
			}
		}
		cfg.Staking.Owner = simOwner.Hex()

		return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, steps)
	},
}

type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time { return c.now }

type simulation struct {
	svc      *usecase.StakingService
	ledger   *ledger.MemoryLedger
	clock    *simClock
	decimals int32
}

func newSimulation(ctx context.Context, cfg *config.Config) (*simulation, error) {
	seed, err := cfg.ToDomain()
	if err != nil {
		return nil, err
	}
	decimals := cfg.Staking.Decimals

	l := ledger.NewMemoryLedger(simCustody, zap.NewNop())
	funding, err := units.Parse(simFunding, decimals)
	if err != nil {
		return nil, err
	}
	if err := l.Mint(simParticipant, funding); err != nil {
		return nil, err
	}
	if err := l.Approve(simParticipant, simCustody, new(uint256.Int).SetAllOne()); err != nil {
		return nil, err
	}

	clock := &simClock{now: simStart}
	svc := usecase.NewStakingService(storage.NewMemoryStore(), usecase.NewTransferExecutor(l, simCustody), nil, clock, zap.NewNop())
	if err := svc.Bootstrap(ctx, seed); err != nil {
		return nil, err
	}
	return &simulation{svc: svc, ledger: l, clock: clock, decimals: decimals}, nil
}

func runSimulation(ctx context.Context, out io.Writer, cfg *config.Config, steps []string) error {
	sim, err := newSimulation(ctx, cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTEP\tRESULT\tSTAKED\tPENDING\tWALLET\tOWNER")
	for _, step := range steps {
		result, err := sim.apply(ctx, step)
		if err != nil {
			return err
		}
		if err := sim.printRow(ctx, tw, step, result); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// apply runs one step. Rejections by the pool are part of the output, not
// errors; only malformed steps fail the simulation.
func (s *simulation) apply(ctx context.Context, step string) (string, error) {
	name, arg, _ := strings.Cut(step, ":")
	switch name {
	case "advance":
		d, err := parseSimDuration(arg)
		if err != nil {
			return "", fmt.Errorf("step %q: %w", step, err)
		}
		s.clock.now = s.clock.now.Add(d)
		return "ok", nil

	case "stake", "withdraw", "minimum":
		amount, err := units.Parse(arg, s.decimals)
		if err != nil {
			return "", fmt.Errorf("step %q: %w", step, err)
		}
		switch name {
		case "stake":
			_, err = s.svc.Stake(ctx, simParticipant, amount)
		case "withdraw":
			var q *usecase.WithdrawalQuote
			if q, err = s.svc.Withdraw(ctx, simParticipant, amount); err == nil {
				return "penalty " + units.Format(q.Penalty, s.decimals), nil
			}
		case "minimum":
			err = s.svc.SetMinimumStakeAmount(ctx, simOwner, amount)
		}
		return resultOf(err), nil

	case "withdraw-all":
		q, err := s.svc.WithdrawAll(ctx, simParticipant)
		if err != nil {
			return resultOf(err), nil
		}
		return "penalty " + units.Format(q.Penalty, s.decimals), nil

	case "penalty":
		bps, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return "", fmt.Errorf("step %q: %w", step, err)
		}
		return resultOf(s.svc.SetEarlyWithdrawalPenalty(ctx, simOwner, bps)), nil

	default:
		return "", fmt.Errorf("unknown step %q", step)
	}
}

func (s *simulation) printRow(ctx context.Context, w io.Writer, step, result string) error {
	pos, err := s.svc.UserInfo(ctx, simParticipant)
	if err != nil {
		return err
	}
	pending, err := s.svc.PendingRewards(ctx, simParticipant)
	if err != nil {
		return err
	}
	wallet, err := s.ledger.BalanceOf(ctx, simParticipant)
	if err != nil {
		return err
	}
	ownerBalance, err := s.ledger.BalanceOf(ctx, simOwner)
	if err != nil {
		return err
	}
	day := s.clock.now.Sub(simStart).Hours() / 24
	fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\t%s\t%s\t%s\n", day, step, result,
		units.Format(pos.TotalStaked, s.decimals),
		units.Format(pending, s.decimals),
		units.Format(wallet, s.decimals),
		units.Format(ownerBalance, s.decimals))
	return nil
}

func resultOf(err error) string {
	if err != nil {
		return "rejected: " + err.Error()
	}
	return "ok"
}

// parseSimDuration accepts Go durations plus a whole or fractional "Nd" day form.
func parseSimDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, err
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}
