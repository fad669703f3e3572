package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/vitos/token_staking/internal/infrastructure/storage"
	"github.com/vitos/token_staking/internal/usecase"
	"go.uber.org/zap"
)

const (
	dbFlagName       = "db"
	decimalsFlagName = "decimals"
)

var rootCmd = &cobra.Command{
	Use:           "stakingctl",
	Short:         "Inspect and exercise a token staking pool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String(dbFlagName, "staking.db", "path to the daemon's SQLite store")
	rootCmd.PersistentFlags().Int32(decimalsFlagName, 18, "token decimals used to render amounts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openService opens the store read-side. The executor has no ledger, so only
// queries may be called on the returned service.
func openService(ctx context.Context, cmd *cobra.Command) (*usecase.StakingService, func(), error) {
	path, err := cmd.Flags().GetString(dbFlagName)
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("store %s: %w", path, err)
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}

	svc := usecase.NewStakingService(store, usecase.NewTransferExecutor(nil, common.Address{}), nil, nil, zap.NewNop())
	if err := svc.Bootstrap(ctx, nil); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("store %s has no pool config: %w", path, err)
	}
	return svc, func() { store.Close() }, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
