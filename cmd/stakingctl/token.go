package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/vitos/token_staking/internal/config"
	"github.com/vitos/token_staking/internal/web"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("secret", "", "HS256 secret (defaults to $"+config.EnvJWTSecret+")")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Mint a bearer token acting as address on the HTTP API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("%q is not an address", args[0])
		}
		secret, err := cmd.Flags().GetString("secret")
		if err != nil {
			return err
		}
		if secret == "" {
			secret = os.Getenv(config.EnvJWTSecret)
		}
		if secret == "" {
			return errors.New("no secret: pass --secret or set " + config.EnvJWTSecret)
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}

		token, err := web.IssueToken(secret, common.HexToAddress(args[0]), ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
