package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
)

var Version = "dev"

func main() {
	// A missing .env is fine; JWT_SECRET may come from the environment.
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "issue-token",
		Short:        "Issue and inspect caller tokens for the credit market API",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().String("secret", "", "HMAC secret (defaults to $JWT_SECRET)")

	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(verifyCmd())
	return rootCmd
}

func authenticator(cmd *cobra.Command, ttl time.Duration) (*auth.Authenticator, error) {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return nil, errors.New("no secret: pass --secret or set JWT_SECRET")
	}
	return auth.NewAuthenticator(secret, ttl), nil
}

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue [address]",
		Short: "Print a bearer token whose caller is address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			a, err := authenticator(cmd, ttl)
			if err != nil {
				return err
			}
			token, err := a.IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Print the caller address a token carries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := authenticator(cmd, time.Hour)
			if err != nil {
				return err
			}
			address, err := a.ParseToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), address)
			return nil
		},
	}
}
