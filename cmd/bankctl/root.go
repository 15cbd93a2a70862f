package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yellowcore-go/internal/client"
	"yellowcore-go/internal/config"
	"yellowcore-go/internal/logger"
)

// app carries the state shared by every subcommand.
type app struct {
	configDir string
	baseURL   string
	tokenFile string
	verbose   bool
	timeout   time.Duration

	client *client.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "bankctl",
		Short: "Command line client for the yellowcore bank and exchange",
		Long: `bankctl talks to a running yellowcore server.

Log in once; the session token is kept in a file and reused:
  bankctl register alice s3cret
  bankctl login alice s3cret
  bankctl open USD
  bankctl deposit 100001 500
  bankctl buy AAPL 2 100001`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configDir, "config", "c", "./configs", "directory holding config.yml")
	root.PersistentFlags().StringVarP(&a.baseURL, "url", "u", "", "server URL (overrides config)")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", defaultTokenFile(), "where the session token is kept")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "per command timeout")

	root.AddCommand(
		newRegisterCmd(a), newLoginCmd(a), newLogoutCmd(a), newHealthCmd(a),
		newAccountsCmd(a), newOpenCmd(a), newCloseCmd(a),
		newDepositCmd(a), newWithdrawCmd(a), newTransferCmd(a), newHistoryCmd(a),
		newRatesCmd(a), newQuotesCmd(a),
		newBuyCmd(a), newSellCmd(a), newPortfolioCmd(a), newTradesCmd(a), newStatsCmd(a),
	)
	return root
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bankctl-token"
	}
	return filepath.Join(home, ".bankctl-token")
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.baseURL != "" {
		cfg.Client.BaseURL = a.baseURL
	}

	level := "error"
	if a.verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(level, cfg.Logger.Format)
	if err != nil {
		log = zap.NewNop()
	}

	a.client = client.NewClient(cfg.Client, log)
	if token, err := os.ReadFile(a.tokenFile); err == nil {
		a.client.SetToken(strings.TrimSpace(string(token)))
	}
	return nil
}

func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *app) saveToken(token string) error {
	if token == "" {
		err := os.Remove(a.tokenFile)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.WriteFile(a.tokenFile, []byte(token+"\n"), 0o600)
}
