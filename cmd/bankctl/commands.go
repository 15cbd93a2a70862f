package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"yellowcore-go/internal/client"
	"yellowcore-go/internal/models"
)

func parseAccountID(s string) (models.AccountID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return models.AccountID(id), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func newRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <username> <password>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			id, err := a.client.Register(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (user %d)\n", args[0], id)
			return nil
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Open a session and remember its token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			token, err := a.client.Login(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.saveToken(token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			if err := a.client.Logout(ctx); err != nil {
				return err
			}
			return a.saveToken("")
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			h, err := a.client.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "up %s, feed running: %t\n", h.Uptime, h.FeedRunning)
			return nil
		},
	}
}

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List your accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			accounts, err := a.client.Accounts(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, "ID", "CURRENCY", "BALANCE")
			for _, acc := range accounts {
				row(tw, acc.ID, acc.Currency, formatMoney(acc.Balance, acc.Currency))
			}
			return tw.Flush()
		},
	}
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <RUB|USD|EUR>",
		Short: "Open an account in a currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currency, ok := models.ParseCurrency(strings.ToUpper(args[0]))
			if !ok {
				return fmt.Errorf("unsupported currency %q", args[0])
			}
			ctx, cancel := a.context()
			defer cancel()
			id, err := a.client.OpenAccount(ctx, currency)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opened account %d (%s)\n", id, currency)
			return nil
		},
	}
}

func newCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close <account>",
		Short: "Close an empty account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			if err := a.client.CloseAccount(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed account %d\n", id)
			return nil
		},
	}
}

func newDepositCmd(a *app) *cobra.Command {
	return newBalanceCmd(a, "deposit", "Add money to an account")
}

func newWithdrawCmd(a *app) *cobra.Command {
	return newBalanceCmd(a, "withdraw", "Take money out of an account")
}

func newBalanceCmd(a *app, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()

			op := a.client.Deposit
			if use == "withdraw" {
				op = a.client.Withdraw
			}
			balance, err := op(ctx, id, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "new balance: %s\n", balance)
			return nil
		},
	}
}

func newTransferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move money between accounts, converting across currencies",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			to, err := parseAccountID(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			res, err := a.client.Transfer(ctx, from, to, amount)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "from balance: %s\nto balance: %s\n", res.FromBalance, res.ToBalance)
			if res.ConvertedAmount != nil {
				fmt.Fprintf(out, "converted: %s at %s\n", res.ConvertedAmount, res.Rate)
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var q client.HistoryQuery
	var from, to string

	cmd := &cobra.Command{
		Use:   "history <account>",
		Short: "Show the operations of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			if q.From, err = parseDate(from); err != nil {
				return err
			}
			if q.To, err = parseDate(to); err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			entries, err := a.client.History(ctx, id, q)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, "TIME", "TYPE", "AMOUNT", "BALANCE", "COUNTERPARTY")
			for _, e := range entries {
				row(tw, e.Timestamp.Format(time.DateTime), e.Kind, e.Delta(), e.BalanceAfter, e.Counterparty)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&q.Type, "type", "t", "all", "operation type (deposit, withdraw, transfer_in, transfer_out, buy_stock, sell_stock)")
	cmd.Flags().StringVar(&from, "from", "", "start date, YYYY-MM-DD or RFC3339")
	cmd.Flags().StringVar(&to, "to", "", "end date, YYYY-MM-DD or RFC3339")
	return cmd
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func newRatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rates",
		Short: "Show currency conversion rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			rates, err := a.client.Rates(ctx)
			if err != nil {
				return err
			}
			pairs := make([]string, 0, len(rates))
			for pair := range rates {
				pairs = append(pairs, pair)
			}
			sort.Strings(pairs)
			tw := newTable(cmd.OutOrStdout())
			row(tw, "PAIR", "RATE")
			for _, pair := range pairs {
				row(tw, pair, rates[pair].StringFixed(4))
			}
			return tw.Flush()
		},
	}
}

func newQuotesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quotes",
		Short: "Show current stock quotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			quotes, err := a.client.Quotes(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, "TICKER", "PRICE")
			for _, q := range quotes {
				row(tw, q.Ticker, formatMoney(q.Price, models.USD))
			}
			return tw.Flush()
		},
	}
}

func newBuyCmd(a *app) *cobra.Command {
	return newOrderCmd(a, models.SideBuy)
}

func newSellCmd(a *app) *cobra.Command {
	return newOrderCmd(a, models.SideSell)
}

func newOrderCmd(a *app, side models.Side) *cobra.Command {
	return &cobra.Command{
		Use:   side.String() + " <ticker> <quantity> <account>",
		Short: "Place a market order to " + side.String() + " shares",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := strings.ToUpper(args[0])
			quantity, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			id, err := parseAccountID(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()

			out := cmd.OutOrStdout()
			if side == models.SideBuy {
				res, err := a.client.Buy(ctx, ticker, quantity, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "bought %d %s at %s, cost %s, balance %s\n", quantity, ticker, res.Price, res.TotalCost, res.NewBalance)
				return nil
			}
			res, err := a.client.Sell(ctx, ticker, quantity, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sold %d %s at %s, revenue %s, balance %s\n", quantity, ticker, res.Price, res.TotalRevenue, res.NewBalance)
			return nil
		},
	}
}

func newPortfolioCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show positions marked to the current quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			positions, err := a.client.Portfolio(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, "TICKER", "QTY", "AVG", "PRICE", "PNL")
			total := decimal.Zero
			for _, p := range positions {
				row(tw, p.Ticker, p.Quantity, formatMoney(p.AvgPrice, models.USD), formatMoney(p.CurrentPrice, models.USD), formatMoney(p.PnL, models.USD))
				total = total.Add(p.PnL)
			}
			row(tw, "TOTAL", "", "", "", formatMoney(total, models.USD))
			return tw.Flush()
		},
	}
}

func newTradesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trades",
		Short: "List executed trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			trades, err := a.client.Trades(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, "TIME", "SIDE", "TICKER", "QTY", "PRICE")
			for _, tr := range trades {
				row(tw, tr.Timestamp.Format(time.DateTime), tr.Side, tr.Ticker, tr.Quantity, formatMoney(tr.Price, models.USD))
			}
			return tw.Flush()
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the trade journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			s, err := a.client.Statistics(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trades: %d (%d in the last 24h)\n", s.TotalTrades, s.Last24h)
			fmt.Fprintf(out, "buys:   %d, %s\n", s.Buys, formatMoney(s.BuyNotional, models.USD))
			fmt.Fprintf(out, "sells:  %d, %s\n", s.Sells, formatMoney(s.SellNotional, models.USD))
			return nil
		},
	}
}
