package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"yellowcore-go/internal/database"
	"yellowcore-go/internal/models"
	"yellowcore-go/internal/trader"
)

// Quote is the price of one symbol in the reference currency.
type Quote struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
}

// TransferResult is the outcome of a transfer. ConvertedAmount and Rate are
// set only across currencies.
type TransferResult struct {
	FromBalance     decimal.Decimal  `json:"from_balance"`
	ToBalance       decimal.Decimal  `json:"to_balance"`
	ConvertedAmount *decimal.Decimal `json:"converted_amount,omitempty"`
	Rate            *decimal.Decimal `json:"rate,omitempty"`
}

// HistoryQuery filters an account history. Zero values mean no filter.
type HistoryQuery struct {
	Type string
	From time.Time
	To   time.Time
}

// Health is the server liveness report.
type Health struct {
	FeedRunning bool   `json:"feed_running"`
	Uptime      string `json:"uptime"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	_, err := c.doRequest(ctx, http.MethodGet, "/health", c.request(ctx, &out))
	return out, err
}

// Register creates a user and returns its id.
func (c *Client) Register(ctx context.Context, username, password string) (models.UserID, error) {
	var out struct {
		UserID models.UserID `json:"user_id"`
	}
	req := c.request(ctx, &out).SetBody(map[string]string{"username": username, "password": password})
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/register", req); err != nil {
		return 0, fmt.Errorf("failed to register: %w", err)
	}
	return out.UserID, nil
}

// Login opens a session and keeps its token for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	req := c.request(ctx, &out).SetBody(map[string]string{"username": username, "password": password})
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/login", req); err != nil {
		return "", fmt.Errorf("failed to login: %w", err)
	}
	c.token = out.Token
	return out.Token, nil
}

// Logout ends the current session.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/logout", c.request(ctx, nil)); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	c.token = ""
	return nil
}

func (c *Client) OpenAccount(ctx context.Context, currency models.Currency) (models.AccountID, error) {
	var out struct {
		AccountID models.AccountID `json:"account_id"`
	}
	req := c.request(ctx, &out).SetBody(map[string]string{"currency": currency.String()})
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/accounts", req); err != nil {
		return 0, fmt.Errorf("failed to open account: %w", err)
	}
	return out.AccountID, nil
}

func (c *Client) Accounts(ctx context.Context) ([]models.Account, error) {
	var out struct {
		Accounts []models.Account `json:"accounts"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/accounts", c.request(ctx, &out)); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return out.Accounts, nil
}

func (c *Client) CloseAccount(ctx context.Context, id models.AccountID) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", id), c.request(ctx, nil)); err != nil {
		return fmt.Errorf("failed to close account %d: %w", id, err)
	}
	return nil
}

func (c *Client) Deposit(ctx context.Context, id models.AccountID, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.balanceOp(ctx, id, "deposit", amount)
}

func (c *Client) Withdraw(ctx context.Context, id models.AccountID, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.balanceOp(ctx, id, "withdraw", amount)
}

func (c *Client) balanceOp(ctx context.Context, id models.AccountID, op string, amount decimal.Decimal) (decimal.Decimal, error) {
	var out struct {
		NewBalance decimal.Decimal `json:"new_balance"`
	}
	req := c.request(ctx, &out).SetBody(map[string]decimal.Decimal{"amount": amount})
	if _, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/accounts/%d/%s", id, op), req); err != nil {
		return decimal.Zero, fmt.Errorf("failed to %s: %w", op, err)
	}
	return out.NewBalance, nil
}

func (c *Client) Transfer(ctx context.Context, from, to models.AccountID, amount decimal.Decimal) (TransferResult, error) {
	var out TransferResult
	req := c.request(ctx, &out).SetBody(map[string]any{"from_account": from, "to_account": to, "amount": amount})
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/transfers", req); err != nil {
		return TransferResult{}, fmt.Errorf("failed to transfer: %w", err)
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, id models.AccountID, q HistoryQuery) ([]models.HistoryEntry, error) {
	var out struct {
		History []models.HistoryEntry `json:"history"`
	}
	req := c.request(ctx, &out)
	if q.Type != "" {
		req.SetQueryParam("filter_type", q.Type)
	}
	if !q.From.IsZero() {
		req.SetQueryParam("from_date", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		req.SetQueryParam("to_date", q.To.Format(time.RFC3339))
	}
	if _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/accounts/%d/history", id), req); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return out.History, nil
}

// Rates returns conversion rates keyed "FROM_TO".
func (c *Client) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	var out struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/rates", c.request(ctx, &out)); err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}
	return out.Rates, nil
}

func (c *Client) Quotes(ctx context.Context) ([]Quote, error) {
	var out struct {
		Quotes []Quote `json:"quotes"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/quotes", c.request(ctx, &out)); err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}
	return out.Quotes, nil
}

type order struct {
	Ticker    string           `json:"ticker"`
	Quantity  int64            `json:"quantity"`
	AccountID models.AccountID `json:"account_id"`
}

func (c *Client) Buy(ctx context.Context, ticker string, quantity int64, account models.AccountID) (trader.BuyResult, error) {
	var out trader.BuyResult
	req := c.request(ctx, &out).SetBody(order{Ticker: ticker, Quantity: quantity, AccountID: account})
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/orders/buy", req); err != nil {
		return trader.BuyResult{}, fmt.Errorf("failed to buy %s: %w", ticker, err)
	}
	return out, nil
}

func (c *Client) Sell(ctx context.Context, ticker string, quantity int64, account models.AccountID) (trader.SellResult, error) {
	var out trader.SellResult
	req := c.request(ctx, &out).SetBody(order{Ticker: ticker, Quantity: quantity, AccountID: account})
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/orders/sell", req); err != nil {
		return trader.SellResult{}, fmt.Errorf("failed to sell %s: %w", ticker, err)
	}
	return out, nil
}

func (c *Client) Portfolio(ctx context.Context) ([]trader.PositionValue, error) {
	var out struct {
		Positions []trader.PositionValue `json:"positions"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/portfolio", c.request(ctx, &out)); err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return out.Positions, nil
}

func (c *Client) Trades(ctx context.Context) ([]models.Trade, error) {
	var out struct {
		Trades []models.Trade `json:"trades"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/trades", c.request(ctx, &out)); err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	return out.Trades, nil
}

func (c *Client) Statistics(ctx context.Context) (database.Statistics, error) {
	var out struct {
		Statistics database.Statistics `json:"statistics"`
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/statistics", c.request(ctx, &out)); err != nil {
		return database.Statistics{}, fmt.Errorf("failed to get statistics: %w", err)
	}
	return out.Statistics, nil
}

// Journal returns journaled trades, newest first. A limit of zero means all.
func (c *Client) Journal(ctx context.Context, limit int) ([]database.TradeRecord, error) {
	var out struct {
		Journal []database.TradeRecord `json:"journal"`
	}
	req := c.request(ctx, &out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/journal", req); err != nil {
		return nil, fmt.Errorf("failed to get journal: %w", err)
	}
	return out.Journal, nil
}
