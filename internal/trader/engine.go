// Package trader executes stock orders against the ledger at feed prices.
//
// The engine never holds its own lock while calling the ledger or the feed.
// Buys debit first and then record the position; sells reserve shares first,
// then credit the account, and release the reservation if anything fails.
package trader

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"yellowcore-go/internal/models"
)

// Ledger is the part of the account ledger the engine needs.
type Ledger interface {
	GetAccount(id models.AccountID) (models.Account, error)
	DebitForTrade(owner models.UserID, id models.AccountID, amount decimal.Decimal, ticker string) (decimal.Decimal, error)
	CreditForTrade(owner models.UserID, id models.AccountID, amount decimal.Decimal, ticker string) (decimal.Decimal, error)
}

// PriceSource supplies quotes in the reference currency and conversion rates.
type PriceSource interface {
	Reference() models.Currency
	GetQuote(symbol string) decimal.Decimal
	GetRate(from, to models.Currency) (decimal.Decimal, error)
}

// TradeRecorder receives every executed trade after the engine has released its lock.
type TradeRecorder interface {
	RecordTrade(owner models.UserID, trade models.Trade) error
}

// BuyResult describes an executed buy. TotalCost is in the account currency.
type BuyResult struct {
	Price      decimal.Decimal `json:"price"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// SellResult describes an executed sell. TotalRevenue is in the account currency.
type SellResult struct {
	Price        decimal.Decimal `json:"price"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}

// PositionValue is a position marked to the current quote.
type PositionValue struct {
	models.Position
	CurrentPrice decimal.Decimal `json:"current_price"`
	PnL          decimal.Decimal `json:"pnl"`
}

// holding is a position plus the shares promised to in-flight sells.
type holding struct {
	quantity int64
	reserved int64
	avgPrice decimal.Decimal
}

// Engine owns portfolios and trade history.
type Engine struct {
	logger   *zap.Logger
	ledger   Ledger
	prices   PriceSource
	recorder TradeRecorder
	now      func() time.Time

	mu         sync.Mutex
	portfolios map[models.UserID]map[string]*holding
	trades     map[models.UserID][]models.Trade
}

// NewEngine creates a trading engine. recorder may be nil.
func NewEngine(logger *zap.Logger, ledger Ledger, prices PriceSource, recorder TradeRecorder) *Engine {
	return &Engine{
		logger:     logger.Named("trader"),
		ledger:     ledger,
		prices:     prices,
		recorder:   recorder,
		now:        time.Now,
		portfolios: make(map[models.UserID]map[string]*holding),
		trades:     make(map[models.UserID][]models.Trade),
	}
}

// Buy purchases quantity shares of ticker, paying from accountID.
func (e *Engine) Buy(owner models.UserID, ticker string, quantity int64, accountID models.AccountID) (BuyResult, error) {
	price, err := e.validateOrder(ticker, quantity)
	if err != nil {
		return BuyResult{}, err
	}

	if err := e.checkCapacity(owner, ticker, quantity); err != nil {
		return BuyResult{}, err
	}

	cost, err := e.localAmount(owner, accountID, price, quantity)
	if err != nil {
		return BuyResult{}, err
	}

	// The only step that can fail for lack of funds. Nothing has been touched yet.
	newBalance, err := e.ledger.DebitForTrade(owner, accountID, cost, ticker)
	if err != nil {
		return BuyResult{}, fmt.Errorf("buy %s: %w", ticker, err)
	}

	trade, err := e.commitBuy(owner, ticker, quantity, price)
	if err != nil {
		// A concurrent buy filled the position after checkCapacity; refund the debit.
		if _, refundErr := e.ledger.CreditForTrade(owner, accountID, cost, ticker); refundErr != nil {
			e.logger.Error("Failed to refund buy",
				zap.Uint64("owner_id", uint64(owner)),
				zap.Uint64("account_id", uint64(accountID)),
				zap.Stringer("amount", cost),
				zap.Error(refundErr))
		}
		return BuyResult{}, err
	}
	e.record(owner, trade)

	e.logger.Debug("Buy executed",
		zap.Uint64("owner_id", uint64(owner)),
		zap.String("ticker", ticker),
		zap.Int64("quantity", quantity),
		zap.Stringer("price", price),
		zap.Stringer("total_cost", cost))

	return BuyResult{Price: price, TotalCost: cost, NewBalance: newBalance}, nil
}

// Sell disposes of quantity shares of ticker, crediting accountID.
func (e *Engine) Sell(owner models.UserID, ticker string, quantity int64, accountID models.AccountID) (SellResult, error) {
	price, err := e.validateOrder(ticker, quantity)
	if err != nil {
		return SellResult{}, err
	}

	if err := e.reserve(owner, ticker, quantity); err != nil {
		return SellResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			e.release(owner, ticker, quantity)
		}
	}()

	revenue, err := e.localAmount(owner, accountID, price, quantity)
	if err != nil {
		return SellResult{}, err
	}

	newBalance, err := e.ledger.CreditForTrade(owner, accountID, revenue, ticker)
	if err != nil {
		return SellResult{}, fmt.Errorf("sell %s: %w", ticker, err)
	}

	trade := e.commitSell(owner, ticker, quantity, price)
	committed = true
	e.record(owner, trade)

	e.logger.Debug("Sell executed",
		zap.Uint64("owner_id", uint64(owner)),
		zap.String("ticker", ticker),
		zap.Int64("quantity", quantity),
		zap.Stringer("price", price),
		zap.Stringer("total_revenue", revenue))

	return SellResult{Price: price, TotalRevenue: revenue, NewBalance: newBalance}, nil
}

// GetPortfolio returns the committed positions of owner, ordered by ticker.
func (e *Engine) GetPortfolio(owner models.UserID) []models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]models.Position, 0, len(e.portfolios[owner]))
	for ticker, h := range e.portfolios[owner] {
		result = append(result, models.Position{Ticker: ticker, Quantity: h.quantity, AvgPrice: h.avgPrice})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ticker < result[j].Ticker })
	return result
}

// GetTrades returns the trades of owner in execution order.
func (e *Engine) GetTrades(owner models.UserID) []models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Trade, len(e.trades[owner]))
	copy(out, e.trades[owner])
	return out
}

// Valuate marks every position of owner to the current quote.
func (e *Engine) Valuate(owner models.UserID) []PositionValue {
	positions := e.GetPortfolio(owner)

	out := make([]PositionValue, 0, len(positions))
	for _, p := range positions {
		current := e.prices.GetQuote(p.Ticker)
		out = append(out, PositionValue{
			Position:     p,
			CurrentPrice: current,
			PnL:          current.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity)),
		})
	}
	return out
}

func (e *Engine) validateOrder(ticker string, quantity int64) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, models.ErrInvalidQuantity
	}
	price := e.prices.GetQuote(ticker)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrUnknownSymbol, ticker)
	}
	return price, nil
}

// localAmount checks that owner holds accountID and converts price*quantity
// from the reference currency into the account currency, in minor units.
func (e *Engine) localAmount(owner models.UserID, accountID models.AccountID, price decimal.Decimal, quantity int64) (decimal.Decimal, error) {
	acc, err := e.ledger.GetAccount(accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, err)
	}
	if acc.OwnerID != owner {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, models.ErrNotOwner)
	}
	rate, err := e.prices.GetRate(e.prices.Reference(), acc.Currency)
	if err != nil {
		return decimal.Zero, err
	}
	amount := price.Mul(decimal.NewFromInt(quantity)).Mul(rate).Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: order notional rounds to zero", models.ErrInvalidQuantity)
	}
	return amount, nil
}

// checkCapacity rejects a buy that would overflow the position size.
func (e *Engine) checkCapacity(owner models.UserID, ticker string, quantity int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return capacityLocked(e.portfolios[owner][ticker], ticker, quantity)
}

func capacityLocked(h *holding, ticker string, quantity int64) error {
	if h != nil && quantity > math.MaxInt64-h.quantity {
		return fmt.Errorf("%w: position in %s would overflow", models.ErrInvalidQuantity, ticker)
	}
	return nil
}

func (e *Engine) commitBuy(owner models.UserID, ticker string, quantity int64, price decimal.Decimal) (models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := capacityLocked(e.portfolios[owner][ticker], ticker, quantity); err != nil {
		return models.Trade{}, err
	}

	positions, ok := e.portfolios[owner]
	if !ok {
		positions = make(map[string]*holding)
		e.portfolios[owner] = positions
	}
	h, ok := positions[ticker]
	if !ok {
		h = &holding{avgPrice: decimal.Zero}
		positions[ticker] = h
	}

	total := h.avgPrice.Mul(decimal.NewFromInt(h.quantity)).Add(price.Mul(decimal.NewFromInt(quantity)))
	h.quantity += quantity
	h.avgPrice = total.Div(decimal.NewFromInt(h.quantity))

	return e.appendTradeLocked(owner, ticker, models.SideBuy, quantity, price), nil
}

// reserve promises quantity shares to an in-flight sell.
func (e *Engine) reserve(owner models.UserID, ticker string, quantity int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.portfolios[owner][ticker]
	if !ok || h.quantity-h.reserved < quantity {
		return fmt.Errorf("%w: %s", models.ErrInsufficientShares, ticker)
	}
	h.reserved += quantity
	return nil
}

// release undoes a reservation. The holding cannot have been removed while
// the reservation was outstanding.
func (e *Engine) release(owner models.UserID, ticker string, quantity int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.portfolios[owner][ticker]
	if !ok || h.reserved < quantity {
		panic(fmt.Sprintf("trader: releasing %d %s for user %d without a matching reservation", quantity, ticker, owner))
	}
	h.reserved -= quantity
	e.logger.Debug("Reservation released",
		zap.Uint64("owner_id", uint64(owner)),
		zap.String("ticker", ticker),
		zap.Int64("quantity", quantity))
}

func (e *Engine) commitSell(owner models.UserID, ticker string, quantity int64, price decimal.Decimal) models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := e.portfolios[owner]
	h := positions[ticker]
	h.reserved -= quantity
	h.quantity -= quantity
	if h.quantity == 0 {
		delete(positions, ticker)
		if len(positions) == 0 {
			delete(e.portfolios, owner)
		}
	}

	return e.appendTradeLocked(owner, ticker, models.SideSell, quantity, price)
}

func (e *Engine) appendTradeLocked(owner models.UserID, ticker string, side models.Side, quantity int64, price decimal.Decimal) models.Trade {
	trade := models.Trade{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		Ticker:    ticker,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
	}
	e.trades[owner] = append(e.trades[owner], trade)
	return trade
}

func (e *Engine) record(owner models.UserID, trade models.Trade) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordTrade(owner, trade); err != nil {
		e.logger.Error("Failed to journal trade", zap.String("trade_id", trade.ID), zap.Error(err))
	}
}
