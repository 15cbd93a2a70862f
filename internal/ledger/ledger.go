// Package ledger keeps user accounts and their append-only operation history.
//
// A single mutex guards both the account map and the history map, so a balance
// change and the history entry that explains it are never observed apart.
package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"yellowcore-go/internal/models"
)

const firstAccountID models.AccountID = 100001

// closeEpsilon is the largest absolute balance an account may be closed with.
var closeEpsilon = decimal.New(1, -9)

// TransferResult holds the balances after a transfer and the credited amount.
type TransferResult struct {
	FromBalance     decimal.Decimal `json:"from_balance"`
	ToBalance       decimal.Decimal `json:"to_balance"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithInvariantChecks makes every mutation verify that the touched accounts are
// non-negative and equal to the sum of their history. A violation panics.
func WithInvariantChecks() Option {
	return func(l *Ledger) { l.checkInvariants = true }
}

// WithClock overrides the timestamp source for history entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger owns accounts and their histories.
type Ledger struct {
	logger          *zap.Logger
	checkInvariants bool
	now             func() time.Time

	mu       sync.Mutex
	accounts map[models.AccountID]models.Account
	history  map[models.AccountID][]models.HistoryEntry
	nextID   models.AccountID
}

// New creates an empty ledger.
func New(logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		logger:   logger.Named("ledger"),
		now:      time.Now,
		accounts: make(map[models.AccountID]models.Account),
		history:  make(map[models.AccountID][]models.HistoryEntry),
		nextID:   firstAccountID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open creates a zero-balance account for owner and returns its id.
func (l *Ledger) Open(owner models.UserID, currency models.Currency) models.AccountID {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.accounts[id] = models.Account{ID: id, OwnerID: owner, Currency: currency, Balance: decimal.Zero}

	l.logger.Debug("Account opened",
		zap.Uint64("account_id", uint64(id)),
		zap.Uint64("owner_id", uint64(owner)),
		zap.Stringer("currency", currency))
	return id
}

// Close removes an empty account together with its history.
func (l *Ledger) Close(owner models.UserID, id models.AccountID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.ownedLocked(owner, id)
	if err != nil {
		return err
	}
	if acc.Balance.Abs().GreaterThan(closeEpsilon) {
		return fmt.Errorf("close account %d: %w", id, models.ErrNonZeroBalance)
	}

	delete(l.accounts, id)
	delete(l.history, id)
	l.logger.Debug("Account closed", zap.Uint64("account_id", uint64(id)))
	return nil
}

// Deposit credits a strictly positive amount and returns the new balance.
func (l *Ledger) Deposit(owner models.UserID, id models.AccountID, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.credit(owner, id, amount, models.OpDeposit, "")
}

// Withdraw debits a strictly positive amount not exceeding the balance.
func (l *Ledger) Withdraw(owner models.UserID, id models.AccountID, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.debit(owner, id, amount, models.OpWithdraw, "")
}

// DebitForTrade pays for a stock purchase; the history entry carries the ticker.
func (l *Ledger) DebitForTrade(owner models.UserID, id models.AccountID, amount decimal.Decimal, ticker string) (decimal.Decimal, error) {
	return l.debit(owner, id, amount, models.OpBuyStock, ticker)
}

// CreditForTrade books the proceeds of a stock sale; the history entry carries the ticker.
func (l *Ledger) CreditForTrade(owner models.UserID, id models.AccountID, amount decimal.Decimal, ticker string) (decimal.Decimal, error) {
	return l.credit(owner, id, amount, models.OpSellStock, ticker)
}

// Transfer moves amount out of from and credits amount*rate to to. Only the
// source must belong to owner.
func (l *Ledger) Transfer(owner models.UserID, from, to models.AccountID, amount, rate decimal.Decimal) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, models.ErrInvalidAmount
	}
	if !rate.IsPositive() {
		return TransferResult{}, models.ErrInvalidRate
	}
	if from == to {
		return TransferResult{}, models.ErrSameAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := l.ownedLocked(owner, from)
	if err != nil {
		return TransferResult{}, fmt.Errorf("source account: %w", err)
	}
	dst, ok := l.accounts[to]
	if !ok {
		return TransferResult{}, fmt.Errorf("destination account %d: %w", to, models.ErrAccountNotFound)
	}
	if src.Balance.LessThan(amount) {
		return TransferResult{}, models.ErrInsufficientFunds
	}

	converted := amount.Mul(rate)
	src.Balance = src.Balance.Sub(amount)
	dst.Balance = dst.Balance.Add(converted)
	l.accounts[from] = src
	l.accounts[to] = dst

	l.recordLocked(from, models.OpTransferOut, amount, src.Balance, "-> account "+strconv.FormatUint(uint64(to), 10))
	l.recordLocked(to, models.OpTransferIn, converted, dst.Balance, "<- account "+strconv.FormatUint(uint64(from), 10))
	l.verifyLocked(from, to)

	l.logger.Debug("Transfer booked",
		zap.Uint64("from", uint64(from)),
		zap.Uint64("to", uint64(to)),
		zap.Stringer("amount", amount),
		zap.Stringer("converted", converted))

	return TransferResult{FromBalance: src.Balance, ToBalance: dst.Balance, ConvertedAmount: converted}, nil
}

// GetAccount returns a snapshot of the account.
func (l *Ledger) GetAccount(id models.AccountID) (models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return acc, nil
}

// GetAccountsFor returns snapshots of every account of owner, ordered by id.
func (l *Ledger) GetAccountsFor(owner models.UserID) []models.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]models.Account, 0)
	for _, acc := range l.accounts {
		if acc.OwnerID == owner {
			result = append(result, acc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetHistory returns a copy of the account history in insertion order.
func (l *Ledger) GetHistory(id models.AccountID) ([]models.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[id]; !ok {
		return nil, models.ErrAccountNotFound
	}
	entries := l.history[id]
	out := make([]models.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Audit re-derives every balance from its history and reports the first drift found.
func (l *Ledger) Audit() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id := range l.accounts {
		if err := l.auditLocked(id); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) credit(owner models.UserID, id models.AccountID, amount decimal.Decimal, kind models.OpKind, counterparty string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.ownedLocked(owner, id)
	if err != nil {
		return decimal.Zero, err
	}
	acc.Balance = acc.Balance.Add(amount)
	l.accounts[id] = acc
	l.recordLocked(id, kind, amount, acc.Balance, counterparty)
	l.verifyLocked(id)

	l.logger.Debug("Account credited",
		zap.Uint64("account_id", uint64(id)),
		zap.Stringer("kind", kind),
		zap.Stringer("amount", amount))
	return acc.Balance, nil
}

func (l *Ledger) debit(owner models.UserID, id models.AccountID, amount decimal.Decimal, kind models.OpKind, counterparty string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.ownedLocked(owner, id)
	if err != nil {
		return decimal.Zero, err
	}
	if acc.Balance.LessThan(amount) {
		return decimal.Zero, models.ErrInsufficientFunds
	}
	acc.Balance = acc.Balance.Sub(amount)
	l.accounts[id] = acc
	l.recordLocked(id, kind, amount, acc.Balance, counterparty)
	l.verifyLocked(id)

	l.logger.Debug("Account debited",
		zap.Uint64("account_id", uint64(id)),
		zap.Stringer("kind", kind),
		zap.Stringer("amount", amount))
	return acc.Balance, nil
}

func (l *Ledger) ownedLocked(owner models.UserID, id models.AccountID) (models.Account, error) {
	acc, ok := l.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("account %d: %w", id, models.ErrAccountNotFound)
	}
	if acc.OwnerID != owner {
		return models.Account{}, fmt.Errorf("account %d: %w", id, models.ErrNotOwner)
	}
	return acc, nil
}

func (l *Ledger) recordLocked(id models.AccountID, kind models.OpKind, amount, balanceAfter decimal.Decimal, counterparty string) {
	l.history[id] = append(l.history[id], models.HistoryEntry{
		Timestamp:    l.now(),
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Counterparty: counterparty,
	})
}

func (l *Ledger) verifyLocked(ids ...models.AccountID) {
	if !l.checkInvariants {
		return
	}
	for _, id := range ids {
		if err := l.auditLocked(id); err != nil {
			panic(err)
		}
	}
}

func (l *Ledger) auditLocked(id models.AccountID) error {
	acc := l.accounts[id]
	if acc.Balance.IsNegative() {
		return fmt.Errorf("account %d has negative balance %s", id, acc.Balance)
	}
	sum := decimal.Zero
	for _, e := range l.history[id] {
		sum = sum.Add(e.Delta())
	}
	if !sum.Equal(acc.Balance) {
		return fmt.Errorf("account %d balance %s differs from history total %s", id, acc.Balance, sum)
	}
	return nil
}
