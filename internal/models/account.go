package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserID identifies an authenticated owner.
type UserID uint64

// AccountID identifies a ledger account.
type AccountID uint64

// Account is a snapshot of a ledger account.
type Account struct {
	ID       AccountID       `json:"id"`
	OwnerID  UserID          `json:"owner_id"`
	Currency Currency        `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// HistoryEntry is one append-only record of an account history.
type HistoryEntry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Kind         OpKind          `json:"op_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// Delta returns the signed effect of the entry on the balance.
func (e HistoryEntry) Delta() decimal.Decimal {
	if e.Kind.Credit() {
		return e.Amount
	}
	return e.Amount.Neg()
}

// HistoryFilter narrows a history listing. Zero values match everything.
type HistoryFilter struct {
	Kind *OpKind
	From time.Time
	To   time.Time
}

// FilterHistory returns the entries matching f, preserving order.
func FilterHistory(entries []HistoryEntry, f HistoryFilter) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if f.Kind != nil && e.Kind != *f.Kind {
			continue
		}
		if !f.From.IsZero() && e.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Timestamp.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}
