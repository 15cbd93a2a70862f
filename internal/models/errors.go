package models

import "errors"

// Failure kinds surfaced by the ledger, the price feed and the trading engine.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidRate         = errors.New("invalid rate")
	ErrSameAccount         = errors.New("source and destination accounts are the same")
	ErrNotOwner            = errors.New("not the owner of the account")
	ErrAccountNotFound     = errors.New("account not found")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNonZeroBalance      = errors.New("balance not zero")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)
