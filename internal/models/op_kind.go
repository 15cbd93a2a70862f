package models

import "fmt"

// OpKind tags an entry of an account history.
type OpKind int

const (
	OpDeposit OpKind = iota
	OpWithdraw
	OpTransferIn
	OpTransferOut
	OpBuyStock
	OpSellStock
)

// OpKinds lists every operation kind in declaration order.
var OpKinds = []OpKind{OpDeposit, OpWithdraw, OpTransferIn, OpTransferOut, OpBuyStock, OpSellStock}

func (k OpKind) String() string {
	switch k {
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	case OpTransferIn:
		return "transfer_in"
	case OpTransferOut:
		return "transfer_out"
	case OpBuyStock:
		return "buy_stock"
	case OpSellStock:
		return "sell_stock"
	}
	return "???"
}

// ParseOpKind maps an external label back to an OpKind.
func ParseOpKind(s string) (OpKind, bool) {
	for _, k := range OpKinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Credit reports whether the operation increases the balance.
func (k OpKind) Credit() bool {
	return k == OpDeposit || k == OpTransferIn || k == OpSellStock
}

func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OpKind) UnmarshalText(text []byte) error {
	parsed, ok := ParseOpKind(string(text))
	if !ok {
		return fmt.Errorf("unrecognized operation kind %q", string(text))
	}
	*k = parsed
	return nil
}
