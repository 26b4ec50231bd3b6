package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrBelowMinNotional = errors.New("order value is below exchange minimum")

// CheckBuy evaluates the buy gates for a symbol. Flags are read once per call.
func CheckBuy(flags FlagProvider, hasPosition bool) BuyDecision {
	if !flags.StopBuys() {
		return BuyDecision{Allowed: true}
	}

	if !hasPosition {
		return BuyDecision{Reason: "stop detected, ignoring buy signals"}
	}

	if flags.AllowTopUps() {
		return BuyDecision{Allowed: true, Reason: "stop detected, top-up of existing position allowed"}
	}

	return BuyDecision{Reason: "stop detected, top-ups disabled"}
}

// CheckMinNotional rejects orders whose value qty*price is below minimum.
func CheckMinNotional(qty, price, minimum decimal.Decimal) error {
	value := qty.Mul(price)
	if value.LessThan(minimum) {
		return fmt.Errorf("%w: minimum %s, qty %s, price %s, value %s",
			ErrBelowMinNotional, minimum, qty, price, value)
	}
	return nil
}
