package orders

import "github.com/shopspring/decimal"

// Line returns the captured unit price and line total for one requested item.
// Fixed-point arithmetic, no float drift. Quantity validity is enforced by
// the orchestrator before pricing.
func Line(unitPrice decimal.Decimal, qty int) (unit, total decimal.Decimal) {
	return unitPrice, unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}
