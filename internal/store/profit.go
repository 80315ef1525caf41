package store

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// Wire volume is in hundredths of a base unit.
var volumeScale = decimal.NewFromInt(100)

// Profit computes the realized profit of a closed trade from its prices.
// Sell trades profit when price falls.
func Profit(side string, entryPrice, exitPrice float64, volume int64) float64 {
	diff := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(entryPrice))
	if side == enum.OrderSideSell.String() {
		diff = diff.Neg()
	}
	units := decimal.NewFromInt(volume).Div(volumeScale)
	out, _ := diff.Mul(units).Round(8).Float64()
	return out
}
