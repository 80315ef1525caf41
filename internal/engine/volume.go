package engine

import (
	"github.com/shopspring/decimal"

	"main/internal/symbols"
	"main/pkg/exception"
)

// Wire volume units are hundredths of a base unit; one standard lot is
// 100,000 base units.
const wireUnitsPerLot = 100_000

var wireUnitsPerContract = decimal.NewFromInt(100)

// SizeVolume resolves the wire volume for an order. Synthetic instruments
// size from the risk budget against the stop distance; everything else
// trades the configured default lot size.
func SizeVolume(cons symbols.Constraints, synthetic bool, riskAmount, stopTicks, defaultLots float64) (int64, error) {
	var volume decimal.Decimal
	if synthetic && riskAmount > 0 && stopTicks > 0 && cons.TickValue > 0 {
		lots := decimal.NewFromFloat(riskAmount).
			Div(decimal.NewFromFloat(stopTicks).Mul(decimal.NewFromFloat(cons.TickValue)))
		if cons.ContractSize > 0 && cons.MaxVolume > 0 {
			maxLots := decimal.NewFromInt(cons.MaxVolume).
				Div(decimal.NewFromInt(cons.ContractSize).Mul(wireUnitsPerContract))
			if lots.GreaterThan(maxLots) {
				lots = maxLots
			}
		}
		volume = lots.Mul(decimal.NewFromInt(cons.ContractSize)).Mul(wireUnitsPerContract)
	} else {
		volume = decimal.NewFromFloat(defaultLots).Mul(decimal.NewFromInt(wireUnitsPerLot))
	}

	raw := volume.IntPart()
	if raw <= 0 {
		return 0, exception.ErrOrderZeroVolume
	}
	return clampVolume(raw, cons), nil
}

// clampVolume applies min, then max, then step-floor, then re-checks both
// bounds; stepping down can undershoot min.
func clampVolume(v int64, cons symbols.Constraints) int64 {
	if cons.MinVolume > 0 && v < cons.MinVolume {
		v = cons.MinVolume
	}
	if cons.MaxVolume > 0 && v > cons.MaxVolume {
		v = cons.MaxVolume
	}
	if cons.StepVolume > 0 {
		v -= v % cons.StepVolume
	}
	if cons.MaxVolume > 0 && v > cons.MaxVolume {
		v = cons.MaxVolume
	}
	if cons.MinVolume > 0 && v < cons.MinVolume {
		v = cons.MinVolume
	}
	return v
}
