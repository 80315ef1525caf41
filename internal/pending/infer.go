package pending

import (
	"strings"

	"main/internal/model"
	"main/internal/model/enum"
)

// inferKind decides market, limit, or stop for one instruction. Explicit
// hints in the source text win; otherwise the entry price is compared
// against the live reference price.
func inferKind(in model.Instruction, refPrice float64) enum.OrderKind {
	if in.EntryPrice == 0 {
		return enum.OrderKindMarket
	}

	if hinted, ok := hintedKind(in.RawText, in.Side); ok {
		if in.OppositeLeg {
			// An asymmetric hint flips for the opposite leg; carrying it
			// over unchanged would make the leg immediately marketable.
			return hinted.Complement()
		}
		return hinted
	}

	side := in.Side
	if in.OppositeLeg {
		side = side.Opposite()
	}
	return kindFromReference(side, in.EntryPrice, refPrice)
}

// hintedKind scans the source text for explicit order-type words, relative
// to the original trade direction. "stop loss" never reads as a stop
// hint, and a hint bound to the other direction does not apply.
func hintedKind(raw string, side enum.OrderSide) (enum.OrderKind, bool) {
	text := strings.ToLower(raw)
	text = strings.NewReplacer("stop loss", "", "stop-loss", "", "stoploss", "").Replace(text)

	sideWord := "buy"
	otherWord := "sell"
	if side == enum.OrderSideSell {
		sideWord, otherWord = otherWord, sideWord
	}

	limit := strings.Contains(text, "limit")
	stop := strings.Contains(text, "stop")

	if strings.Contains(text, otherWord+" limit") && !strings.Contains(text, sideWord+" limit") {
		limit = false
	}
	if strings.Contains(text, otherWord+" stop") && !strings.Contains(text, sideWord+" stop") {
		stop = false
	}

	switch {
	case limit && !stop:
		return enum.OrderKindLimit, true
	case stop && !limit:
		return enum.OrderKindStop, true
	default:
		return 0, false
	}
}

// kindFromReference compares entry against the market. A buy resting
// above the market can only trigger on the way up, a stop; below, a
// limit. Sell is reversed. Ties resolve to stop, as does a missing
// reference price.
func kindFromReference(side enum.OrderSide, entry, ref float64) enum.OrderKind {
	if ref == 0 {
		return enum.OrderKindStop
	}
	if side == enum.OrderSideSell {
		switch {
		case entry < ref:
			return enum.OrderKindStop
		case entry > ref:
			return enum.OrderKindLimit
		}
		return enum.OrderKindStop
	}
	switch {
	case entry > ref:
		return enum.OrderKindStop
	case entry < ref:
		return enum.OrderKindLimit
	}
	return enum.OrderKindStop
}
