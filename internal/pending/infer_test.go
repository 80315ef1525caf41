package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/model"
	"main/internal/model/enum"
)

func TestInferKindMarketWithoutEntry(t *testing.T) {
	in := model.Instruction{Side: enum.OrderSideBuy}
	assert.Equal(t, enum.OrderKindMarket, inferKind(in, 1.3050))
}

func TestInferKindFromReference(t *testing.T) {
	tests := []struct {
		name  string
		side  enum.OrderSide
		entry float64
		ref   float64
		want  enum.OrderKind
	}{
		{"buy below ref is limit", enum.OrderSideBuy, 1.3000, 1.3050, enum.OrderKindLimit},
		{"buy above ref is stop", enum.OrderSideBuy, 1.3100, 1.3050, enum.OrderKindStop},
		{"buy tie is stop", enum.OrderSideBuy, 1.3050, 1.3050, enum.OrderKindStop},
		{"sell above ref is limit", enum.OrderSideSell, 1.3100, 1.3050, enum.OrderKindLimit},
		{"sell below ref is stop", enum.OrderSideSell, 1.3000, 1.3050, enum.OrderKindStop},
		{"sell tie is stop", enum.OrderSideSell, 1.3050, 1.3050, enum.OrderKindStop},
		{"no reference is stop", enum.OrderSideBuy, 1.3000, 0, enum.OrderKindStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := model.Instruction{Side: tt.side, EntryPrice: tt.entry}
			assert.Equal(t, tt.want, inferKind(in, tt.ref))
		})
	}
}

func TestInferKindHonorsTextHints(t *testing.T) {
	in := model.Instruction{
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3100, // above ref, reference comparison would say stop
		RawText:    "BUY LIMIT EURUSD @ 1.3100",
	}
	assert.Equal(t, enum.OrderKindLimit, inferKind(in, 1.3050))
}

func TestInferKindStopLossIsNotAStopHint(t *testing.T) {
	in := model.Instruction{
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3000,
		RawText:    "buy EURUSD @ 1.3000, stop loss 1.2900",
	}
	assert.Equal(t, enum.OrderKindLimit, inferKind(in, 1.3050))
}

func TestInferKindOtherDirectionHintIgnored(t *testing.T) {
	in := model.Instruction{
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3000,
		RawText:    "sell stop below, buying here",
	}
	assert.Equal(t, enum.OrderKindLimit, inferKind(in, 1.3050))
}

func TestInferKindOppositeLegComplementsHint(t *testing.T) {
	in := model.Instruction{
		Side:        enum.OrderSideBuy,
		EntryPrice:  1.3100,
		RawText:     "BUY LIMIT EURUSD @ 1.3100",
		OppositeLeg: true,
	}
	assert.Equal(t, enum.OrderKindStop, inferKind(in, 1.3050))
}

func TestInferKindOppositeLegUsesInvertedSide(t *testing.T) {
	// Original buy with entry below reference; the opposite leg is a sell,
	// for which entry below reference means stop.
	in := model.Instruction{
		Side:        enum.OrderSideBuy,
		EntryPrice:  1.3000,
		OppositeLeg: true,
	}
	assert.Equal(t, enum.OrderKindStop, inferKind(in, 1.3050))
}
