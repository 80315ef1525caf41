package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfitBuy(t *testing.T) {
	// 20000 wire units = 200 base units.
	assert.InDelta(t, 2.0, Profit("BUY", 1.2000, 1.2100, 20000), 1e-9)
	assert.InDelta(t, -2.0, Profit("BUY", 1.2100, 1.2000, 20000), 1e-9)
}

func TestProfitSell(t *testing.T) {
	assert.InDelta(t, 2.0, Profit("SELL", 1.2100, 1.2000, 20000), 1e-9)
	assert.InDelta(t, -2.0, Profit("SELL", 1.2000, 1.2100, 20000), 1e-9)
}

func TestProfitZeroMove(t *testing.T) {
	assert.Zero(t, Profit("BUY", 1.5, 1.5, 100000))
}
