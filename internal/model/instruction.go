package model

import (
	"time"

	"main/internal/model/enum"
)

// Instruction is one trading instruction consumed from the signal layer.
// Prices are zero when the source did not specify them.
type Instruction struct {
	// ID is stable across restarts; duplicate suppression keys on it.
	ID          string
	Asset       string
	Side        enum.OrderSide
	EntryPrice  float64
	StopLoss    float64
	TakeProfit  float64
	RawText     string
	OppositeLeg bool
	ReceivedAt  time.Time
}

// LegKey identifies one leg of an instruction. The original and opposite
// leg of the same instruction are tracked independently.
type LegKey struct {
	InstructionID string
	OppositeLeg   bool
}

// Leg returns the suppression key for this instruction.
func (in Instruction) Leg() LegKey {
	return LegKey{InstructionID: in.ID, OppositeLeg: in.OppositeLeg}
}

// OrderResult is the structured outcome of one order attempt. Every
// attempt resolves to one of these; nothing rolls back silently.
type OrderResult struct {
	Success           bool
	OrderID           int64
	PositionID        int64
	ExecPrice         float64
	Volume            int64
	ProtectiveApplied bool
	Pending           bool
	Reason            string
}

// Fill is the value handed to downstream collaborators after a completed
// order.
type Fill struct {
	InstructionID string
	PositionID    int64
	Asset         string
	Side          enum.OrderSide
	Price         float64
	Volume        int64
	FilledAt      time.Time
}
