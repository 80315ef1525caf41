package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/errors"
	"main/pkg/exception"
)

// Trade status values.
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// Close reasons.
const (
	CloseReasonTarget = "TARGET"
	CloseReasonStop   = "STOP"
	CloseReasonEarly  = "EARLY"
)

// TradeRecord is one executed trade. PositionID is the venue's position
// id; inserts are idempotent on it so duplicate fill events never create a
// second row.
type TradeRecord struct {
	ID            uint   `gorm:"primaryKey"`
	PositionID    int64  `gorm:"uniqueIndex"`
	InstructionID string `gorm:"index"`
	Symbol        string
	Side          string
	EntryPrice    float64
	ExitPrice     float64
	Volume        int64
	Profit        float64
	Status        string
	CloseReason   string
	Notes         string
	OpenedAt      time.Time
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProcessedInstruction marks instruction ids already acted on, surviving
// restarts.
type ProcessedInstruction struct {
	ID            uint   `gorm:"primaryKey"`
	InstructionID string `gorm:"uniqueIndex"`
	CreatedAt     time.Time
}

// Store persists trades and processed-instruction markers.
type Store struct {
	db *gorm.DB
}

// New wraps a gorm connection.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, exception.ErrNilStoreClient
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&TradeRecord{}, &ProcessedInstruction{})
}

// IsProcessed reports whether the instruction id was already acted on.
func (s *Store) IsProcessed(ctx context.Context, instructionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ProcessedInstruction{}).
		Where("instruction_id = ?", instructionID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "query processed instruction")
	}
	return count > 0, nil
}

// MarkProcessed records the instruction id. Safe to call twice.
func (s *Store) MarkProcessed(ctx context.Context, instructionID string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ProcessedInstruction{InstructionID: instructionID}).Error
	return errors.Wrap(err, "mark instruction processed")
}

// InsertTrade persists a new trade row, idempotent on position id.
func (s *Store) InsertTrade(ctx context.Context, rec *TradeRecord) error {
	if rec.Status == "" {
		rec.Status = TradeStatusOpen
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "position_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
	return errors.Wrap(err, "insert trade")
}

// TradeByPositionID looks up the trade row linked to a venue position.
func (s *Store) TradeByPositionID(ctx context.Context, positionID int64) (*TradeRecord, error) {
	var rec TradeRecord
	err := s.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exception.ErrTradeNotFound
		}
		return nil, errors.Wrap(err, "query trade")
	}
	return &rec, nil
}

// CloseTrade records the exit of a position. venueProfit wins when the
// venue reported one; otherwise profit is computed from the prices.
func (s *Store) CloseTrade(ctx context.Context, positionID int64, exitPrice, venueProfit float64, reason string) error {
	rec, err := s.TradeByPositionID(ctx, positionID)
	if err != nil {
		return err
	}

	profit := venueProfit
	if profit == 0 {
		profit = Profit(rec.Side, rec.EntryPrice, exitPrice, rec.Volume)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).
		Model(&TradeRecord{}).
		Where("position_id = ?", positionID).
		Updates(map[string]any{
			"exit_price":   exitPrice,
			"profit":       profit,
			"status":       TradeStatusClosed,
			"close_reason": reason,
			"closed_at":    &now,
		}).Error
	return errors.Wrap(err, "close trade")
}
