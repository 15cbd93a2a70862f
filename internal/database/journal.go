package database

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"yellowcore-go/internal/models"
)

// TradeRecord is an executed trade as stored in the journal.
type TradeRecord struct {
	gorm.Model
	TradeID    string          `gorm:"uniqueIndex;not null" json:"trade_id"`
	OwnerID    uint64          `gorm:"index;not null" json:"owner_id"`
	Ticker     string          `gorm:"not null" json:"ticker"`
	Side       string          `gorm:"not null" json:"side"`
	Quantity   int64           `gorm:"not null" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:text;not null" json:"price"`
	Notional   decimal.Decimal `gorm:"type:text;not null" json:"notional"`
	ExecutedAt time.Time       `gorm:"index" json:"executed_at"`
}

// Statistics summarises the journaled trades of one owner.
type Statistics struct {
	TotalTrades  int64           `json:"total_trades"`
	Buys         int64           `json:"buys"`
	Sells        int64           `json:"sells"`
	BuyNotional  decimal.Decimal `json:"buy_notional"`
	SellNotional decimal.Decimal `json:"sell_notional"`
	Last24h      int64           `json:"last_24h"`
}

// Journal appends executed trades to the database.
type Journal struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewJournal wraps an open database.
func NewJournal(db *gorm.DB, logger *zap.Logger) *Journal {
	return &Journal{db: db, logger: logger.Named("journal")}
}

// RecordTrade stores one trade.
func (j *Journal) RecordTrade(owner models.UserID, trade models.Trade) error {
	record := TradeRecord{
		TradeID:    trade.ID,
		OwnerID:    uint64(owner),
		Ticker:     trade.Ticker,
		Side:       trade.Side.String(),
		Quantity:   trade.Quantity,
		Price:      trade.Price,
		Notional:   trade.Price.Mul(decimal.NewFromInt(trade.Quantity)),
		ExecutedAt: trade.Timestamp,
	}
	if err := j.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to save trade %s: %w", trade.ID, err)
	}
	j.logger.Debug("Trade journaled", zap.String("trade_id", trade.ID), zap.Uint("row_id", record.ID))
	return nil
}

// ListTrades returns the most recent trades of owner first. A limit of zero or less means all.
func (j *Journal) ListTrades(owner models.UserID, limit int) ([]TradeRecord, error) {
	var trades []TradeRecord
	q := j.db.Where("owner_id = ?", uint64(owner)).Order("executed_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	return trades, nil
}

// Statistics aggregates the journal of owner.
func (j *Journal) Statistics(owner models.UserID) (Statistics, error) {
	trades, err := j.ListTrades(owner, 0)
	if err != nil {
		return Statistics{}, err
	}

	since24h := time.Now().Add(-24 * time.Hour)
	stats := Statistics{BuyNotional: decimal.Zero, SellNotional: decimal.Zero}
	for _, trade := range trades {
		stats.TotalTrades++
		if trade.Side == models.SideBuy.String() {
			stats.Buys++
			stats.BuyNotional = stats.BuyNotional.Add(trade.Notional)
		} else {
			stats.Sells++
			stats.SellNotional = stats.SellNotional.Add(trade.Notional)
		}
		if trade.ExecutedAt.After(since24h) {
			stats.Last24h++
		}
	}
	return stats, nil
}
