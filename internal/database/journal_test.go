package database

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yellowcore-go/internal/models"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := NewDatabase(MemoryDSN)
	require.NoError(t, err)
	return NewJournal(db, zap.NewNop())
}

func trade(id string, side models.Side, qty int64, price string, at time.Time) models.Trade {
	return models.Trade{ID: id, Timestamp: at, Ticker: "AAPL", Side: side, Quantity: qty, Price: decimal.RequireFromString(price)}
}

func TestRecordAndListTrades(t *testing.T) {
	// Arrange
	j := setupJournal(t)
	now := time.Now()

	// Act
	require.NoError(t, j.RecordTrade(1, trade("t1", models.SideBuy, 2, "178.50", now.Add(-time.Minute))))
	require.NoError(t, j.RecordTrade(1, trade("t2", models.SideSell, 1, "180", now)))
	require.NoError(t, j.RecordTrade(2, trade("t3", models.SideBuy, 5, "100", now)))

	// Assert
	trades, err := j.ListTrades(1, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t2", trades[0].TradeID)
	assert.Equal(t, "sell", trades[0].Side)
	assert.True(t, decimal.RequireFromString("180").Equal(trades[0].Price))
	assert.True(t, decimal.RequireFromString("357").Equal(trades[1].Notional))

	limited, err := j.ListTrades(1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordTrade_DuplicateID(t *testing.T) {
	j := setupJournal(t)
	tr := trade("dup", models.SideBuy, 1, "10", time.Now())

	require.NoError(t, j.RecordTrade(1, tr))
	err := j.RecordTrade(1, tr)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save trade dup")
}

func TestStatistics(t *testing.T) {
	j := setupJournal(t)
	now := time.Now()
	require.NoError(t, j.RecordTrade(1, trade("a", models.SideBuy, 2, "100", now.Add(-48*time.Hour))))
	require.NoError(t, j.RecordTrade(1, trade("b", models.SideBuy, 1, "110", now)))
	require.NoError(t, j.RecordTrade(1, trade("c", models.SideSell, 3, "120", now)))

	stats, err := j.Statistics(1)

	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalTrades)
	assert.Equal(t, int64(2), stats.Buys)
	assert.Equal(t, int64(1), stats.Sells)
	assert.True(t, decimal.RequireFromString("310").Equal(stats.BuyNotional))
	assert.True(t, decimal.RequireFromString("360").Equal(stats.SellNotional))
	assert.Equal(t, int64(2), stats.Last24h)

	empty, err := j.Statistics(9)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTrades)
}

func TestNewDatabase_ResetsJournal(t *testing.T) {
	db, err := NewDatabase(MemoryDSN)
	require.NoError(t, err)
	j := NewJournal(db, zap.NewNop())
	require.NoError(t, j.RecordTrade(1, trade("x", models.SideBuy, 1, "1", time.Now())))

	require.NoError(t, AutoMigrate(db))

	trades, err := j.ListTrades(1, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
