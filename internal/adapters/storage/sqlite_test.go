package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hftcore/internal/adapters/storage"
	"github.com/alejandrodnm/hftcore/internal/domain"
)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveOrderThenOrderHistoryReturnsLatestState(t *testing.T) {
	db := newTestStorage(t)

	order := domain.Order{LocalID: 1, StdCode: "rb2410", Side: domain.Buy, Offset: domain.OffsetOpen, Price: 4000, Qty: 10, State: domain.OrderSubmitted}
	require.NoError(t, db.SaveOrder(20260731, order))

	order.BrokerID = "b1"
	order.Filled = 10
	order.State = domain.OrderFilled
	require.NoError(t, db.SaveOrder(20260731, order))

	recs, err := db.OrderHistory("rb2410", 20260701, 20260801)
	require.NoError(t, err)
	require.Len(t, recs, 1, "upsert by local_id must not duplicate rows")
	assert.Equal(t, "b1", recs[0].Order.BrokerID)
	assert.Equal(t, domain.OrderFilled, recs[0].Order.State)
	assert.Equal(t, 10.0, recs[0].Order.Filled)
}

func TestOrderHistoryFiltersByDateRange(t *testing.T) {
	db := newTestStorage(t)

	require.NoError(t, db.SaveOrder(20260101, domain.Order{LocalID: 1, StdCode: "rb2410", State: domain.OrderFilled}))
	require.NoError(t, db.SaveOrder(20260731, domain.Order{LocalID: 2, StdCode: "rb2410", State: domain.OrderFilled}))

	recs, err := db.OrderHistory("rb2410", 20260701, 20260801)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(20260731), recs[0].TradingDate)
}

func TestOrderHistoryFiltersByStdCode(t *testing.T) {
	db := newTestStorage(t)

	require.NoError(t, db.SaveOrder(20260731, domain.Order{LocalID: 1, StdCode: "rb2410", State: domain.OrderFilled}))
	require.NoError(t, db.SaveOrder(20260731, domain.Order{LocalID: 2, StdCode: "hc2410", State: domain.OrderFilled}))

	recs, err := db.OrderHistory("rb2410", 20260101, 20270101)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rb2410", recs[0].Order.StdCode)
}

func TestSaveTradeDoesNotErrorAndIsIndependentOfOrderRows(t *testing.T) {
	db := newTestStorage(t)

	trade := domain.Trade{LocalID: 1, StdCode: "rb2410", Side: domain.Buy, Price: 4000, Qty: 10, TradeRef: "t1"}
	require.NoError(t, db.SaveTrade(20260731, trade))

	recs, err := db.OrderHistory("rb2410", 20260101, 20270101)
	require.NoError(t, err)
	assert.Empty(t, recs, "a trade row must not appear as an order row")
}

func TestSaveSessionEventDoesNotError(t *testing.T) {
	db := newTestStorage(t)
	require.NoError(t, db.SaveSessionEvent(20260731, true))
	require.NoError(t, db.SaveSessionEvent(20260731, false))
}
