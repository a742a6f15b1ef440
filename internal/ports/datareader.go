package ports

import "github.com/alejandrodnm/hftcore/internal/domain"

// DataReader is the out-of-scope historical store (§1: "K-line/tick
// slice storage and resampling internals" are an external collaborator).
// internal/datamgr consumes it for everything it cannot serve from its
// live-tick cache.
type DataReader interface {
	TickSlice(code string, count int, endTimeMs uint32) ([]domain.Tick, error)
	KlineSlice(code, period string, multiplier uint32, count int, endTimeMs uint32) ([]domain.Bar, error)
	OrderQueueSlice(code string, count int) ([]domain.OrderQueue, error)
	OrderDetailSlice(code string, count int) ([]domain.OrderDetail, error)
	TransactionSlice(code string, count int) ([]domain.Transaction, error)
	// AdjustingFactor returns the multiplicative back-adjustment factor for
	// code on the given trading date.
	AdjustingFactor(code string, tradingDate uint32) (float64, error)
}
