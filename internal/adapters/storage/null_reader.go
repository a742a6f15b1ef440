package storage

import (
	"fmt"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

// NullDataReader is a ports.DataReader stub for wiring internal/datamgr
// where no concrete historical store is configured. Historical bar/tick
// file formats are explicitly out of scope; this lets a binary start and
// serve everything datamgr.Manager can from its live-tick cache alone.
type NullDataReader struct{}

func (NullDataReader) TickSlice(code string, count int, endTimeMs uint32) ([]domain.Tick, error) {
	return nil, fmt.Errorf("storage.NullDataReader: no historical store configured for %q", code)
}

func (NullDataReader) KlineSlice(code, period string, multiplier uint32, count int, endTimeMs uint32) ([]domain.Bar, error) {
	return nil, fmt.Errorf("storage.NullDataReader: no historical store configured for %q", code)
}

func (NullDataReader) OrderQueueSlice(code string, count int) ([]domain.OrderQueue, error) {
	return nil, fmt.Errorf("storage.NullDataReader: no historical store configured for %q", code)
}

func (NullDataReader) OrderDetailSlice(code string, count int) ([]domain.OrderDetail, error) {
	return nil, fmt.Errorf("storage.NullDataReader: no historical store configured for %q", code)
}

func (NullDataReader) TransactionSlice(code string, count int) ([]domain.Transaction, error) {
	return nil, fmt.Errorf("storage.NullDataReader: no historical store configured for %q", code)
}

func (NullDataReader) AdjustingFactor(code string, tradingDate uint32) (float64, error) {
	return 1.0, nil
}

var _ ports.DataReader = NullDataReader{}
