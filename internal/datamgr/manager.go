// Package datamgr implements the data manager (§4.D): historical slice
// retrieval against an out-of-scope ports.DataReader, a live-tick cache, a
// back-adjusted-tick cache, and push-driven minute-bar aggregation.
package datamgr

import (
	"strconv"
	"sync"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

// BarListener receives a completed minute bar (§4.D: "on minute-close the
// manager emits completed bars to subscribers via an internal notify
// list").
type BarListener func(code, period string, multiplier uint32, bar domain.Bar)

// Manager serves §4.D's query surface and owns the live-tick and
// back-adjusted-tick caches.
type Manager struct {
	reader ports.DataReader

	mu            sync.Mutex
	liveTicks     map[string]*domain.Tick
	adjustedTicks map[string]*domain.Tick // keyed by back-adjusted stdCode ("code+")
	openBars      map[string]*domain.Bar  // keyed by barKey(code, period, multiplier)
	barMinuteKey  map[string]uint32

	listenersMu sync.Mutex
	listeners   []BarListener
}

// New builds a Manager reading historical slices from reader.
func New(reader ports.DataReader) *Manager {
	return &Manager{
		reader:        reader,
		liveTicks:     make(map[string]*domain.Tick),
		adjustedTicks: make(map[string]*domain.Tick),
		openBars:      make(map[string]*domain.Bar),
		barMinuteKey:  make(map[string]uint32),
	}
}

// OnBar registers a listener invoked on every completed minute bar.
func (m *Manager) OnBar(l BarListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// TickSlice proxies to the historical store.
func (m *Manager) TickSlice(code string, count int, endTimeMs uint32) ([]domain.Tick, error) {
	return m.reader.TickSlice(code, count, endTimeMs)
}

// KlineSlice proxies to the historical store.
func (m *Manager) KlineSlice(code, period string, multiplier uint32, count int, endTimeMs uint32) ([]domain.Bar, error) {
	return m.reader.KlineSlice(code, period, multiplier, count, endTimeMs)
}

// OrderQueueSlice proxies to the historical store.
func (m *Manager) OrderQueueSlice(code string, count int) ([]domain.OrderQueue, error) {
	return m.reader.OrderQueueSlice(code, count)
}

// OrderDetailSlice proxies to the historical store.
func (m *Manager) OrderDetailSlice(code string, count int) ([]domain.OrderDetail, error) {
	return m.reader.OrderDetailSlice(code, count)
}

// TransactionSlice proxies to the historical store.
func (m *Manager) TransactionSlice(code string, count int) ([]domain.Transaction, error) {
	return m.reader.TransactionSlice(code, count)
}

// GrabLastTick returns the most recent live tick seen for the bare code, if
// any.
func (m *Manager) GrabLastTick(code string) (*domain.Tick, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.liveTicks[code]
	return t, ok
}

// AdjustingFactor proxies to the historical store's per-date back-adjustment
// factor.
func (m *Manager) AdjustingFactor(code string, tradingDate uint32) (float64, error) {
	return m.reader.AdjustingFactor(code, tradingDate)
}

// AdjustingFlag reports the adjustment mode encoded in stdCode's suffix
// (§3: stdCode "carries an adjustment suffix").
func (m *Manager) AdjustingFlag(stdCode string) domain.Adjustment {
	_, adj := domain.SplitStdCode(stdCode)
	return adj
}

// CacheAdjustedTick stores the computed back-adjusted tick for adjCode
// (e.g. "SHFE.rb2501+"), used by internal/engine when it clones and
// rewrites a tick for a k=2 subscriber (§4.F).
func (m *Manager) CacheAdjustedTick(adjCode string, tick *domain.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustedTicks[adjCode] = tick
}

// AdjustedTick returns the last cached back-adjusted tick for adjCode.
func (m *Manager) AdjustedTick(adjCode string) (*domain.Tick, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.adjustedTicks[adjCode]
	return t, ok
}

// hhmmDivisor turns an HHMMSSmmm ActionTimeMs into its HHMM minute.
const hhmmDivisor = 100_000

func barKey(code, period string, multiplier uint32) string {
	return code + "|" + period + "|" + strconv.FormatUint(uint64(multiplier), 10)
}

// HandlePushQuote updates the live-tick cache and appends the tick to the
// open minute bar for code, emitting a completed bar to listeners when the
// tick's minute differs from the bar currently being aggregated (§4.D).
func (m *Manager) HandlePushQuote(code string, tick *domain.Tick) {
	m.mu.Lock()
	m.liveTicks[code] = tick.Clone()

	key := barKey(code, "m1", 1)
	minute := tick.ActionTimeMs / hhmmDivisor

	prevMinute, hadOpen := m.barMinuteKey[key]
	var completed *domain.Bar
	if hadOpen && prevMinute != minute {
		completed = m.openBars[key]
		delete(m.openBars, key)
	}

	bar, ok := m.openBars[key]
	if !ok {
		bar = &domain.Bar{
			StdCode:    code,
			Period:     "m1",
			Multiplier: 1,
			Date:       tick.ActionDate,
			TimeMs:     tick.ActionTimeMs,
			Open:       tick.Price,
			High:       tick.Price,
			Low:        tick.Price,
			Close:      tick.Price,
		}
		m.openBars[key] = bar
		m.barMinuteKey[key] = minute
	} else {
		if tick.Price > bar.High {
			bar.High = tick.Price
		}
		if tick.Price < bar.Low {
			bar.Low = tick.Price
		}
		bar.Close = tick.Price
		bar.TimeMs = tick.ActionTimeMs
		bar.Volume++
	}
	m.mu.Unlock()

	if completed != nil {
		m.emitBar(code, "m1", 1, *completed)
	}
}

func (m *Manager) emitBar(code, period string, multiplier uint32, bar domain.Bar) {
	m.listenersMu.Lock()
	listeners := append([]BarListener(nil), m.listeners...)
	m.listenersMu.Unlock()
	for _, l := range listeners {
		l(code, period, multiplier, bar)
	}
}
