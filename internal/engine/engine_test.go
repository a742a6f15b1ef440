package engine_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hftcore/internal/datamgr"
	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/engine"
	"github.com/alejandrodnm/hftcore/internal/ports"
	"github.com/alejandrodnm/hftcore/internal/ticker"
)

// fakeReader is a hand-rolled ports.DataReader stub; only AdjustingFactor
// is exercised by these tests.
type fakeReader struct {
	factor float64
}

func (f *fakeReader) TickSlice(string, int, uint32) ([]domain.Tick, error)               { return nil, nil }
func (f *fakeReader) KlineSlice(string, string, uint32, int, uint32) ([]domain.Bar, error) { return nil, nil }
func (f *fakeReader) OrderQueueSlice(string, int) ([]domain.OrderQueue, error)            { return nil, nil }
func (f *fakeReader) OrderDetailSlice(string, int) ([]domain.OrderDetail, error)          { return nil, nil }
func (f *fakeReader) TransactionSlice(string, int) ([]domain.Transaction, error)          { return nil, nil }
func (f *fakeReader) AdjustingFactor(string, uint32) (float64, error) {
	if f.factor == 0 {
		return 1, nil
	}
	return f.factor, nil
}

// fakeNotifier records every event/session call.
type fakeNotifier struct {
	mu       sync.Mutex
	events   []ports.EventKind
	sessions []bool
}

func (n *fakeNotifier) Notify(kind ports.EventKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind)
}

func (n *fakeNotifier) OnSessionEvent(tradingDate uint32, begin bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, begin)
}

// fakeStrategy records every callback invocation for assertion.
type fakeStrategy struct {
	id   uint32
	name string

	mu          sync.Mutex
	inited      bool
	begins      []uint32
	ends        []uint32
	ticks       []string
	bars        int
	orderQueues int
	panicOnTick bool
}

func (s *fakeStrategy) ID() uint32   { return s.id }
func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) OnInit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = true
}

func (s *fakeStrategy) OnSessionBegin(tradingDate uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins = append(s.begins, tradingDate)
}

func (s *fakeStrategy) OnSessionEnd(tradingDate uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends = append(s.ends, tradingDate)
}

func (s *fakeStrategy) OnTick(stdCode string, tick *domain.Tick) {
	if s.panicOnTick {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, stdCode)
}

func (s *fakeStrategy) OnBar(stdCode, period string, multiplier uint32, bar *domain.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars++
}

func (s *fakeStrategy) OnOrderQueue(stdCode string, data *domain.OrderQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderQueues++
}

func (s *fakeStrategy) OnOrderDetail(stdCode string, data *domain.OrderDetail) {}
func (s *fakeStrategy) OnTransaction(stdCode string, data *domain.Transaction) {}
func (s *fakeStrategy) OnOrder(localID uint32, stdCode string, isBuy bool, total, left, price float64, canceled bool) {
}
func (s *fakeStrategy) OnTrade(localID uint32, stdCode string, isBuy bool, qty, price float64) {}

func (s *fakeStrategy) snapshot() (ticks []string, begins, ends []uint32, bars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ticks...), append([]uint32(nil), s.begins...), append([]uint32(nil), s.ends...), s.bars
}

func newTestEngine(t *testing.T) (*engine.Engine, *fakeNotifier) {
	t.Helper()
	dm := datamgr.New(&fakeReader{factor: 1})
	notifier := &fakeNotifier{}
	cfg := engine.Config{
		Session: ticker.Session{OpenTimeHMS: 90000, CloseTimeHMS: 150000},
		WorkDir: t.TempDir(),
	}
	return engine.New(dm, notifier, cfg), notifier
}

func TestSessionBeginFiresOnFirstTickOfANewDate(t *testing.T) {
	e, notifier := newTestEngine(t)
	strat := &fakeStrategy{id: 1, name: "s1"}
	e.RegisterStrategy(strat)
	e.SubTicks(1, "rb2410")

	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000})

	_, begins, _, _ := strat.snapshot()
	require.Len(t, begins, 1)
	assert.Equal(t, uint32(20260731), begins[0])

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.sessions, 1)
	assert.True(t, notifier.sessions[0])
}

func TestBareCodeSubscriberReceivesUnchangedTick(t *testing.T) {
	e, _ := newTestEngine(t)
	strat := &fakeStrategy{id: 1, name: "s1"}
	e.RegisterStrategy(strat)
	e.SubTicks(1, "rb2410")

	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000})

	ticks, _, _, _ := strat.snapshot()
	require.Len(t, ticks, 1)
	assert.Equal(t, "rb2410", ticks[0])
}

func TestForwardAdjustedSubscriberReceivesSuffixedCodeSamePrice(t *testing.T) {
	e, _ := newTestEngine(t)
	strat := &fakeStrategy{id: 2, name: "s2"}
	e.RegisterStrategy(strat)
	e.SubTicks(2, "rb2410-")

	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000})

	ticks, _, _, _ := strat.snapshot()
	require.Len(t, ticks, 1)
	assert.Equal(t, "rb2410-", ticks[0])
}

func TestBackAdjustedSubscriberReceivesScaledPriceUnderPlusSuffix(t *testing.T) {
	dm := datamgr.New(&fakeReader{factor: 0.9})
	notifier := &fakeNotifier{}
	e := engine.New(dm, notifier, engine.Config{
		Session: ticker.Session{OpenTimeHMS: 90000, CloseTimeHMS: 150000},
		WorkDir: t.TempDir(),
	})
	strat := &fakeStrategy{id: 3, name: "s3"}
	e.RegisterStrategy(strat)
	e.SubTicks(3, "rb2410+")

	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000, TradingDate: 20260731})

	ticks, _, _, _ := strat.snapshot()
	require.Len(t, ticks, 1)
	assert.Equal(t, "rb2410+", ticks[0])

	cached, ok := dm.AdjustedTick("rb2410+")
	require.True(t, ok)
	assert.Equal(t, 3600.0, cached.Price)
}

func TestSessionEndBroadcastsAndFlipsReady(t *testing.T) {
	e, notifier := newTestEngine(t)
	strat := &fakeStrategy{id: 1, name: "s1"}
	e.RegisterStrategy(strat)
	e.SubTicks(1, "rb2410")

	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000})
	e.OnSessionEnd(20260731)

	_, _, ends, _ := strat.snapshot()
	require.Len(t, ends, 1)

	// A tick delivered after session end must not reach the subscriber,
	// since the engine is no longer ready.
	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 100000000, Price: 4001})
	ticks, _, _, _ := strat.snapshot()
	assert.Len(t, ticks, 1, "no dispatch while not ready")

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.sessions, 2)
	assert.False(t, notifier.sessions[1])
}

func TestPanickingStrategyIsLoggedNotUnregistered(t *testing.T) {
	e, notifier := newTestEngine(t)
	strat := &fakeStrategy{id: 1, name: "s1", panicOnTick: true}
	e.RegisterStrategy(strat)
	e.SubTicks(1, "rb2410")

	assert.NotPanics(t, func() {
		e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000})
	})

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.events, 1)
	assert.Equal(t, ports.EventStrategyPanic, notifier.events[0])
}

func TestRunWritesMarkerJSONAndInitsStrategies(t *testing.T) {
	e, _ := newTestEngine(t)
	strat := &fakeStrategy{id: 1, name: "s1"}
	e.RegisterStrategy(strat)
	e.RegisterChannel("ctp-sim")

	require.NoError(t, e.Run())
	defer e.Stop()

	strat.mu.Lock()
	assert.True(t, strat.inited)
	strat.mu.Unlock()
}

func TestMarkerJSONSchema(t *testing.T) {
	dir := t.TempDir()
	dm := datamgr.New(&fakeReader{factor: 1})
	e := engine.New(dm, nil, engine.Config{
		Session: ticker.Session{OpenTimeHMS: 90000, CloseTimeHMS: 150000},
		WorkDir: dir,
	})
	strat := &fakeStrategy{id: 1, name: "alpha"}
	e.RegisterStrategy(strat)
	e.RegisterChannel("ctp-sim")

	require.NoError(t, e.Run())
	defer e.Stop()

	data, err := os.ReadFile(filepath.Join(dir, "marker.json"))
	require.NoError(t, err)

	var marker struct {
		Engine   string   `json:"engine"`
		Marks    []string `json:"marks"`
		Channels []string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(data, &marker))
	assert.Equal(t, "HFT", marker.Engine)
	assert.Equal(t, []string{"alpha"}, marker.Marks)
	assert.Equal(t, []string{"ctp-sim"}, marker.Channels)
}

func TestBarSubscriberReceivesCompletedMinuteBar(t *testing.T) {
	e, _ := newTestEngine(t)
	strat := &fakeStrategy{id: 1, name: "s1"}
	e.RegisterStrategy(strat)
	e.SubBars(1, "rb2410")

	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90000500, Price: 4000})
	e.OnTick("rb2410", &domain.Tick{StdCode: "rb2410", ActionDate: 20260731, ActionTimeMs: 90100000, Price: 4005})

	_, _, _, bars := strat.snapshot()
	assert.Equal(t, 1, bars, "crossing a minute boundary must emit exactly one completed bar")
}
