// Package engine implements the HFT engine (§4.F): the strategy-context
// registry, the five subscription maps, tick/L2 dispatch with the
// adjustment-flag transformation, session begin/end broadcast, and the
// marker.json runtime artifact, grounded on WtHftEngine in original_source.
package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/alejandrodnm/hftcore/internal/datamgr"
	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
	"github.com/alejandrodnm/hftcore/internal/ticker"
)

// Config holds the engine's startup parameters (§4.F "init(config,
// base_data, data_mgr, hot_mgr, notifier)"; base_data/hot_mgr are the
// out-of-scope historical collaborators already folded into datamgr.Manager
// here).
type Config struct {
	Session ticker.Session
	WorkDir string // where marker.json is written; defaults to "."
}

type tickSub struct {
	sid uint32
	adj domain.Adjustment
}

// Engine dispatches market data and lifecycle events to registered
// strategy contexts (§4.F).
type Engine struct {
	cfg      Config
	dataMgr  *datamgr.Manager
	notifier ports.EventNotifier
	tkr      *ticker.Ticker

	mu            sync.Mutex
	strategies    map[uint32]ports.StrategyContext
	strategyOrder []uint32
	channels      []string

	subMu     sync.Mutex
	tickSubs  map[string][]tickSub
	barSubs   map[string][]uint32
	oqSubs    map[string][]uint32
	odSubs    map[string][]uint32
	txSubs    map[string][]uint32

	sessionMu   sync.Mutex
	currentDate uint32
	ready       bool
}

// New builds an Engine around dataMgr, notifying notifier of runtime
// events and driving a ticker.Ticker for cfg.Session.
func New(dataMgr *datamgr.Manager, notifier ports.EventNotifier, cfg Config) *Engine {
	e := &Engine{
		cfg:        cfg,
		dataMgr:    dataMgr,
		notifier:   notifier,
		strategies: make(map[uint32]ports.StrategyContext),
		tickSubs:   make(map[string][]tickSub),
		barSubs:    make(map[string][]uint32),
		oqSubs:     make(map[string][]uint32),
		odSubs:     make(map[string][]uint32),
		txSubs:     make(map[string][]uint32),
	}
	e.tkr = ticker.New(cfg.Session, e)
	dataMgr.OnBar(e.onBar)
	return e
}

// RegisterStrategy adds ctx to the registry in call order; registration
// order is the broadcast order for session begin/end (§4.F, §5).
func (e *Engine) RegisterStrategy(ctx ports.StrategyContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[ctx.ID()] = ctx
	e.strategyOrder = append(e.strategyOrder, ctx.ID())
}

// RegisterChannel records a trader-adapter id for marker.json's "channels"
// list.
func (e *Engine) RegisterChannel(traderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels = append(e.channels, traderID)
}

// SubTicks subscribes sid to code, recording the adjustment flag encoded in
// code's suffix (§4.F: "if code ends in + adjust_flag=2; if -, 1; else 0").
func (e *Engine) SubTicks(sid uint32, code string) {
	bare, adj := domain.SplitStdCode(code)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.tickSubs[bare] = append(e.tickSubs[bare], tickSub{sid: sid, adj: adj})
}

// SubBars subscribes sid to bare-code bar completions. L2 and bar
// subscriptions never carry an adjustment flag (§4.F).
func (e *Engine) SubBars(sid uint32, code string) {
	bare, _ := domain.SplitStdCode(code)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.barSubs[bare] = append(e.barSubs[bare], sid)
}

// SubOrderQueue subscribes sid to bare-code L2 order-queue events.
func (e *Engine) SubOrderQueue(sid uint32, code string) {
	bare, _ := domain.SplitStdCode(code)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.oqSubs[bare] = append(e.oqSubs[bare], sid)
}

// SubOrderDetail subscribes sid to bare-code L2 order-detail events.
func (e *Engine) SubOrderDetail(sid uint32, code string) {
	bare, _ := domain.SplitStdCode(code)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.odSubs[bare] = append(e.odSubs[bare], sid)
}

// SubTransaction subscribes sid to bare-code L2 transaction events.
func (e *Engine) SubTransaction(sid uint32, code string) {
	bare, _ := domain.SplitStdCode(code)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.txSubs[bare] = append(e.txSubs[bare], sid)
}

// OnTick implements §4.F's on_tick dispatch: engine clock update, bar
// aggregation, then (once ready) subscriber fan-out with the
// adjustment-flag transformation. bareCode carries no adjustment suffix —
// the suffix is a subscriber-side spelling, not a feed-side one.
func (e *Engine) OnTick(bareCode string, tick *domain.Tick) {
	e.ensureSessionBegun(tick.ActionDate)
	e.tkr.OnTick(tick.ActionDate, tick.ActionTimeMs)
	e.dataMgr.HandlePushQuote(bareCode, tick)

	if !e.isReady() {
		return
	}
	e.dispatchTick(bareCode, tick)
}

func (e *Engine) dispatchTick(bareCode string, tick *domain.Tick) {
	e.subMu.Lock()
	subs := append([]tickSub(nil), e.tickSubs[bareCode]...)
	e.subMu.Unlock()

	for _, sub := range subs {
		ctx := e.strategyByID(sub.sid)
		if ctx == nil {
			continue
		}
		switch sub.adj {
		case domain.AdjustNone:
			e.deliverTick(ctx, bareCode, tick)
		case domain.AdjustForward:
			e.deliverTick(ctx, domain.WithAdjustment(bareCode, domain.AdjustForward), tick)
		case domain.AdjustBackward:
			e.deliverBackAdjustedTick(ctx, bareCode, tick)
		}
	}
}

func (e *Engine) deliverBackAdjustedTick(ctx ports.StrategyContext, bareCode string, tick *domain.Tick) {
	factor, err := e.dataMgr.AdjustingFactor(bareCode, tick.TradingDate)
	if err != nil {
		slog.Error("engine: adjustment factor lookup failed", "code", bareCode, "error", err)
		return
	}
	clone := tick.Clone()
	clone.ApplyFactor(factor)
	adjCode := domain.WithAdjustment(bareCode, domain.AdjustBackward)
	clone.StdCode = adjCode
	e.dataMgr.CacheAdjustedTick(adjCode, clone)
	e.deliverTick(ctx, adjCode, clone)
}

func (e *Engine) deliverTick(ctx ports.StrategyContext, code string, tick *domain.Tick) {
	e.safeDispatch(ctx.ID(), ctx.Name(), func() {
		ctx.OnTick(code, tick)
	})
}

// onBar is wired into datamgr.Manager.OnBar and fans completed bars out to
// bare-code subscribers (§4.F: no adjustment on bar delivery).
func (e *Engine) onBar(code, period string, multiplier uint32, bar domain.Bar) {
	e.subMu.Lock()
	sids := append([]uint32(nil), e.barSubs[code]...)
	e.subMu.Unlock()

	for _, sid := range sids {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		b := bar
		e.safeDispatch(ctx.ID(), ctx.Name(), func() {
			ctx.OnBar(code, period, multiplier, &b)
		})
	}
}

// OnOrderQueue dispatches an L2 order-queue event by bare code (§4.F: "L2
// subscriptions never store an adjustment flag").
func (e *Engine) OnOrderQueue(code string, data *domain.OrderQueue) {
	if !e.isReady() {
		return
	}
	e.subMu.Lock()
	sids := append([]uint32(nil), e.oqSubs[code]...)
	e.subMu.Unlock()
	for _, sid := range sids {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		e.safeDispatch(ctx.ID(), ctx.Name(), func() { ctx.OnOrderQueue(code, data) })
	}
}

// OnOrderDetail dispatches an L2 order-detail event by bare code.
func (e *Engine) OnOrderDetail(code string, data *domain.OrderDetail) {
	if !e.isReady() {
		return
	}
	e.subMu.Lock()
	sids := append([]uint32(nil), e.odSubs[code]...)
	e.subMu.Unlock()
	for _, sid := range sids {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		e.safeDispatch(ctx.ID(), ctx.Name(), func() { ctx.OnOrderDetail(code, data) })
	}
}

// OnTransaction dispatches an L2 transaction event by bare code.
func (e *Engine) OnTransaction(code string, data *domain.Transaction) {
	if !e.isReady() {
		return
	}
	e.subMu.Lock()
	sids := append([]uint32(nil), e.txSubs[code]...)
	e.subMu.Unlock()
	for _, sid := range sids {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		e.safeDispatch(ctx.ID(), ctx.Name(), func() { ctx.OnTransaction(code, data) })
	}
}

// OnOrder fans out an order push to every registered strategy. The
// original per-context execution unit (one trader adapter wired to exactly
// one strategy) is out of scope here, so this engine broadcasts to the
// full registry rather than routing by ownership — a deliberate
// simplification of the multi-strategy order-ownership detail, documented
// in DESIGN.md.
func (e *Engine) OnOrder(localID uint32, stdCode string, isBuy bool, total, left, price float64, canceled bool) {
	e.mu.Lock()
	order := append([]uint32(nil), e.strategyOrder...)
	e.mu.Unlock()
	for _, sid := range order {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		e.safeDispatch(ctx.ID(), ctx.Name(), func() {
			ctx.OnOrder(localID, stdCode, isBuy, total, left, price, canceled)
		})
	}
}

// OnTrade fans out a trade push to every registered strategy (see OnOrder).
func (e *Engine) OnTrade(localID uint32, stdCode string, isBuy bool, qty, price float64) {
	e.mu.Lock()
	order := append([]uint32(nil), e.strategyOrder...)
	e.mu.Unlock()
	for _, sid := range order {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		e.safeDispatch(ctx.ID(), ctx.Name(), func() {
			ctx.OnTrade(localID, stdCode, isBuy, qty, price)
		})
	}
}

func (e *Engine) strategyByID(sid uint32) ports.StrategyContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategies[sid]
}

func (e *Engine) isReady() bool {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	return e.ready
}

// CurrentDate returns the trading date of the session currently in
// progress, or 0 before any tick has established one.
func (e *Engine) CurrentDate() uint32 {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	return e.currentDate
}

func (e *Engine) ensureSessionBegun(date uint32) {
	e.sessionMu.Lock()
	if e.currentDate == date {
		e.sessionMu.Unlock()
		return
	}
	e.currentDate = date
	e.ready = true
	e.sessionMu.Unlock()

	e.broadcastOrdered(func(ctx ports.StrategyContext) {
		ctx.OnSessionBegin(date)
	})
	if e.notifier != nil {
		e.notifier.OnSessionEvent(date, true)
	}
}

// OnMinuteEnd implements ticker.Sink. HFT strategies do not run on a
// minute schedule (§4.F), so this is intentionally a no-op.
func (e *Engine) OnMinuteEnd(tradingDate, sessionMinute uint32) {}

// OnSessionEnd implements ticker.Sink: broadcasts session end in
// registration order and flips the engine back to not-ready.
func (e *Engine) OnSessionEnd(tradingDate uint32) {
	e.sessionMu.Lock()
	e.ready = false
	e.sessionMu.Unlock()

	e.broadcastOrdered(func(ctx ports.StrategyContext) {
		ctx.OnSessionEnd(tradingDate)
	})
	if e.notifier != nil {
		e.notifier.OnSessionEvent(tradingDate, false)
	}
}

func (e *Engine) broadcastOrdered(fn func(ports.StrategyContext)) {
	e.mu.Lock()
	order := append([]uint32(nil), e.strategyOrder...)
	e.mu.Unlock()
	for _, sid := range order {
		ctx := e.strategyByID(sid)
		if ctx == nil {
			continue
		}
		e.safeDispatch(ctx.ID(), ctx.Name(), func() { fn(ctx) })
	}
}

// safeDispatch recovers a panicking strategy callback: the exception is
// logged and surfaced to the notifier, but the strategy stays registered
// (§7 StrategyException: "the strategy is not unregistered").
func (e *Engine) safeDispatch(sid uint32, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: strategy callback panicked", "strategy_id", sid, "strategy", name, "panic", r)
			if e.notifier != nil {
				e.notifier.Notify(ports.EventStrategyPanic, fmt.Sprintf("strategy %s (%d): %v", name, sid, r))
			}
		}
	}()
	fn()
}

// Run executes on_init on every registered strategy in registration order,
// writes marker.json, and starts the ticker (§4.F).
func (e *Engine) Run() error {
	e.broadcastOrdered(func(ctx ports.StrategyContext) {
		ctx.OnInit()
	})

	if err := e.writeMarker(); err != nil {
		return fmt.Errorf("engine: Run: %w", err)
	}

	e.tkr.Start()
	return nil
}

// Stop halts the ticker's background goroutine.
func (e *Engine) Stop() {
	e.tkr.Stop()
}

type markerFile struct {
	Engine   string   `json:"engine"`
	Marks    []string `json:"marks"`
	Channels []string `json:"channels"`
}

func (e *Engine) writeMarker() error {
	e.mu.Lock()
	marks := make([]string, 0, len(e.strategyOrder))
	for _, sid := range e.strategyOrder {
		if ctx, ok := e.strategies[sid]; ok {
			marks = append(marks, ctx.Name())
		}
	}
	channels := append([]string(nil), e.channels...)
	e.mu.Unlock()

	marker := markerFile{Engine: "HFT", Marks: marks, Channels: channels}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal marker.json: %w", err)
	}

	dir := e.cfg.WorkDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, "marker.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
