package trader

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/policy"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

// OrderListener receives the order-push shape strategies expect
// (ports.StrategyContext.OnOrder), decoupled from any one strategy context
// so the engine can fan it out to every subscriber.
type OrderListener func(localID uint32, stdCode string, isBuy bool, total, left, price float64, canceled bool)

// TradeListener receives the trade-push shape strategies expect
// (ports.StrategyContext.OnTrade).
type TradeListener func(localID uint32, stdCode string, isBuy bool, qty, price float64)

// Adapter is the trader adapter (§4.C). It owns local order/position/undone
// bookkeeping, drives the broker's login/query sequence, and applies the
// risk gate and action-policy split before any order reaches the broker.
type Adapter struct {
	broker   ports.BrokerAdapter
	policy   *policy.Manager
	notifier ports.EventNotifier
	risk     *riskGate

	stateMu sync.Mutex
	state   AdapterState

	ordersMu      sync.Mutex
	orders        map[uint32]*domain.Order
	brokerToLocal map[string]uint32
	orderids      map[string]bool // dedup set for known broker ids (§4.C query phase)

	booksMu             sync.Mutex
	positions           map[string]*domain.Position
	undone              map[string]float64
	reservationsByOrder map[uint32]reservationRecord

	matchMu   sync.Mutex
	tradeRefs map[string]uint32 // trade ref -> first local id observed

	nextLocalID uint32

	orderListeners []OrderListener
	tradeListeners []TradeListener
}

// New builds an Adapter around broker, using policyMgr for buy/sell
// splitting and defaults for the risk gate. ignoreSelfMatch disables
// self-match *enforcement* (detection still records, per §4.C).
func New(broker ports.BrokerAdapter, policyMgr *policy.Manager, notifier ports.EventNotifier, defaults domain.RiskParams, ignoreSelfMatch bool) *Adapter {
	return &Adapter{
		broker:        broker,
		policy:        policyMgr,
		notifier:      notifier,
		risk:          newRiskGate(defaults, ignoreSelfMatch),
		state:         NotLoggedIn,
		orders:        make(map[uint32]*domain.Order),
		brokerToLocal: make(map[string]uint32),
		orderids:      make(map[string]bool),
		positions:     make(map[string]*domain.Position),
		undone:        make(map[string]float64),
		tradeRefs:     make(map[string]uint32),
	}
}

// State returns the adapter's current lifecycle state.
func (a *Adapter) State() AdapterState {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

// IsReady reports whether outbound orders may be issued. Callers must check
// this; earlier states buffer nothing (§4.C).
func (a *Adapter) IsReady() bool {
	return a.State() == AllReady
}

func (a *Adapter) setState(next AdapterState) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if !a.state.canTransitionTo(next) {
		slog.Error("trader: rejected invalid state transition", "from", a.state, "to", next)
		return
	}
	a.state = next
}

// Login starts the adapter's async login sequence.
func (a *Adapter) Login() error {
	if a.State() != NotLoggedIn {
		return fmt.Errorf("trader: Login called from state %s", a.State())
	}
	a.setState(LoggingIn)
	return a.broker.Login()
}

// OnLoginResult implements ports.BrokerSink.
func (a *Adapter) OnLoginResult(ok bool, msg string, tradingDate uint32) {
	if !ok {
		a.setState(LoginFailed)
		a.notify(ports.EventBrokerLogin, "login failed: "+msg)
		return
	}
	a.setState(LoggedIn)
	if err := a.broker.QueryAccount(); err != nil {
		slog.Error("trader: QueryAccount failed", "error", err)
	}
}

// OnLogout implements ports.BrokerSink.
func (a *Adapter) OnLogout() {
	a.setState(NotLoggedIn)
}

// OnDisconnect implements ports.BrokerSink. A disconnect returns the
// adapter to NotLoggedIn and the caller is expected to retry Login, which
// re-runs the query cycle.
func (a *Adapter) OnDisconnect() {
	a.setState(NotLoggedIn)
	a.notify(ports.EventFeedDisconnect, "broker adapter disconnected")
}

// OnAccountQueried advances the query phase to positions. It is invoked by
// the broker-specific glue once the account response settles; modeled here
// as a direct call since the account response shape is out of scope.
func (a *Adapter) OnAccountQueried() {
	if err := a.broker.QueryPositions(); err != nil {
		slog.Error("trader: QueryPositions failed", "error", err)
	}
}

// OnPositionsQueried advances LoggedIn -> PositionQueried and starts the
// open-orders query.
func (a *Adapter) OnPositionsQueried(positions map[string]*domain.Position) {
	a.booksMu.Lock()
	for code, p := range positions {
		a.positions[code] = p
	}
	a.booksMu.Unlock()

	a.setState(PositionQueried)
	if err := a.broker.QueryOrders(); err != nil {
		slog.Error("trader: QueryOrders failed", "error", err)
	}
}

// OnOrdersQueried advances PositionQueried -> OrdersQueried and starts the
// today's-trades query. Returned orders seed the dedup set so later pushes
// for the same broker id are recognized as already-known (§4.C).
func (a *Adapter) OnOrdersQueried(orders []domain.Order) {
	a.ordersMu.Lock()
	for i := range orders {
		o := orders[i]
		a.orders[o.LocalID] = &o
		if o.BrokerID != "" {
			a.brokerToLocal[o.BrokerID] = o.LocalID
			a.orderids[o.BrokerID] = true
		}
	}
	a.ordersMu.Unlock()

	a.setState(OrdersQueried)
	if err := a.broker.QueryTrades(); err != nil {
		slog.Error("trader: QueryTrades failed", "error", err)
	}
}

// OnTradesQueried advances OrdersQueried -> TradesQueried -> AllReady.
func (a *Adapter) OnTradesQueried(trades []domain.Trade) {
	for _, t := range trades {
		a.applyTrade(t)
	}
	a.setState(TradesQueried)
	a.setState(AllReady)
}

// notify forwards an event to the configured notifier, if any.
func (a *Adapter) notify(kind ports.EventKind, msg string) {
	if a.notifier != nil {
		a.notifier.Notify(kind, msg)
	}
}
