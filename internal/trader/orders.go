package trader

import (
	"fmt"
	"sync/atomic"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

func (a *Adapter) nextID() uint32 {
	return atomic.AddUint32(&a.nextLocalID, 1)
}

func signedUndone(side domain.Side, qty float64) float64 {
	if side == domain.Buy {
		return qty
	}
	return -qty
}

// submit runs the risk gate, reserves position avail for close-family
// orders, allocates a local id, records undone exposure, and places the
// entrust with the broker. On broker rejection the reservation and undone
// delta are released and the order is marked error.
func (a *Adapter) submit(code string, side domain.Side, offset domain.Offset, isToday bool, price, qty float64) (uint32, error) {
	if !a.IsReady() {
		return 0, fmt.Errorf("trader: adapter not ready (state=%s)", a.State())
	}
	if err := a.risk.CheckOrder(code); err != nil {
		a.notify(ports.EventRiskViolation, err.Error())
		return 0, err
	}

	split := a.reserveOnSubmit(code, side, offset, qty)

	localID := a.nextID()
	order := &domain.Order{
		LocalID: localID,
		StdCode: code,
		Side:    side,
		Offset:  offset,
		IsToday: isToday,
		Price:   price,
		Qty:     qty,
		State:   domain.OrderNew,
	}

	a.ordersMu.Lock()
	a.orders[localID] = order
	a.ordersMu.Unlock()

	a.booksMu.Lock()
	a.undone[code] += signedUndone(side, qty)
	a.booksMu.Unlock()

	a.reservations(localID, split, qty)

	order.State = domain.OrderSubmitted
	if err := a.broker.PlaceOrder(ports.Entrust{
		LocalID: localID,
		StdCode: code,
		Side:    side,
		Offset:  offset,
		IsToday: isToday,
		Price:   price,
		Qty:     qty,
	}); err != nil {
		a.failOrder(order, split, err)
		return localID, err
	}

	return localID, nil
}

// reservationsByOrder records each order's reservation split and original
// qty so cancel/reject/fill can reference them without re-deriving.
type reservationRecord struct {
	split       reservationSplit
	originalQty float64
}

func (a *Adapter) reservations(localID uint32, split reservationSplit, qty float64) {
	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	if a.reservationsByOrder == nil {
		a.reservationsByOrder = make(map[uint32]reservationRecord)
	}
	a.reservationsByOrder[localID] = reservationRecord{split: split, originalQty: qty}
}

func (a *Adapter) reservationFor(localID uint32) (reservationRecord, bool) {
	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	r, ok := a.reservationsByOrder[localID]
	return r, ok
}

// failOrder transitions order to Error, releases its full reservation and
// undone delta, and surfaces an OrderRejected event.
func (a *Adapter) failOrder(order *domain.Order, split reservationSplit, cause error) {
	order.State = domain.OrderError
	a.creditBack(order.StdCode, order.Side, split, 1.0)

	a.booksMu.Lock()
	a.undone[order.StdCode] -= signedUndone(order.Side, order.Qty)
	a.booksMu.Unlock()

	a.notify(ports.EventOrderRejected, cause.Error())
	a.fireOrder(order)
}

func (a *Adapter) fireOrder(order *domain.Order) {
	for _, l := range a.orderListeners {
		l(order.LocalID, order.StdCode, order.Side == domain.Buy, order.Qty, order.Remaining(), order.Price, order.State == domain.OrderCanceled)
	}
}

// OnEntrustResult implements ports.BrokerSink.
func (a *Adapter) OnEntrustResult(localID uint32, brokerID string, err error) {
	a.ordersMu.Lock()
	order, ok := a.orders[localID]
	a.ordersMu.Unlock()
	if !ok {
		return
	}

	if err != nil {
		rec, _ := a.reservationFor(localID)
		a.failOrder(order, rec.split, err)
		return
	}

	a.ordersMu.Lock()
	order.BrokerID = brokerID
	a.brokerToLocal[brokerID] = localID
	a.ordersMu.Unlock()
}

// OnOrderPush implements ports.BrokerSink: broker-reported order state
// changes (e.g. exchange-side cancel, partial ack). Unknown broker ids
// (never placed by this process) are reconciled as phantom records.
func (a *Adapter) OnOrderPush(localID uint32, brokerID string, pushed domain.Order) {
	a.ordersMu.Lock()
	order, ok := a.orders[localID]
	if !ok {
		a.reconcilePhantom(brokerID, pushed)
		a.ordersMu.Unlock()
		return
	}
	wasTerminal := order.State.Terminal()
	order.State = pushed.State
	order.Filled = pushed.Filled
	a.ordersMu.Unlock()

	if !wasTerminal && order.State.Terminal() && order.State != domain.OrderFilled {
		rec, _ := a.reservationFor(localID)
		remaining := order.Qty - order.Filled
		fraction := 0.0
		if rec.originalQty > 0 {
			fraction = remaining / rec.originalQty
		}
		a.creditBack(order.StdCode, order.Side, rec.split, fraction)
		a.booksMu.Lock()
		a.undone[order.StdCode] -= signedUndone(order.Side, remaining)
		a.booksMu.Unlock()
	}

	a.fireOrder(order)
}

// reconcilePhantom creates a placeholder order record for a push the
// adapter never submitted itself — typically orders left over from a prior
// process instance (§4.C "unknown order pushes create a phantom record",
// grounded on TraderAdapter::onPushOrder's unknown-id branch). Caller must
// hold ordersMu.
func (a *Adapter) reconcilePhantom(brokerID string, pushed domain.Order) {
	if a.orderids[brokerID] {
		return
	}
	a.orderids[brokerID] = true
	phantom := pushed
	phantom.LocalID = a.nextID()
	phantom.BrokerID = brokerID
	a.orders[phantom.LocalID] = &phantom
	a.brokerToLocal[brokerID] = phantom.LocalID
}

// OnTradePush implements ports.BrokerSink: applies a fill to the position
// book, advances undone on terminal state, and runs self-match detection.
func (a *Adapter) OnTradePush(localID uint32, trade domain.Trade) {
	a.applyTrade(trade)

	a.ordersMu.Lock()
	order, ok := a.orders[localID]
	a.ordersMu.Unlock()
	if ok {
		for _, l := range a.tradeListeners {
			l(localID, order.StdCode, order.Side == domain.Buy, trade.Qty, trade.Price)
		}
	}

	a.detectSelfMatch(localID, trade)
}

func (a *Adapter) applyTrade(trade domain.Trade) {
	rec, _ := a.reservationFor(trade.LocalID)
	a.applyFillToPosition(trade.StdCode, trade.Side, trade.Offset, trade.Qty, rec.split, rec.originalQty)

	a.ordersMu.Lock()
	order, ok := a.orders[trade.LocalID]
	if ok {
		order.Filled += trade.Qty
		if order.Filled >= order.Qty {
			order.State = domain.OrderFilled
		} else {
			order.State = domain.OrderPartial
		}
	}
	a.ordersMu.Unlock()

	if ok && order.State == domain.OrderFilled {
		a.booksMu.Lock()
		a.undone[order.StdCode] -= signedUndone(order.Side, order.Qty)
		a.booksMu.Unlock()
	}
}

// detectSelfMatch flags code when trade.TradeRef was already seen for a
// different local order — our own opposing order filled against this one
// (§4.C).
func (a *Adapter) detectSelfMatch(localID uint32, trade domain.Trade) {
	if trade.TradeRef == "" {
		return
	}
	a.matchMu.Lock()
	first, seen := a.tradeRefs[trade.TradeRef]
	if !seen {
		a.tradeRefs[trade.TradeRef] = localID
		a.matchMu.Unlock()
		return
	}
	a.matchMu.Unlock()

	if first != localID {
		a.risk.MarkSelfMatch(trade.StdCode)
		a.notify(ports.EventSelfMatch, fmt.Sprintf("self-match detected on %s (orders %d, %d)", trade.StdCode, first, localID))
	}
}

// OnOrder registers a listener invoked on every order-state push.
func (a *Adapter) OnOrder(l OrderListener) { a.orderListeners = append(a.orderListeners, l) }

// OnTrade registers a listener invoked on every fill.
func (a *Adapter) OnTrade(l TradeListener) { a.tradeListeners = append(a.tradeListeners, l) }

// OpenLong submits a buy-open order.
func (a *Adapter) OpenLong(code string, price, qty float64) (uint32, error) {
	return a.submit(code, domain.Buy, domain.OffsetOpen, false, price, qty)
}

// OpenShort submits a sell-open order.
func (a *Adapter) OpenShort(code string, price, qty float64) (uint32, error) {
	return a.submit(code, domain.Sell, domain.OffsetOpen, false, price, qty)
}

// CloseLong submits a sell-close order against a long position.
func (a *Adapter) CloseLong(code string, price, qty float64, isToday bool) (uint32, error) {
	offset := domain.OffsetClose
	if isToday {
		offset = domain.OffsetCloseToday
	}
	return a.submit(code, domain.Sell, offset, isToday, price, qty)
}

// CloseShort submits a buy-close order against a short position.
func (a *Adapter) CloseShort(code string, price, qty float64, isToday bool) (uint32, error) {
	offset := domain.OffsetClose
	if isToday {
		offset = domain.OffsetCloseToday
	}
	return a.submit(code, domain.Buy, offset, isToday, price, qty)
}

// Cancel cancels one outstanding order by local id.
func (a *Adapter) Cancel(localID uint32) error {
	a.ordersMu.Lock()
	order, ok := a.orders[localID]
	a.ordersMu.Unlock()
	if !ok {
		return fmt.Errorf("trader: unknown local id %d", localID)
	}
	if order.State.Terminal() {
		return fmt.Errorf("trader: order %d already terminal (%s)", localID, order.State)
	}
	if err := a.risk.CheckCancel(order.StdCode); err != nil {
		a.notify(ports.EventRiskViolation, err.Error())
		return err
	}
	return a.broker.CancelOrder(localID, order.BrokerID)
}

// CancelByCode cancels up to qty outstanding quantity matching code/isBuy
// (all outstanding if qty==0).
func (a *Adapter) CancelByCode(code string, isBuy bool, qty float64) error {
	side := domain.Sell
	if isBuy {
		side = domain.Buy
	}

	a.ordersMu.Lock()
	var targets []*domain.Order
	for _, o := range a.orders {
		if o.StdCode == code && o.Side == side && !o.State.Terminal() {
			targets = append(targets, o)
		}
	}
	a.ordersMu.Unlock()

	remaining := qty
	for _, o := range targets {
		if qty > 0 && remaining <= 0 {
			break
		}
		if err := a.Cancel(o.LocalID); err != nil {
			return err
		}
		if qty > 0 {
			remaining -= o.Remaining()
		}
	}
	return nil
}
