package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

// PaperBroker is a ports.BrokerAdapter that never touches a network: it
// accepts every entrust and immediately fills it at the requested price,
// for driving internal/trader and internal/engine end to end in tests and
// local runs. Grounded on the trader package's own fakeBroker test double,
// widened into a standalone adapter that also reports a fill, not just
// acceptance.
type PaperBroker struct {
	mu      sync.Mutex
	sink    ports.BrokerSink
	nextBID uint64
	orders  map[uint32]ports.Entrust

	// RejectQty, if set, makes PlaceOrder reject any entrust at or above
	// this quantity, for exercising the trader adapter's error path.
	RejectQty float64
	// FillDelay, if set, defers the simulated fill by this duration instead
	// of delivering it synchronously within PlaceOrder.
	FillDelay time.Duration
}

// NewPaperBroker builds a PaperBroker; SetSink must be called before Login.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{orders: make(map[uint32]ports.Entrust)}
}

func (p *PaperBroker) SetSink(sink ports.BrokerSink) {
	p.sink = sink
}

func (p *PaperBroker) Login() error {
	go p.sink.OnLoginResult(true, "", tradingDateFromNow())
	return nil
}

func (p *PaperBroker) Logout() error {
	go p.sink.OnLogout()
	return nil
}

func (p *PaperBroker) PlaceOrder(e ports.Entrust) error {
	p.mu.Lock()
	if p.RejectQty > 0 && e.Qty >= p.RejectQty {
		p.mu.Unlock()
		go p.sink.OnEntrustResult(e.LocalID, "", fmt.Errorf("paper broker: qty %.2f exceeds reject threshold", e.Qty))
		return nil
	}
	p.nextBID++
	bid := fmt.Sprintf("paper-%d", p.nextBID)
	p.orders[e.LocalID] = e
	p.mu.Unlock()

	go func() {
		p.sink.OnEntrustResult(e.LocalID, bid, nil)
		if p.FillDelay > 0 {
			time.Sleep(p.FillDelay)
		}
		p.sink.OnTradePush(e.LocalID, domain.Trade{
			LocalID:  e.LocalID,
			StdCode:  e.StdCode,
			Side:     e.Side,
			Offset:   e.Offset,
			Price:    e.Price,
			Qty:      e.Qty,
			TradeRef: bid,
		})
	}()
	return nil
}

func (p *PaperBroker) CancelOrder(localID uint32, brokerID string) error {
	p.mu.Lock()
	e, ok := p.orders[localID]
	delete(p.orders, localID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("paper broker: unknown local id %d", localID)
	}
	go p.sink.OnOrderPush(localID, brokerID, domain.Order{
		LocalID: localID, StdCode: e.StdCode, State: domain.OrderCanceled,
	})
	return nil
}

func (p *PaperBroker) QueryAccount() error {
	go p.sink.OnAccountQueried()
	return nil
}

// QueryPositions reports an empty book; a paper run starts flat.
func (p *PaperBroker) QueryPositions() error {
	go p.sink.OnPositionsQueried(map[string]*domain.Position{})
	return nil
}

func (p *PaperBroker) QueryOrders() error {
	go p.sink.OnOrdersQueried(nil)
	return nil
}

func (p *PaperBroker) QueryTrades() error {
	go p.sink.OnTradesQueried(nil)
	return nil
}

func tradingDateFromNow() uint32 {
	now := time.Now()
	return uint32(now.Year())*10000 + uint32(now.Month())*100 + uint32(now.Day())
}
