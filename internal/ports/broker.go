package ports

import "github.com/alejandrodnm/hftcore/internal/domain"

// Entrust is the wire-level request the trader adapter hands to a broker
// adapter to place one concrete (side, offset) order.
type Entrust struct {
	LocalID uint32
	StdCode string
	Side    domain.Side
	Offset  domain.Offset
	IsToday bool
	Price   float64
	Qty     float64
}

// BrokerAdapter is the out-of-scope collaborator that speaks a concrete
// broker wire protocol (§1 "deliberately out of scope"). The trader
// adapter drives it through this interface only.
type BrokerAdapter interface {
	// Login starts the adapter's async login sequence; results surface via
	// BrokerSink.OnLoginResult.
	Login() error
	// Logout tears down the session.
	Logout() error
	// PlaceOrder submits an entrust; acceptance/rejection surfaces via
	// BrokerSink.OnEntrustResult.
	PlaceOrder(e Entrust) error
	// CancelOrder requests cancellation of a previously placed order.
	CancelOrder(localID uint32, brokerID string) error
	// QueryAccount, QueryPositions, QueryOrders, QueryTrades drive the
	// post-login query phase (§4.C); each response arrives via the
	// corresponding BrokerSink method.
	QueryAccount() error
	QueryPositions() error
	QueryOrders() error
	QueryTrades() error
}

// BrokerSink receives asynchronous callbacks from a BrokerAdapter. The
// trader adapter implements this to drive its own state machine.
type BrokerSink interface {
	OnLoginResult(ok bool, msg string, tradingDate uint32)
	OnLogout()
	OnEntrustResult(localID uint32, brokerID string, err error)
	OnOrderPush(localID uint32, brokerID string, order domain.Order)
	OnTradePush(localID uint32, trade domain.Trade)
	OnDisconnect()

	// OnAccountQueried, OnPositionsQueried, OnOrdersQueried, and
	// OnTradesQueried deliver the post-login query phase responses (§4.C),
	// each advancing the adapter's state machine to the next query.
	OnAccountQueried()
	OnPositionsQueried(positions map[string]*domain.Position)
	OnOrdersQueried(orders []domain.Order)
	OnTradesQueried(trades []domain.Trade)
}
