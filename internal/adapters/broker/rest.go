// Package broker implements concrete ports.BrokerAdapter backends: a
// resty-based REST client for a generic order-gateway wire protocol, and a
// paper/stub adapter for exercising internal/trader without a network.
//
// The gateway's exact wire protocol is out of scope (§1, "no
// concrete broker wire protocols"); rest.go models a plausible REST+poll
// shape grounded on 0xtitan6-polymarket-mm's exchange.Client: resty with
// rate limiting and retry, wire amounts parsed with shopspring/decimal to
// avoid float round-trip error on the broker boundary.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

// RESTConfig configures a REST broker adapter.
type RESTConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	AccountID  string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

func (c RESTConfig) withDefaults() RESTConfig {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	return c
}

// wireOrderAck is the gateway's entrust-acceptance response shape.
type wireOrderAck struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

// wirePosition is one position-bucket row in the gateway's position-query
// response, amounts carried as decimal strings to avoid float parse error
// at the wire boundary.
type wirePosition struct {
	StdCode       string `json:"std_code"`
	LongNewVol    string `json:"long_new_vol"`
	LongNewAvail  string `json:"long_new_avail"`
	LongPreVol    string `json:"long_pre_vol"`
	LongPreAvail  string `json:"long_pre_avail"`
	ShortNewVol   string `json:"short_new_vol"`
	ShortNewAvail string `json:"short_new_avail"`
	ShortPreVol   string `json:"short_pre_vol"`
	ShortPreAvail string `json:"short_pre_avail"`
}

func (w wirePosition) toDomain() domain.Position {
	dec := func(s string) float64 {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		f, _ := d.Float64()
		return f
	}
	return domain.Position{
		LongNewVol:    dec(w.LongNewVol),
		LongNewAvail:  dec(w.LongNewAvail),
		LongPreVol:    dec(w.LongPreVol),
		LongPreAvail:  dec(w.LongPreAvail),
		ShortNewVol:   dec(w.ShortNewVol),
		ShortNewAvail: dec(w.ShortNewAvail),
		ShortPreVol:   dec(w.ShortPreVol),
		ShortPreAvail: dec(w.ShortPreAvail),
	}
}

// RESTBroker implements ports.BrokerAdapter against a REST order gateway.
// Login/Logout and the four post-login queries are asynchronous from the
// trader adapter's point of view: results are delivered through sink from
// a background goroutine rather than returned directly, matching
// ports.BrokerSink's callback shape.
type RESTBroker struct {
	cfg     RESTConfig
	http    *resty.Client
	limiter *rate.Limiter
	sink    ports.BrokerSink
}

// NewRESTBroker builds a RESTBroker; SetSink must be called before Login.
func NewRESTBroker(cfg RESTConfig) *RESTBroker {
	cfg = cfg.withDefaults()
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", cfg.APIKey)

	return &RESTBroker{
		cfg:     cfg,
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// SetSink wires the BrokerSink that receives this adapter's async
// callbacks. The trader adapter calls this on construction.
func (b *RESTBroker) SetSink(sink ports.BrokerSink) {
	b.sink = sink
}

// Login authenticates against the gateway and reports the result via
// sink.OnLoginResult.
func (b *RESTBroker) Login() error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()

		var result struct {
			TradingDate uint32 `json:"trading_date"`
			Error       string `json:"error"`
		}
		resp, err := b.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"account_id": b.cfg.AccountID, "secret": b.cfg.APISecret}).
			SetResult(&result).
			Post("/auth/login")
		if err != nil {
			b.sink.OnLoginResult(false, err.Error(), 0)
			return
		}
		if resp.StatusCode() != http.StatusOK || result.Error != "" {
			b.sink.OnLoginResult(false, result.Error, 0)
			return
		}
		b.sink.OnLoginResult(true, "", result.TradingDate)
	}()
	return nil
}

// Logout notifies the gateway and reports completion via sink.OnLogout.
func (b *RESTBroker) Logout() error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()
		if _, err := b.http.R().SetContext(ctx).Post("/auth/logout"); err != nil {
			slog.Warn("broker: logout request failed", "error", err)
		}
		b.sink.OnLogout()
	}()
	return nil
}

// PlaceOrder submits an entrust; acceptance or rejection arrives via
// sink.OnEntrustResult.
func (b *RESTBroker) PlaceOrder(e ports.Entrust) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()
		if err := b.limiter.Wait(ctx); err != nil {
			b.sink.OnEntrustResult(e.LocalID, "", err)
			return
		}

		var ack wireOrderAck
		resp, err := b.http.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"local_id": e.LocalID,
				"std_code": e.StdCode,
				"side":     e.Side.String(),
				"offset":   e.Offset.String(),
				"is_today": e.IsToday,
				"price":    decimal.NewFromFloat(e.Price).String(),
				"qty":      decimal.NewFromFloat(e.Qty).String(),
			}).
			SetResult(&ack).
			Post("/orders")
		if err != nil {
			b.sink.OnEntrustResult(e.LocalID, "", fmt.Errorf("place order: %w", err))
			return
		}
		if resp.StatusCode() != http.StatusOK || ack.Error != "" {
			b.sink.OnEntrustResult(e.LocalID, "", fmt.Errorf("gateway rejected order: %s", ack.Error))
			return
		}
		b.sink.OnEntrustResult(e.LocalID, ack.OrderID, nil)
	}()
	return nil
}

// CancelOrder requests cancellation; the resulting state transition
// arrives via sink.OnOrderPush.
func (b *RESTBroker) CancelOrder(localID uint32, brokerID string) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()
		if err := b.limiter.Wait(ctx); err != nil {
			slog.Error("broker: cancel rate limiter wait failed", "error", err)
			return
		}
		_, err := b.http.R().
			SetContext(ctx).
			SetPathParam("id", brokerID).
			Delete("/orders/{id}")
		if err != nil {
			slog.Error("broker: cancel request failed", "local_id", localID, "broker_id", brokerID, "error", err)
			return
		}
		b.sink.OnOrderPush(localID, brokerID, domain.Order{LocalID: localID, BrokerID: brokerID, State: domain.OrderCanceled})
	}()
	return nil
}

// QueryAccount triggers the account-balance query phase (§4.C). The
// gateway's account response shape is out of scope; this just advances the
// query chain.
func (b *RESTBroker) QueryAccount() error {
	go b.sink.OnAccountQueried()
	return nil
}

// QueryPositions fetches positions and reports them via
// sink.OnPositionsQueried (through the adapter's positions-queried hook).
func (b *RESTBroker) QueryPositions() error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()
		var wire []wirePosition
		_, err := b.http.R().SetContext(ctx).SetResult(&wire).Get("/positions")
		if err != nil {
			slog.Error("broker: query positions failed", "error", err)
			wire = nil
		}
		positions := make(map[string]*domain.Position, len(wire))
		for _, w := range wire {
			p := w.toDomain()
			positions[w.StdCode] = &p
		}
		b.sink.OnPositionsQueried(positions)
	}()
	return nil
}

// QueryOrders fetches open orders from the gateway.
func (b *RESTBroker) QueryOrders() error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()
		var wire []struct {
			LocalID uint32 `json:"local_id"`
			OrderID string `json:"order_id"`
			StdCode string `json:"std_code"`
			Side    string `json:"side"`
			Price   string `json:"price"`
			Qty     string `json:"qty"`
			Filled  string `json:"filled"`
		}
		_, err := b.http.R().SetContext(ctx).SetResult(&wire).Get("/orders/open")
		if err != nil {
			slog.Error("broker: query orders failed", "error", err)
			wire = nil
		}
		orders := make([]domain.Order, 0, len(wire))
		for _, w := range wire {
			price, _ := decimal.NewFromString(w.Price)
			qty, _ := decimal.NewFromString(w.Qty)
			filled, _ := decimal.NewFromString(w.Filled)
			priceF, _ := price.Float64()
			qtyF, _ := qty.Float64()
			filledF, _ := filled.Float64()
			side := domain.Buy
			if w.Side == "sell" {
				side = domain.Sell
			}
			orders = append(orders, domain.Order{
				LocalID: w.LocalID, BrokerID: w.OrderID, StdCode: w.StdCode,
				Side: side, Price: priceF, Qty: qtyF, Filled: filledF,
				State: domain.OrderSubmitted,
			})
		}
		b.sink.OnOrdersQueried(orders)
	}()
	return nil
}

// QueryTrades fetches today's trade fills from the gateway.
func (b *RESTBroker) QueryTrades() error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
		defer cancel()
		var wire []struct {
			LocalID  uint32 `json:"local_id"`
			StdCode  string `json:"std_code"`
			Side     string `json:"side"`
			Price    string `json:"price"`
			Qty      string `json:"qty"`
			TradeRef string `json:"trade_ref"`
		}
		_, err := b.http.R().SetContext(ctx).SetResult(&wire).Get("/trades/today")
		if err != nil {
			slog.Error("broker: query trades failed", "error", err)
			wire = nil
		}
		trades := make([]domain.Trade, 0, len(wire))
		for _, w := range wire {
			price, _ := decimal.NewFromString(w.Price)
			qty, _ := decimal.NewFromString(w.Qty)
			priceF, _ := price.Float64()
			qtyF, _ := qty.Float64()
			side := domain.Buy
			if w.Side == "sell" {
				side = domain.Sell
			}
			trades = append(trades, domain.Trade{
				LocalID: w.LocalID, StdCode: w.StdCode, Side: side,
				Price: priceF, Qty: qtyF, TradeRef: w.TradeRef,
			})
		}
		b.sink.OnTradesQueried(trades)
	}()
	return nil
}
