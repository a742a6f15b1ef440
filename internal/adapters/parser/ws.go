// Package parser implements a concrete ports.Parser: a websocket market-feed
// client that decodes a wire tick envelope and pushes domain.Tick values
// into a ports.TickSink. Grounded on 0xtitan6-polymarket-mm's
// internal/exchange/ws.go (auto-reconnect with exponential backoff,
// subscription tracking, read-deadline disconnect detection), adapted from
// a dual book/trade feed to a single tick feed.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// wireTick is the market feed's on-the-wire tick shape.
type wireTick struct {
	StdCode      string  `json:"std_code"`
	ActionDate   uint32  `json:"action_date"`
	ActionTimeMs uint32  `json:"action_time_ms"`
	TradingDate  uint32  `json:"trading_date"`
	Price        float64 `json:"price"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Bids         []struct {
		Price float64 `json:"price"`
		Size  float64 `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price float64 `json:"price"`
		Size  float64 `json:"size"`
	} `json:"asks"`
}

func (w wireTick) toDomain() *domain.Tick {
	t := &domain.Tick{
		StdCode:      w.StdCode,
		ActionDate:   w.ActionDate,
		ActionTimeMs: w.ActionTimeMs,
		TradingDate:  w.TradingDate,
		Price:        w.Price,
		Open:         w.Open,
		High:         w.High,
		Low:          w.Low,
	}
	if len(w.Bids) > 0 {
		t.Bids = make([]domain.BookLevel, len(w.Bids))
		for i, b := range w.Bids {
			t.Bids[i] = domain.BookLevel{Price: b.Price, Size: b.Size}
		}
	}
	if len(w.Asks) > 0 {
		t.Asks = make([]domain.BookLevel, len(w.Asks))
		for i, a := range w.Asks {
			t.Asks[i] = domain.BookLevel{Price: a.Price, Size: a.Size}
		}
	}
	return t
}

// WSParser is a ports.Parser over a single websocket connection carrying
// subscribe/tick JSON frames.
type WSParser struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu sync.RWMutex
	subs  map[string]bool

	sink ports.TickSink

	cancel context.CancelFunc
	done   chan struct{}

	logger *slog.Logger
}

// NewWSParser builds a WSParser against wsURL; Subscribe may be called
// before or after Run.
func NewWSParser(wsURL string) *WSParser {
	return &WSParser{
		url:    wsURL,
		subs:   make(map[string]bool),
		logger: slog.Default().With("component", "parser"),
	}
}

func (p *WSParser) SetSink(sink ports.TickSink) {
	p.sink = sink
}

// Subscribe records stdCode for the initial and every reconnect
// subscription frame; if the connection is live, it also subscribes
// immediately.
func (p *WSParser) Subscribe(stdCode string) error {
	p.subMu.Lock()
	p.subs[stdCode] = true
	p.subMu.Unlock()

	return p.writeJSON(map[string]any{
		"op":        "subscribe",
		"std_codes": []string{stdCode},
	})
}

// Run connects and maintains the connection with auto-reconnect, blocking
// until Stop is called.
func (p *WSParser) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	defer close(p.done)

	backoff := time.Second
	for {
		err := p.connectAndRead(ctx)
		if ctx.Err() != nil {
			return nil
		}

		p.logger.Warn("parser: websocket disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Stop cancels the run loop and waits for it to exit.
func (p *WSParser) Stop() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return p.closeConn()
}

func (p *WSParser) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("parser: dial: %w", err)
	}

	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()
	defer p.closeConn()

	if err := p.resubscribeAll(); err != nil {
		return fmt.Errorf("parser: resubscribe: %w", err)
	}
	p.logger.Info("parser: websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go p.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("parser: read: %w", err)
		}
		p.dispatch(msg)
	}
}

func (p *WSParser) resubscribeAll() error {
	p.subMu.RLock()
	codes := make([]string, 0, len(p.subs))
	for c := range p.subs {
		codes = append(codes, c)
	}
	p.subMu.RUnlock()
	if len(codes) == 0 {
		return nil
	}
	return p.writeJSON(map[string]any{"op": "subscribe", "std_codes": codes})
}

func (p *WSParser) dispatch(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		p.logger.Debug("parser: ignoring non-json message", "data", string(data))
		return
	}
	if envelope.Type != "tick" {
		p.logger.Debug("parser: ignoring event", "type", envelope.Type)
		return
	}

	var w wireTick
	if err := json.Unmarshal(data, &w); err != nil {
		p.logger.Error("parser: unmarshal tick", "error", err)
		return
	}
	if p.sink != nil {
		bare, _ := domain.SplitStdCode(w.StdCode)
		p.sink.OnTick(bare, w.toDomain())
	}
}

func (p *WSParser) pingLoop(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.writeMessage(websocket.TextMessage, []byte("ping")); err != nil {
				p.logger.Warn("parser: ping failed", "error", err)
				return
			}
		}
	}
}

func (p *WSParser) writeJSON(v any) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn == nil {
		return nil // buffered until connect; resubscribeAll replays it
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

func (p *WSParser) writeMessage(msgType int, data []byte) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn == nil {
		return fmt.Errorf("parser: not connected")
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(msgType, data)
}

func (p *WSParser) closeConn() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

var _ ports.Parser = (*WSParser)(nil)
