package parser_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hftcore/internal/adapters/parser"
	"github.com/alejandrodnm/hftcore/internal/domain"
)

// recordingSink is a hand-rolled ports.TickSink that records every
// delivered tick, guarded by a mutex since the parser delivers from its own
// read-loop goroutine.
type recordingSink struct {
	mu    sync.Mutex
	codes []string
	ticks []*domain.Tick
}

func (s *recordingSink) OnTick(stdCode string, tick *domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, stdCode)
	s.ticks = append(s.ticks, tick)
}

func (s *recordingSink) snapshot() (codes []string, ticks []*domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codes...), append([]*domain.Tick(nil), s.ticks...)
}

var upgrader = websocket.Upgrader{}

func TestWSParserDeliversDecodedTickToSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Drain the subscribe frame, then push one tick.
		_, _, _ = conn.ReadMessage()
		err = conn.WriteJSON(map[string]any{
			"type":           "tick",
			"std_code":       "rb2410",
			"action_date":    20260731,
			"action_time_ms": 90000500,
			"price":          4000.0,
			"bids":           []map[string]float64{{"price": 3999, "size": 10}},
		})
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	p := parser.NewWSParser(wsURL)
	sink := &recordingSink{}
	p.SetSink(sink)
	require.NoError(t, p.Subscribe("rb2410"))

	go p.Run()
	defer p.Stop()

	require.Eventually(t, func() bool {
		codes, _ := sink.snapshot()
		return len(codes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	codes, ticks := sink.snapshot()
	assert.Equal(t, "rb2410", codes[0])
	assert.Equal(t, 4000.0, ticks[0].Price)
	require.Len(t, ticks[0].Bids, 1)
	assert.Equal(t, 3999.0, ticks[0].Bids[0].Price)
}

func TestWSParserStripsAdjustmentSuffixBeforeSinkDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		err = conn.WriteJSON(map[string]any{
			"type":        "tick",
			"std_code":    "rb2410+",
			"action_date": 20260731,
			"price":       4000.0,
		})
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	p := parser.NewWSParser(wsURL)
	sink := &recordingSink{}
	p.SetSink(sink)
	require.NoError(t, p.Subscribe("rb2410+"))

	go p.Run()
	defer p.Stop()

	require.Eventually(t, func() bool {
		codes, _ := sink.snapshot()
		return len(codes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	codes, _ := sink.snapshot()
	assert.Equal(t, "rb2410", codes[0], "sink always receives the bare code; the engine re-applies adjustment spelling on dispatch")
}

func TestWSParserStopReturnsAfterRunLoopExits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	p := parser.NewWSParser(wsURL)
	p.SetSink(&recordingSink{})

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, p.Stop())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
