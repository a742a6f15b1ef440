// Package ticker implements the real-time ticker (§4.E): session-relative
// minute clock and minute-close detection, driven both by incoming ticks
// and a background polling goroutine, grounded on WtHftRtTicker's on_tick
// and background-thread algorithm in original_source.
package ticker

import (
	"log/slog"
	"sync"
	"time"
)

// Session describes the trading-hours boundaries the ticker measures minute
// indices against. Open/Close are HHMMSS-style integers, e.g. 90000 for
// 09:00:00, matching stdCode-local ActionTimeMs' hour/minute/second digits
// (×1000, ms component dropped for session math).
type Session struct {
	OpenTimeHMS  uint32
	CloseTimeHMS uint32
}

// TotalMinutes returns the number of session-relative minutes between open
// and close.
func (s Session) TotalMinutes() uint32 {
	return hmsToMinutes(s.CloseTimeHMS) - hmsToMinutes(s.OpenTimeHMS)
}

func hmsToMinutes(hms uint32) uint32 {
	h := hms / 10000
	m := (hms / 100) % 100
	return h*60 + m
}

// Sink receives minute-close and session-end notifications. internal/engine
// implements it; internal/datamgr does not, and the ticker sends it no
// minute-close notification.
type Sink interface {
	OnMinuteEnd(tradingDate, sessionMinute uint32)
	OnSessionEnd(tradingDate uint32)
}

// Clock abstracts wall-clock reads so tests can drive the background loop
// deterministically without sleeping in real time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Ticker drives session-relative minute math and minute-close detection
// per §4.E's three-part algorithm: tick path, background poll, forced
// end-of-session.
type Ticker struct {
	session Session
	sink    Sink
	clock   Clock

	mu            sync.Mutex
	tradingDate   uint32 // 0 until the first tick is observed
	curDate       uint32
	curTimeMs     uint32
	curPos        int64 // session-relative minute index of the latest tick, -1 if none yet
	lastEmitPos   int64 // minute index last closed, -1 if none yet
	nextCheckTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Ticker for session, notifying sink on minute-close and
// session-end.
func New(session Session, sink Sink) *Ticker {
	return &Ticker{
		session:     session,
		sink:        sink,
		clock:       realClock{},
		curPos:      -1,
		lastEmitPos: -1,
	}
}

// WithClock overrides the wall-clock source, for tests.
func (t *Ticker) WithClock(c Clock) *Ticker {
	t.clock = c
	return t
}

// Start launches the background polling goroutine (10ms inside trading
// hours, 10s outside).
func (t *Ticker) Start() {
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go t.pollLoop()
}

// Stop halts the background goroutine and waits for it to exit.
func (t *Ticker) Stop() {
	if t.stopCh == nil {
		return
	}
	close(t.stopCh)
	t.wg.Wait()
}

// sessionMinuteOf converts an HHMMSSmmm-style ActionTimeMs into a
// session-relative minute index.
func (t *Ticker) sessionMinuteOf(timeMs uint32) uint32 {
	hms := timeMs / 1000
	h := hms / 10000
	m := (hms / 100) % 100
	total := h*60 + m
	openMinutes := hmsToMinutes(t.session.OpenTimeHMS)
	if total < openMinutes {
		return 0
	}
	return total - openMinutes
}

// OnTick implements §4.E's tick path:
//  1. if the tick is earlier than the ticker's current (date,time), trigger
//     price only and return (late tick);
//  2. otherwise advance curPos and, if the minute boundary was crossed,
//     close the previous minute exactly once.
func (t *Ticker) OnTick(date, timeMs uint32) {
	t.mu.Lock()
	if t.tradingDate != 0 && (date < t.curDate || (date == t.curDate && timeMs < t.curTimeMs)) {
		// Late tick: price-only, does not move the minute clock.
		t.mu.Unlock()
		return
	}

	if t.tradingDate == 0 {
		t.tradingDate = date
	}
	t.curDate = date
	t.curTimeMs = timeMs

	newPos := int64(t.sessionMinuteOf(timeMs))
	shouldClose := newPos > t.curPos && t.lastEmitPos < t.curPos
	prevPos := t.curPos
	t.curPos = newPos
	elapsedInMinuteMs := (timeMs/1000%100)*1000 + timeMs%1000
	t.nextCheckTime = t.clock.Now().Add(60*time.Second - time.Duration(elapsedInMinuteMs)*time.Millisecond)
	t.mu.Unlock()

	if shouldClose && prevPos >= 0 {
		t.closeMinute(prevPos)
	}
}

// closeMinute performs one minute-close: verify last_emit_pos < target
// under the ticker mutex, promote it, and notify. Safe to call from either
// the tick path or the background poll; the mutex plus the < check makes
// double-emission impossible (§8: "never both").
func (t *Ticker) closeMinute(pos int64) {
	t.mu.Lock()
	if t.lastEmitPos >= pos {
		t.mu.Unlock()
		return
	}
	t.lastEmitPos = pos
	date := t.tradingDate
	isSessionClose := pos+1 >= int64(t.session.TotalMinutes())
	t.mu.Unlock()

	t.sink.OnMinuteEnd(date, uint32(pos))
	if isSessionClose {
		t.sink.OnSessionEnd(date)
	}
}

func (t *Ticker) pollLoop() {
	defer t.wg.Done()
	for {
		interval := t.pollInterval()
		select {
		case <-t.stopCh:
			return
		case <-time.After(interval):
			t.poll()
		}
	}
}

func (t *Ticker) pollInterval() time.Duration {
	t.mu.Lock()
	insideSession := t.tradingDate != 0 && t.lastEmitPos < int64(t.session.TotalMinutes())
	t.mu.Unlock()
	if insideSession {
		return 10 * time.Millisecond
	}
	return 10 * time.Second
}

// poll runs the background-thread half of §4.E: inside trading hours it
// mirrors the tick path's minute-close when the clock has passed
// next_check_time; outside trading hours it forces the session closed once
// wall-clock has passed the close time. A day with no tick at all gets no
// forced close and no session-end notification.
func (t *Ticker) poll() {
	now := t.clock.Now()

	t.mu.Lock()
	if t.tradingDate == 0 {
		// No tick has ever been observed: nothing to force-close (resolved
		// Open Question — suppressed, not emitted).
		t.mu.Unlock()
		return
	}

	total := int64(t.session.TotalMinutes())
	if t.lastEmitPos >= total {
		t.mu.Unlock()
		return
	}

	if nowHMS(now) >= t.session.CloseTimeHMS {
		// Wall-clock has passed the session's close time but the final
		// minute was never reached by a tick (feed outage, early halt):
		// force the close instead of waiting forever for a tick that will
		// never arrive.
		t.mu.Unlock()
		t.ForceEndOfSession()
		return
	}

	if !t.nextCheckTime.IsZero() && now.Before(t.nextCheckTime) {
		t.mu.Unlock()
		return
	}
	if t.lastEmitPos < t.curPos {
		pos := t.curPos
		t.mu.Unlock()
		t.closeMinute(pos)
		return
	}
	t.mu.Unlock()
}

// nowHMS projects a wall-clock time onto the HHMMSS-style integer form
// Session.CloseTimeHMS is expressed in.
func nowHMS(now time.Time) uint32 {
	return uint32(now.Hour())*10000 + uint32(now.Minute())*100 + uint32(now.Second())
}

// ForceEndOfSession closes out a session whose wall-clock close time has
// passed without the final minute ever having been reached by a tick,
// emitting the final minute-close and on_session_end (§4.E background
// thread, outside-trading-hours branch).
func (t *Ticker) ForceEndOfSession() {
	t.mu.Lock()
	if t.tradingDate == 0 {
		t.mu.Unlock()
		return
	}
	total := int64(t.session.TotalMinutes())
	if t.lastEmitPos >= total {
		t.mu.Unlock()
		return
	}
	date := t.tradingDate
	t.lastEmitPos = total
	t.mu.Unlock()

	slog.Warn("ticker: forcing end-of-session close", "trading_date", date)
	t.sink.OnMinuteEnd(date, uint32(total-1))
	t.sink.OnSessionEnd(date)
}

// TradingDate returns the date of the session currently being tracked, or 0
// if no tick has ever been observed.
func (t *Ticker) TradingDate() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tradingDate
}
