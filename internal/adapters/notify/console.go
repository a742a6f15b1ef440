// Package notify implements ports.EventNotifier as a console writer: a
// kind-tagged runtime-event stream for the HFT engine, with an optional
// tablewriter dump of the recorded event history on shutdown.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/hftcore/internal/ports"
)

// Console implements ports.EventNotifier.
type Console struct {
	out   io.Writer
	table bool

	mu      sync.Mutex
	history []event
}

type event struct {
	at      time.Time
	kind    ports.EventKind
	message string
}

// NewConsole builds a notifier writing to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter builds a notifier writing to w, for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints a timestamped, kind-tagged line and records it for Dump.
func (c *Console) Notify(kind ports.EventKind, message string) {
	now := time.Now()
	fmt.Fprintf(c.out, "[%s] %s: %s\n", now.Format("15:04:05"), kind, message)

	c.mu.Lock()
	c.history = append(c.history, event{at: now, kind: kind, message: message})
	c.mu.Unlock()
}

// OnSessionEvent prints the session transition under ports.EventSession.
func (c *Console) OnSessionEvent(tradingDate uint32, begin bool) {
	verb := "ended"
	if begin {
		verb = "began"
	}
	c.Notify(ports.EventSession, fmt.Sprintf("trading session %d %s", tradingDate, verb))
}

// Dump renders the recorded event history as a table. No-op unless table
// mode is on, since Notify already prints every line as it happens.
func (c *Console) Dump() {
	if !c.table {
		return
	}
	c.mu.Lock()
	rows := append([]event(nil), c.history...)
	c.mu.Unlock()
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "\n[notify] no events recorded")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Kind", "Message")
	for _, e := range rows {
		table.Append(e.at.Format("15:04:05"), string(e.kind), e.message)
	}
	table.Render()
}

var _ ports.EventNotifier = (*Console)(nil)
