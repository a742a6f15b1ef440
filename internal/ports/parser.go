package ports

import "github.com/alejandrodnm/hftcore/internal/domain"

// TickSink receives ticks pushed by a Parser. internal/engine's Engine
// satisfies this with its OnTick method; a parser adapter is never handed
// anything more of the engine than this.
type TickSink interface {
	OnTick(stdCode string, tick *domain.Tick)
}

// Parser is the out-of-scope collaborator that speaks a concrete
// market-data wire protocol (§1, "deliberately out of scope") and
// pushes decoded ticks into a TickSink. Run blocks until Stop is called; it
// auto-reconnects on transport failure rather than
// returning.
type Parser interface {
	SetSink(sink TickSink)
	Subscribe(stdCode string) error
	Run() error
	Stop() error
}
