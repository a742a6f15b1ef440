package trader

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/hftcore/internal/domain"
)

// riskGate evaluates every outbound order and cancel against the rules in
// §4.C: per-code rate bounds over a rolling window (modeled as a
// token bucket sized to the window so that exactly `bound` admissions
// succeed in immediate succession and the (bound+1)-th is rejected, per the
// boundary test in §8), lifetime totals, an excluded-code set populated by
// prior violations, and a self-match set.
type riskGate struct {
	mu sync.Mutex

	defaults domain.RiskParams
	perCode  map[string]domain.RiskParams

	orderLimiters  map[string]*rate.Limiter
	cancelLimiters map[string]*rate.Limiter

	orderLifetime  map[string]uint32
	cancelLifetime map[string]uint32

	excluded    map[string]bool
	selfMatched map[string]bool

	ignoreSelfMatch bool
}

func newRiskGate(defaults domain.RiskParams, ignoreSelfMatch bool) *riskGate {
	return &riskGate{
		defaults:        defaults,
		perCode:         make(map[string]domain.RiskParams),
		orderLimiters:   make(map[string]*rate.Limiter),
		cancelLimiters:  make(map[string]*rate.Limiter),
		orderLifetime:   make(map[string]uint32),
		cancelLifetime:  make(map[string]uint32),
		excluded:        make(map[string]bool),
		selfMatched:     make(map[string]bool),
		ignoreSelfMatch: ignoreSelfMatch,
	}
}

// SetParams overrides the default risk parameters for one code's scope.
func (g *riskGate) SetParams(code string, p domain.RiskParams) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.perCode[code] = p
}

func (g *riskGate) paramsLocked(code string) domain.RiskParams {
	if p, ok := g.perCode[code]; ok {
		return p
	}
	return g.defaults
}

// RiskViolation names the reason an outbound action was refused.
type RiskViolation struct {
	Code   string
	Reason string
}

func (e *RiskViolation) Error() string {
	return "risk violation on " + e.Code + ": " + e.Reason
}

// CheckOrder runs the order-side risk gate (§4.C steps 1-3, 5).
func (g *riskGate) CheckOrder(code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.excluded[code] {
		return &RiskViolation{Code: code, Reason: "code excluded by prior risk violation"}
	}
	if !g.ignoreSelfMatch && g.selfMatched[code] {
		return &RiskViolation{Code: code, Reason: "code flagged for self-match"}
	}

	params := g.paramsLocked(code)

	lim, ok := g.orderLimiters[code]
	if !ok {
		lim = newWindowLimiter(params.OrderRateBound, params.OrderWindowSec)
		g.orderLimiters[code] = lim
	}
	if !lim.Allow() {
		g.excluded[code] = true
		return &RiskViolation{Code: code, Reason: "order rate bound exceeded"}
	}

	if params.OrderTotalCap > 0 && g.orderLifetime[code] >= params.OrderTotalCap {
		return &RiskViolation{Code: code, Reason: "order lifetime cap exceeded"}
	}
	g.orderLifetime[code]++

	return nil
}

// CheckCancel runs the cancel-side risk gate (§4.C step 4).
func (g *riskGate) CheckCancel(code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.excluded[code] {
		return &RiskViolation{Code: code, Reason: "code excluded by prior risk violation"}
	}

	params := g.paramsLocked(code)

	lim, ok := g.cancelLimiters[code]
	if !ok {
		lim = newWindowLimiter(params.CancelRateBound, params.CancelWindowSec)
		g.cancelLimiters[code] = lim
	}
	if !lim.Allow() {
		g.excluded[code] = true
		return &RiskViolation{Code: code, Reason: "cancel rate bound exceeded"}
	}

	if params.CancelTotalCap > 0 && g.cancelLifetime[code] >= params.CancelTotalCap {
		return &RiskViolation{Code: code, Reason: "cancel lifetime cap exceeded"}
	}
	g.cancelLifetime[code]++

	return nil
}

// MarkSelfMatch records code as self-matched. If enforcement is disabled
// the code is still recorded but CheckOrder will not reject it.
func (g *riskGate) MarkSelfMatch(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selfMatched[code] = true
}

// IsSelfMatched reports whether code has ever been flagged.
func (g *riskGate) IsSelfMatched(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selfMatched[code]
}

// Clear removes code from the excluded set (operator-driven recovery from
// RiskViolation, per §7).
func (g *riskGate) Clear(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.excluded, code)
}

// newWindowLimiter builds a token bucket whose burst equals bound and whose
// refill rate spreads that same bound evenly across windowSec, so that
// bound admissions in immediate succession succeed and the next one fails
// until the window has elapsed — the exact boundary §8 describes.
func newWindowLimiter(bound, windowSec uint32) *rate.Limiter {
	if bound == 0 {
		bound = 1
	}
	if windowSec == 0 {
		windowSec = 1
	}
	r := rate.Limit(float64(bound) / float64(windowSec))
	return rate.NewLimiter(r, int(bound))
}
