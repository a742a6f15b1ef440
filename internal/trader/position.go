package trader

import "github.com/alejandrodnm/hftcore/internal/domain"

// reservationSplit records how much of an order's quantity was reserved
// from each day-bucket at submission time, so cancel/reject can credit back
// exactly what was debited and fills can decrement the same buckets.
type reservationSplit struct {
	PreQty float64
	NewQty float64
}

func (a *Adapter) getOrCreatePositionLocked(code string) *domain.Position {
	p, ok := a.positions[code]
	if !ok {
		p = &domain.Position{}
		a.positions[code] = p
	}
	return p
}

// Position returns a copy of the current position book for code, or the
// zero value if untracked.
func (a *Adapter) Position(code string) domain.Position {
	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	if p, ok := a.positions[code]; ok {
		return *p
	}
	return domain.Position{}
}

// UndoneQty returns the current signed undone quantity for code.
func (a *Adapter) UndoneQty(code string) float64 {
	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	return a.undone[code]
}

// splitPreThenNew allocates qty against pre-bucket availability first,
// spilling into the new-bucket, capped at what is actually available. This
// is the one spillover rule used both to reserve avail at submission and to
// decrement vol at fill (§4.C: "Close -> subtract from pre_vol/pre_avail
// first... spill-over to new_vol/new_avail").
func splitPreThenNew(preAvail, newAvail, qty float64) reservationSplit {
	pre := qty
	if pre > preAvail {
		pre = preAvail
	}
	if pre < 0 {
		pre = 0
	}
	rem := qty - pre
	nw := rem
	if nw > newAvail {
		nw = newAvail
	}
	if nw < 0 {
		nw = 0
	}
	return reservationSplit{PreQty: pre, NewQty: nw}
}

// reserveOnSubmit debits avail for a close-family order and records the
// split for later credit-back/fill bookkeeping. Open orders reserve
// nothing; avail only grows once an open order actually fills.
func (a *Adapter) reserveOnSubmit(code string, side domain.Side, offset domain.Offset, qty float64) reservationSplit {
	if offset == domain.OffsetOpen {
		return reservationSplit{}
	}

	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	p := a.getOrCreatePositionLocked(code)

	long := side == domain.Sell // selling closes a long position
	var split reservationSplit
	switch offset {
	case domain.OffsetCloseToday:
		if long {
			split = reservationSplit{NewQty: min(qty, p.LongNewAvail)}
		} else {
			split = reservationSplit{NewQty: min(qty, p.ShortNewAvail)}
		}
	case domain.OffsetCloseYesterday:
		if long {
			split = reservationSplit{PreQty: min(qty, p.LongPreAvail)}
		} else {
			split = reservationSplit{PreQty: min(qty, p.ShortPreAvail)}
		}
	default: // OffsetClose: pre first, spill to new
		if long {
			split = splitPreThenNew(p.LongPreAvail, p.LongNewAvail, qty)
		} else {
			split = splitPreThenNew(p.ShortPreAvail, p.ShortNewAvail, qty)
		}
	}

	if long {
		p.LongPreAvail -= split.PreQty
		p.LongNewAvail -= split.NewQty
	} else {
		p.ShortPreAvail -= split.PreQty
		p.ShortNewAvail -= split.NewQty
	}
	return split
}

// creditBack reverses a fraction of a reservation (remaining/original qty)
// on cancel, reject, or error.
func (a *Adapter) creditBack(code string, side domain.Side, split reservationSplit, fraction float64) {
	if split.PreQty == 0 && split.NewQty == 0 {
		return
	}
	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	p := a.getOrCreatePositionLocked(code)
	long := side == domain.Sell
	if long {
		p.LongPreAvail += split.PreQty * fraction
		p.LongNewAvail += split.NewQty * fraction
	} else {
		p.ShortPreAvail += split.PreQty * fraction
		p.ShortNewAvail += split.NewQty * fraction
	}
}

// applyFillToPosition mutates vol/avail for one trade, following §4.C's
// per-offset accounting rules. Open fills grow new_vol/new_avail directly;
// close-family fills decrement vol using the same reserved split.
func (a *Adapter) applyFillToPosition(code string, side domain.Side, offset domain.Offset, qty float64, split reservationSplit, originalQty float64) {
	a.booksMu.Lock()
	defer a.booksMu.Unlock()
	p := a.getOrCreatePositionLocked(code)

	if offset == domain.OffsetOpen {
		opensLong := side == domain.Buy
		if opensLong {
			p.LongNewVol += qty
			p.LongNewAvail += qty
		} else {
			p.ShortNewVol += qty
			p.ShortNewAvail += qty
		}
		return
	}

	long := side == domain.Sell
	fraction := 1.0
	if originalQty > 0 {
		fraction = qty / originalQty
	}
	preDelta := split.PreQty * fraction
	newDelta := split.NewQty * fraction
	if long {
		p.LongPreVol -= preDelta
		p.LongNewVol -= newDelta
	} else {
		p.ShortPreVol -= preDelta
		p.ShortNewVol -= newDelta
	}
}
