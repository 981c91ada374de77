package tick

// HistoryWindow is the number of ticks a History remembers, counting the
// last confirmed tick.
const HistoryWindow = 64

// History records which ticks have been fully received for one entity.
//
// Bit N of mask is set when tick last-N was confirmed. Ticks older than the
// window are reported as not confirmed.
type History struct {
	mask uint64
	last Tick
}

// NewHistory returns a history with t already confirmed.
func NewHistory(t Tick) History {
	return History{mask: 1, last: t}
}

// LastTick returns the newest confirmed tick.
func (h *History) LastTick() Tick {
	return h.last
}

// Confirm marks t as received. Confirmations may arrive in any order.
func (h *History) Confirm(t Tick) {
	if t > h.last {
		diff := t - h.last
		if diff >= HistoryWindow {
			h.mask = 0
		} else {
			h.mask <<= uint64(diff)
		}
		h.mask |= 1
		h.last = t
		return
	}

	ago := h.last - t
	if ago < HistoryWindow {
		h.mask |= 1 << uint64(ago)
	}
}

// Contains reports whether t is known to be confirmed.
func (h *History) Contains(t Tick) bool {
	if t > h.last {
		return false
	}

	ago := h.last - t
	if ago >= HistoryWindow {
		return false
	}

	return h.mask>>uint64(ago)&1 == 1
}

// ContainsAny reports whether any tick in [start, end] is confirmed.
func (h *History) ContainsAny(start, end Tick) bool {
	if start > end {
		return false
	}
	if end > h.last {
		end = h.last
	}
	for t := end; t >= start; t-- {
		if h.last-t >= HistoryWindow {
			return false
		}
		if h.Contains(t) {
			return true
		}
		if t == 0 {
			break
		}
	}
	return false
}
