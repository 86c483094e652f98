// Package window decides, per bid event, whether a lot's bidding deadline
// must be pushed back to stop last-second snipe wins.
package window

import "time"

// Window is the anti-snipe state of one auction lot. EndsAt only ever moves
// forward once the lot is open.
type Window struct {
	LotID            string
	EndsAt           time.Time
	AntiSnipeEnabled bool
	AntiSnipeSeconds int
}

// ShouldExtend reports whether a bid at bidTime lands inside the anti-snipe
// window. A bid with exactly AntiSnipeSeconds left extends (inclusive upper
// bound); a bid at or after EndsAt never extends, since a closed lot must be
// rejected by the caller rather than silently re-opened.
func ShouldExtend(bidTime time.Time, w Window) bool {
	if !w.AntiSnipeEnabled {
		return false
	}
	secondsLeft := w.EndsAt.Sub(bidTime).Seconds()
	return secondsLeft > 0 && secondsLeft <= float64(w.AntiSnipeSeconds)
}

// NextEnd computes the deadline a triggering bid pushes the lot to.
func (w Window) NextEnd(bidTime time.Time) time.Time {
	return bidTime.Add(time.Duration(w.AntiSnipeSeconds) * time.Second)
}

// ExtendTo moves the deadline to newEnd and reports whether it moved.
// The deadline is monotonically non-decreasing; an earlier newEnd is ignored.
func (w *Window) ExtendTo(newEnd time.Time) bool {
	if newEnd.After(w.EndsAt) {
		w.EndsAt = newEnd
		return true
	}
	return false
}
