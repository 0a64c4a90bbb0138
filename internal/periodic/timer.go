// Package periodic provides a lazy tick sequence for the server's
// housekeeping loop, in the style of the ticker-in-select idiom used by the
// ICE agent's event loop (internal/ice/agent.go's Ta/Tr tickers consumed
// from a select). Missing a tick is acceptable; consumers recompute
// wall-clock thresholds against stored last-fire timestamps rather than
// counting ticks.
package periodic

import "time"

// Timer fires on a fixed interval. Its zero value is not usable; create one
// with New.
type Timer struct {
	ticker *time.Ticker
}

// New creates a Timer that fires every interval, starting one interval from
// now.
func New(interval time.Duration) *Timer {
	return &Timer{ticker: time.NewTicker(interval)}
}

// C returns the channel a select statement should consume ticks from.
func (t *Timer) C() <-chan time.Time {
	return t.ticker.C
}

// Stop releases the underlying ticker's resources. The Timer must not be
// used afterward.
func (t *Timer) Stop() {
	t.ticker.Stop()
}
