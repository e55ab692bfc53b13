package sidevent

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// watchdog throttles how often Run will spin through an empty-looking
// readiness burst, used as SetWatchdog's idle-reap throttle. It wraps
// catrate.Limiter's sliding-window Allow rather than a hand-rolled
// token bucket — a watchdog only ever tracks one category ("idle-reap"),
// exactly catrate's single-category case.
type watchdog struct {
	limiter  *catrate.Limiter
	category any
}

func newWatchdog(rate time.Duration, burst int) *watchdog {
	return &watchdog{
		limiter:  catrate.NewLimiter(map[time.Duration]int{rate: burst}),
		category: "idle-reap",
	}
}

// wait blocks until the sliding window has room for another event.
func (w *watchdog) wait() {
	next, ok := w.limiter.Allow(w.category)
	if ok {
		return
	}
	if d := time.Until(next); d > 0 {
		time.Sleep(d)
	}
}
