// Package watchdog guarantees the vehicle stops when control input is not
// being actively refreshed. No motor command may remain active longer than
// the staleness threshold without a corroborating fresh sample.
package watchdog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Watchdog tracks the recency of control samples with a periodic check and
// invokes the stale callback exactly once per staleness episode. The check
// interval bounds the latency before a stop is issued and must stay well
// below the staleness threshold; config validation enforces the ordering.
type Watchdog struct {
	check      time.Duration
	staleAfter time.Duration
	onStale    func()
	log        zerolog.Logger

	mu      sync.Mutex
	last    time.Time
	tripped bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Watchdog that compares sample age against staleAfter
// every check interval and calls onStale on the first stale check of an
// episode. The watchdog starts in the tripped state: nothing fires until a
// first sample arms it, since no motor command can be active before then.
func New(check, staleAfter time.Duration, onStale func(), log zerolog.Logger) *Watchdog {
	return &Watchdog{
		check:      check,
		staleAfter: staleAfter,
		onStale:    onStale,
		log:        log,
		tripped:    true,
		stop:       make(chan struct{}),
	}
}

// Touch arms the watchdog with a fresh sample time. It re-arms regardless
// of whether a stop was issued during the previous episode.
func (w *Watchdog) Touch(at time.Time) {
	w.mu.Lock()
	w.last = at
	w.tripped = false
	w.mu.Unlock()
}

// Tripped reports whether the current episode already forced a stop.
func (w *Watchdog) Tripped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tripped
}

// Start launches the periodic staleness check in a background goroutine.
func (w *Watchdog) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.check)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case now := <-ticker.C:
				w.checkStale(now)
			}
		}
	}()
}

// Stop tears down the check timer. Idempotent; no check fires afterwards.
func (w *Watchdog) Stop() {
	select {
	case <-w.stop:
		// already closed
	default:
		close(w.stop)
	}
	w.wg.Wait()
}

// checkStale trips at most once per episode: the flag stays set until the
// next fresh sample, so redundant stop frames never flood the serial link.
func (w *Watchdog) checkStale(now time.Time) {
	w.mu.Lock()
	if w.tripped || now.Sub(w.last) <= w.staleAfter {
		w.mu.Unlock()
		return
	}
	w.tripped = true
	age := now.Sub(w.last)
	w.mu.Unlock()

	w.log.Warn().Dur("sample_age", age).Msg("control input stale, forcing stop")
	if w.onStale != nil {
		w.onStale()
	}
}
