package relay

import (
	"sync"
	"time"
)

type marker struct {
	started time.Time
	token   uint64
}

// DedupWindow tracks fingerprints of messages currently being relayed.
// A marker lives until its attempt ends, or at most for the retention
// interval if the release is ever missed.
type DedupWindow struct {
	mu        sync.Mutex
	inFlight  map[Fingerprint]marker
	retention time.Duration
	nextToken uint64
	now       func() time.Time
}

// NewDedupWindow creates a window whose markers expire after retention.
func NewDedupWindow(retention time.Duration) *DedupWindow {
	return &DedupWindow{
		inFlight:  make(map[Fingerprint]marker),
		retention: retention,
		now:       time.Now,
	}
}

// TryBegin admits fp if no attempt for it is in flight.
func (w *DedupWindow) TryBegin(fp Fingerprint) bool {
	_, ok := w.begin(fp)
	return ok
}

// End releases the marker for fp.
func (w *DedupWindow) End(fp Fingerprint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, fp)
}

// Begin is the scoped form of TryBegin. The returned release is safe to call
// more than once and only removes the marker this call created, so a stale
// release cannot free a newer attempt that re-acquired an expired marker.
func (w *DedupWindow) Begin(fp Fingerprint) (func(), bool) {
	token, ok := w.begin(fp)
	if !ok {
		return func() {}, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if m, ok := w.inFlight[fp]; ok && m.token == token {
				delete(w.inFlight, fp)
			}
		})
	}, true
}

func (w *DedupWindow) begin(fp Fingerprint) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.sweepLocked(now)

	if _, exists := w.inFlight[fp]; exists {
		return 0, false
	}

	w.nextToken++
	w.inFlight[fp] = marker{started: now, token: w.nextToken}
	return w.nextToken, true
}

// Sweep drops markers older than the retention interval and reports how many
// were removed.
func (w *DedupWindow) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sweepLocked(w.now())
}

func (w *DedupWindow) sweepLocked(now time.Time) int {
	if w.retention <= 0 {
		return 0
	}

	removed := 0
	for fp, m := range w.inFlight {
		if now.Sub(m.started) >= w.retention {
			delete(w.inFlight, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of in-flight markers.
func (w *DedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}
