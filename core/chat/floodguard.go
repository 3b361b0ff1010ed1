package chat

import (
	"sync"
	"time"
)

type floodKey struct {
	userID string
	roomID string
}

type floodWindow struct {
	mu     sync.Mutex
	stamps []time.Time // oldest first
	dead   bool        // removed from the map; callers must load a fresh window
}

// prune drops stamps at or before cutoff. w.mu must be held.
func (w *floodWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	w.stamps = w.stamps[i:]
}

// FloodGuard is a sliding-window rate limiter keyed by (user, room).
// Each key has its own lock; checks on different keys never contend.
// Windows live as long as they hold unexpired stamps, whatever happens to the
// connections that produced them.
type FloodGuard struct {
	max     int
	window  time.Duration
	now     func() time.Time
	windows sync.Map // floodKey -> *floodWindow
}

func NewFloodGuard(maxMessages int, window time.Duration) *FloodGuard {
	if maxMessages <= 0 {
		maxMessages = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FloodGuard{max: maxMessages, window: window, now: time.Now}
}

// lock returns the live window for key with its mutex held.
func (g *FloodGuard) lock(key floodKey) *floodWindow {
	for {
		v, ok := g.windows.Load(key)
		if !ok {
			v, _ = g.windows.LoadOrStore(key, &floodWindow{})
		}
		w := v.(*floodWindow)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

// Allow records an attempt and reports whether it fits within the window.
// Rejected attempts are not recorded.
func (g *FloodGuard) Allow(userID, roomID string) bool {
	now := g.now()
	w := g.lock(floodKey{userID: userID, roomID: roomID})
	defer w.mu.Unlock()

	w.prune(now.Add(-g.window))
	if len(w.stamps) >= g.max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Release hands back the most recent slot taken by Allow, for an attempt
// that failed before it produced a message.
func (g *FloodGuard) Release(userID, roomID string) {
	v, ok := g.windows.Load(floodKey{userID: userID, roomID: roomID})
	if !ok {
		return
	}
	w := v.(*floodWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(w.stamps); n > 0 && !w.dead {
		w.stamps = w.stamps[:n-1]
	}
}

// ForgetIdle drops the user's windows that no longer hold a stamp inside the
// window. Windows still counting recent attempts are kept.
func (g *FloodGuard) ForgetIdle(userID string) {
	cutoff := g.now().Add(-g.window)
	g.windows.Range(func(k, v interface{}) bool {
		if k.(floodKey).userID != userID {
			return true
		}
		w := v.(*floodWindow)
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.stamps) == 0 && !w.dead {
			w.dead = true
			g.windows.CompareAndDelete(k, w)
		}
		w.mu.Unlock()
		return true
	})
}

// size reports how many windows are tracked.
func (g *FloodGuard) size() int {
	n := 0
	g.windows.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
