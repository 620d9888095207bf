package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Limiter gates request admission per identity.
type Limiter interface {
	// TryAcquire records a request attempt. It returns false when the
	// identity already used its budget within the trailing window.
	TryAcquire(identity uuid.UUID) bool

	// Release drops the identity's window. It is a memory reclamation hint
	// (e.g. on disconnect), not a refund: in-flight requests are unaffected.
	Release(identity uuid.UUID)
}

// window holds the request timestamps for one identity. Each window has its
// own mutex so identities never contend with each other on admission.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// SlidingWindow is an in-process sliding-window limiter. Bursts up to
// maxRequests are admitted instantly, then requests are rejected until the
// oldest timestamp ages out of the window.
type SlidingWindow struct {
	maxRequests int
	duration    time.Duration

	mu      sync.RWMutex
	windows map[uuid.UUID]*window

	now func() time.Time
}

// NewSlidingWindow creates a limiter admitting maxRequests per identity per
// window duration.
func NewSlidingWindow(maxRequests int, duration time.Duration) *SlidingWindow {
	return &SlidingWindow{
		maxRequests: maxRequests,
		duration:    duration,
		windows:     make(map[uuid.UUID]*window),
		now:         time.Now,
	}
}

// TryAcquire prunes expired timestamps, then checks and appends atomically
// for the identity. Exactly one caller wins the last remaining slot under
// concurrency.
func (l *SlidingWindow) TryAcquire(identity uuid.UUID) bool {
	w := l.windowFor(identity)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := l.now().Add(-l.duration)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) >= l.maxRequests {
		return false
	}
	w.times = append(w.times, l.now())
	return true
}

// Release removes the identity's window entirely. An expired window behaves
// identically to an absent one, so this is purely an optimization.
func (l *SlidingWindow) Release(identity uuid.UUID) {
	l.mu.Lock()
	delete(l.windows, identity)
	l.mu.Unlock()
}

func (l *SlidingWindow) windowFor(identity uuid.UUID) *window {
	l.mu.RLock()
	w, ok := l.windows[identity]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[identity]; ok {
		return w
	}
	w = &window{}
	l.windows[identity] = w
	return w
}
