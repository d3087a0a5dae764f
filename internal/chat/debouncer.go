package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultTypingWindow is how long a typing signal stays active without a
// refresh.
const DefaultTypingWindow = 2000 * time.Millisecond

type typingSignal struct {
	deadline time.Time
	timer    *time.Timer
	gen      uint64
}

// Debouncer turns raw typing events into self-expiring signals. It is
// advisory state for UI purposes and never gates other logic.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	now      func() time.Time
	onExpire func(name string)
	signals  map[string]*typingSignal
	gen      uint64
}

type DebouncerOption func(*Debouncer)

func WithClock(now func() time.Time) DebouncerOption {
	return func(d *Debouncer) { d.now = now }
}

// WithExpiryHook registers fn to run, outside the lock, when a name's
// signal lapses without a refresh.
func WithExpiryHook(fn func(name string)) DebouncerOption {
	return func(d *Debouncer) { d.onExpire = fn }
}

func NewDebouncer(window time.Duration, opts ...DebouncerOption) *Debouncer {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	d := &Debouncer{
		window:  window,
		now:     time.Now,
		signals: make(map[string]*typingSignal),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Touch records typing activity for name and returns the new expiry. Each
// call restarts that name's timer; other names are unaffected.
func (d *Debouncer) Touch(name string) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	deadline := d.now().Add(d.window)

	if s, ok := d.signals[name]; ok {
		s.timer.Stop()
	}
	d.signals[name] = &typingSignal{
		deadline: deadline,
		gen:      gen,
		timer:    time.AfterFunc(d.window, func() { d.expire(name, gen) }),
	}
	return deadline
}

// Active reports whether name typed within the last window.
func (d *Debouncer) Active(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.signals[name]
	return ok && d.now().Before(s.deadline)
}

// ActiveNames returns every name with a live signal, sorted.
func (d *Debouncer) ActiveNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	names := lo.Keys(lo.PickBy(d.signals, func(_ string, s *typingSignal) bool {
		return now.Before(s.deadline)
	}))
	sort.Strings(names)
	return names
}

// Clear drops name's signal without running the expiry hook.
func (d *Debouncer) Clear(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.signals[name]; ok {
		s.timer.Stop()
		delete(d.signals, name)
	}
}

// Stop cancels every pending timer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, s := range d.signals {
		s.timer.Stop()
		delete(d.signals, name)
	}
}

func (d *Debouncer) expire(name string, gen uint64) {
	d.mu.Lock()
	s, ok := d.signals[name]
	if !ok || s.gen != gen {
		// refreshed or cleared since this timer was armed
		d.mu.Unlock()
		return
	}
	delete(d.signals, name)
	hook := d.onExpire
	d.mu.Unlock()

	if hook != nil {
		hook(name)
	}
}
