package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDebouncerExpiresAfterWindow(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(DefaultTypingWindow, WithClock(clock.Now))
	defer d.Stop()

	deadline := d.Touch("alice")
	require.Equal(t, clock.Now().Add(2000*time.Millisecond), deadline)
	require.True(t, d.Active("alice"))

	clock.Advance(1999 * time.Millisecond)
	require.True(t, d.Active("alice"))

	clock.Advance(time.Millisecond)
	require.False(t, d.Active("alice"), "signal must be cleared 2000ms after the last event")
}

func TestDebouncerRefreshExtendsWindow(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(DefaultTypingWindow, WithClock(clock.Now))
	defer d.Stop()

	d.Touch("alice")
	clock.Advance(1000 * time.Millisecond)
	d.Touch("alice")

	clock.Advance(1500 * time.Millisecond)
	require.True(t, d.Active("alice"), "refresh at 1000ms must not expire at 2000ms")

	clock.Advance(500 * time.Millisecond)
	require.False(t, d.Active("alice"))
}

func TestDebouncerNamesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(DefaultTypingWindow, WithClock(clock.Now))
	defer d.Stop()

	d.Touch("alice")
	clock.Advance(1500 * time.Millisecond)
	d.Touch("bob")
	require.Equal(t, []string{"alice", "bob"}, d.ActiveNames())

	clock.Advance(600 * time.Millisecond)
	require.Equal(t, []string{"bob"}, d.ActiveNames())

	d.Clear("bob")
	require.Empty(t, d.ActiveNames())
}

func TestDebouncerExpiryHook(t *testing.T) {
	expired := make(chan string, 4)
	d := NewDebouncer(30*time.Millisecond, WithExpiryHook(func(name string) { expired <- name }))
	defer d.Stop()

	d.Touch("alice")
	time.Sleep(15 * time.Millisecond)
	d.Touch("alice")

	select {
	case name := <-expired:
		require.Equal(t, "alice", name)
	case <-time.After(time.Second):
		t.Fatal("expiry hook never ran")
	}
	require.False(t, d.Active("alice"))

	select {
	case name := <-expired:
		t.Fatalf("refreshed signal expired twice: %s", name)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncerClearSkipsHook(t *testing.T) {
	expired := make(chan string, 1)
	d := NewDebouncer(20*time.Millisecond, WithExpiryHook(func(name string) { expired <- name }))
	defer d.Stop()

	d.Touch("alice")
	d.Clear("alice")

	select {
	case name := <-expired:
		t.Fatalf("cleared signal ran the hook for %s", name)
	case <-time.After(60 * time.Millisecond):
	}
}
