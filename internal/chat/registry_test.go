package chat

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry(4)

	_, err := r.Register("c1")
	require.NoError(t, err)

	_, err = r.Register("c1")
	require.ErrorIs(t, err, ErrDuplicateConnection)
	require.Equal(t, 1, r.Len())
}

func TestRegistryBind(t *testing.T) {
	r := NewRegistry(4)
	_, err := r.Register("c1")
	require.NoError(t, err)
	_, err = r.Register("c2")
	require.NoError(t, err)

	_, err = r.Bind("c1", 1, "   ")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = r.Bind("missing", 1, "alice")
	require.ErrorIs(t, err, ErrUnknownConnection)

	joined, err := r.Bind("c1", 1, "  alice ")
	require.NoError(t, err)
	require.True(t, joined)

	joined, err = r.Bind("c1", 1, "alice")
	require.NoError(t, err)
	require.False(t, joined, "rebinding the same name is a no-op")

	_, err = r.Bind("c1", 1, "bob")
	require.ErrorIs(t, err, ErrAlreadyJoined)

	joined, err = r.Bind("c2", 2, "alice")
	require.NoError(t, err)
	require.False(t, joined, "second device for an online name")

	require.Equal(t, []string{"alice"}, r.Snapshot())
}

func TestRegistryUnregisterSharedName(t *testing.T) {
	r := NewRegistry(4)
	for _, id := range []string{"a1", "a2", "b1"} {
		_, err := r.Register(id)
		require.NoError(t, err)
	}
	_, _ = r.Bind("a1", 1, "alice")
	_, _ = r.Bind("a2", 1, "alice")
	_, _ = r.Bind("b1", 2, "bob")

	name, left, err := r.Unregister("a1")
	require.NoError(t, err)
	require.False(t, left)
	require.Empty(t, name)
	require.Equal(t, []string{"alice", "bob"}, r.Snapshot())

	name, left, err = r.Unregister("a2")
	require.NoError(t, err)
	require.True(t, left)
	require.Equal(t, "alice", name)
	require.Equal(t, []string{"bob"}, r.Snapshot())

	_, _, err = r.Unregister("a2")
	require.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRegistryUnregisterClosesQueue(t *testing.T) {
	r := NewRegistry(4)
	conn, err := r.Register("c1")
	require.NoError(t, err)

	_, left, err := r.Unregister("c1")
	require.NoError(t, err)
	require.False(t, left, "unbound connections never leave a name")

	_, open := <-conn.Outbound()
	require.False(t, open)
	require.False(t, conn.enqueue([]byte("late")))
}

func TestRegistryOnlineSetMatchesLiveConnections(t *testing.T) {
	r := NewRegistry(1)
	rng := rand.New(rand.NewSource(7))
	names := []string{"alice", "bob", "carol"}
	live := map[string]string{}
	next := 0

	for step := 0; step < 500; step++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			id := fmt.Sprintf("c%d", next)
			next++
			_, err := r.Register(id)
			require.NoError(t, err)
			name := names[rng.Intn(len(names))]
			_, err = r.Bind(id, 0, name)
			require.NoError(t, err)
			live[id] = name
		} else {
			for id := range live {
				_, _, err := r.Unregister(id)
				require.NoError(t, err)
				delete(live, id)
				break
			}
		}

		expected := map[string]bool{}
		for _, name := range live {
			expected[name] = true
		}
		want := make([]string, 0, len(expected))
		for name := range expected {
			want = append(want, name)
		}
		sort.Strings(want)
		require.Equal(t, want, r.Snapshot(), "step %d", step)
	}
}
