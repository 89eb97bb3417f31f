package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// order returns the ids of live callbacks by walking the chain.
func (r *registry) order(ids map[int32]int) []int {
	var out []int
	for i := r.head; i != noSlot; i = r.slots[i].next {
		out = append(out, ids[i])
	}
	return out
}

func newRegistry(max int) *registry {
	r := &registry{}
	r.init(max)
	return r
}

func TestRegistryAppendsInOrder(t *testing.T) {
	r := newRegistry(0)

	var calls []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		_, err := r.add(func() { calls = append(calls, name) })
		require.NoError(t, err)
	}

	r.each()
	assert.Equal(t, []string{"A", "B", "C"}, calls)
	assert.Equal(t, 3, r.count)
}

func TestRegistryRemoveRelinks(t *testing.T) {
	r := newRegistry(0)

	var calls []string
	handles := map[string]Handle{}
	for _, name := range []string{"A", "B", "C"} {
		name := name
		h, err := r.add(func() { calls = append(calls, name) })
		require.NoError(t, err)
		handles[name] = h
	}

	require.True(t, r.remove(handles["B"]))
	r.each()
	assert.Equal(t, []string{"A", "C"}, calls)

	calls = nil
	require.True(t, r.remove(handles["A"]))
	r.each()
	assert.Equal(t, []string{"C"}, calls)

	calls = nil
	require.True(t, r.remove(handles["C"]))
	r.each()
	assert.Empty(t, calls)
	assert.Equal(t, noSlot, r.head)
	assert.Equal(t, noSlot, r.tail)
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := newRegistry(0)
	_, err := r.add(func() {})
	require.NoError(t, err)

	assert.False(t, r.remove(Handle{}))
	assert.False(t, r.remove(Handle{slot: 7, gen: 1}))
	assert.False(t, r.remove(Handle{slot: -3, gen: 1}))
	assert.Equal(t, 1, r.count)
}

func TestRegistryDoubleRemove(t *testing.T) {
	r := newRegistry(0)
	h, err := r.add(func() {})
	require.NoError(t, err)

	assert.True(t, r.remove(h))
	assert.False(t, r.remove(h))
	assert.Equal(t, 0, r.count)
}

func TestRegistryStaleHandleDoesNotHitReusedSlot(t *testing.T) {
	r := newRegistry(0)
	old, err := r.add(func() {})
	require.NoError(t, err)
	require.True(t, r.remove(old))

	var called bool
	fresh, err := r.add(func() { called = true })
	require.NoError(t, err)
	require.Equal(t, old.slot, fresh.slot, "released slot should be reused")

	assert.False(t, r.remove(old))
	r.each()
	assert.True(t, called)
	assert.Equal(t, 1, r.count)
}

func TestRegistryCap(t *testing.T) {
	r := newRegistry(2)

	h1, err := r.add(func() {})
	require.NoError(t, err)
	_, err = r.add(func() {})
	require.NoError(t, err)

	_, err = r.add(func() {})
	assert.ErrorIs(t, err, ErrRegistryFull)

	require.True(t, r.remove(h1))
	_, err = r.add(func() {})
	assert.NoError(t, err)
}

// Random register/unregister sequences against a slice model.
func TestRegistryMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		r := newRegistry(0)
		ids := map[int32]int{}
		var model []int
		live := map[int]Handle{}
		var dead []Handle
		next := 0

		for op := 0; op < 200; op++ {
			switch {
			case len(live) == 0 || rng.Intn(3) > 0:
				id := next
				next++
				h, err := r.add(func() {})
				require.NoError(t, err)
				ids[h.slot] = id
				live[id] = h
				model = append(model, id)
			case len(dead) > 0 && rng.Intn(4) == 0:
				// Removing an already removed handle changes nothing.
				assert.False(t, r.remove(dead[rng.Intn(len(dead))]))
			default:
				victim := model[rng.Intn(len(model))]
				require.True(t, r.remove(live[victim]))
				dead = append(dead, live[victim])
				delete(live, victim)
				for i, id := range model {
					if id == victim {
						model = append(model[:i], model[i+1:]...)
						break
					}
				}
			}

			require.Equal(t, len(model), r.count)
			if len(model) == 0 {
				require.Empty(t, r.order(ids))
			} else {
				require.Equal(t, model, r.order(ids))
			}
		}
	}
}
