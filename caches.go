package dbus

import (
	"sync"
)

// cache is a concurrent memo of fallible computations.
type cache[K comparable, V any] struct {
	m sync.Map
}

type cacheEntry[V any] struct {
	val V
	err error
}

// Get returns the cached result for k, and whether there was one.
func (c *cache[K, V]) Get(k K) (val V, err error, found bool) {
	ent, ok := c.m.Load(k)
	if !ok {
		var zero V
		return zero, nil, false
	}
	e := ent.(cacheEntry[V])
	return e.val, e.err, true
}

// Set records val as the result for k.
func (c *cache[K, V]) Set(k K, val V) {
	c.m.Store(k, cacheEntry[V]{val: val})
}

// SetErr records err as the result for k.
func (c *cache[K, V]) SetErr(k K, err error) {
	c.m.Store(k, cacheEntry[V]{err: err})
}
