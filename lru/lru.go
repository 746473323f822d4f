// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package lru provides a bounded, insertion-ordered cache of recently
// observed values, used to track what a remote peer already knows about
// (block hashes, transaction hashes) without re-announcing it.
package lru

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache is a bounded set of distinct values of type T. Unlike a classic LRU
// it is never "touched" on lookup: Contains does not change eviction order.
// Because every mutation is an Insert, eviction order is therefore strictly
// insertion order — the oldest surviving entry is evicted first once the
// cache is at capacity. This is the shape the network layer needs for peer
// knowledge caches: we only ever ask "have we told this peer about X yet",
// never "use X again".
type Cache[T comparable] struct {
	cache *lru.LRU[T, struct{}]
}

// New creates a Cache with the given positive capacity. It panics if
// capacity is not strictly positive, mirroring the precondition in the
// source specification.
func New[T comparable](capacity int) *Cache[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("lru: capacity must be positive, got %d", capacity))
	}
	backing, err := lru.NewLRU[T, struct{}](capacity, nil)
	if err != nil {
		// Only returned by simplelru for a non-positive size, already guarded above.
		panic(err)
	}
	return &Cache[T]{cache: backing}
}

// Insert adds x to the cache, evicting the oldest entry if the cache is at
// capacity. It reports whether x was newly inserted (false if it was already
// present).
func (c *Cache[T]) Insert(x T) bool {
	if c.cache.Contains(x) {
		return false
	}
	c.cache.Add(x, struct{}{})
	return true
}

// Contains reports whether x is currently held in the cache. It does not
// affect eviction order.
func (c *Cache[T]) Contains(x T) bool {
	return c.cache.Contains(x)
}

// Extend inserts every value produced by the iterator, in order.
func (c *Cache[T]) Extend(values []T) {
	for _, v := range values {
		c.Insert(v)
	}
}

// Len returns the number of distinct values currently held.
func (c *Cache[T]) Len() int {
	return c.cache.Len()
}
