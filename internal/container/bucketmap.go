/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package container provides the Pearson-hashed bucket map that backs the
// driver registry: a map from hash(name, slot) to a collision chain of
// entries, keyed by the (name, slot) tuple itself.
package container

import (
	"sync"
	"sync/atomic"

	"github.com/sabouaram/drvshell/internal/errs"
)

// Key identifies a driver record by its socket filename's (name, slot)
// pair, exactly as parsed by the directory watcher's filename grammar.
type Key struct {
	Name string
	Slot uint32
}

// BucketMap is a Pearson-hashed map keyed by Key: a sync.Mutex guarding a
// map of *atomic.Value, bucketed by the 8-bit Pearson hash of the key,
// with collision chains (a slice per bucket) rather than a single slot per
// key, so that two unrelated (name, slot) pairs that hash to the same
// bucket still coexist.
type BucketMap struct {
	m       sync.Mutex
	buckets map[byte]*atomic.Value // byte -> []entry
}

type entry struct {
	key Key
	val interface{}
}

// New returns an empty BucketMap.
func New() *BucketMap {
	return &BucketMap{
		buckets: make(map[byte]*atomic.Value),
	}
}

func (b *BucketMap) chain(h byte) []entry {
	v, ok := b.buckets[h]
	if !ok {
		return nil
	}
	if chain, ok := v.Load().([]entry); ok {
		return chain
	}
	return nil
}

// Has reports whether key is present.
func (b *BucketMap) Has(key Key) bool {
	b.m.Lock()
	defer b.m.Unlock()

	h := pearson(key.Name, key.Slot)
	for _, e := range b.chain(h) {
		if e.key == key {
			return true
		}
	}
	return false
}

// Get returns the value stored for key, or false if absent.
func (b *BucketMap) Get(key Key) (interface{}, bool) {
	b.m.Lock()
	defer b.m.Unlock()

	h := pearson(key.Name, key.Slot)
	for _, e := range b.chain(h) {
		if e.key == key {
			return e.val, true
		}
	}
	return nil, false
}

// Insert adds key -> val. Returns a CodeContainerDuplicate error if key is
// already present: duplicate (name, slot) registration is a fatal
// invariant for the driver registry, so Insert never silently overwrites.
func (b *BucketMap) Insert(key Key, val interface{}) error {
	b.m.Lock()
	defer b.m.Unlock()

	h := pearson(key.Name, key.Slot)
	chain := b.chain(h)

	for _, e := range chain {
		if e.key == key {
			return errs.CodeContainerDuplicate.Error()
		}
	}

	chain = append(chain, entry{key: key, val: val})

	v, ok := b.buckets[h]
	if !ok {
		v = new(atomic.Value)
		b.buckets[h] = v
	}
	v.Store(chain)

	return nil
}

// Delete removes key, if present. It is not an error to delete an absent
// key. The bucket entry itself is kept, storing a filtered chain, rather
// than deleted from the map.
func (b *BucketMap) Delete(key Key) {
	b.m.Lock()
	defer b.m.Unlock()

	h := pearson(key.Name, key.Slot)
	v, ok := b.buckets[h]
	if !ok {
		return
	}

	chain := b.chain(h)
	out := make([]entry, 0, len(chain))
	for _, e := range chain {
		if e.key != key {
			out = append(out, e)
		}
	}
	v.Store(out)
}

// Keys returns every currently-registered key, in no particular order.
func (b *BucketMap) Keys() []Key {
	b.m.Lock()
	defer b.m.Unlock()

	res := make([]Key, 0)
	for h := range b.buckets {
		for _, e := range b.chain(h) {
			res = append(res, e.key)
		}
	}
	return res
}

// Len returns the total number of registered entries across all buckets.
func (b *BucketMap) Len() int {
	return len(b.Keys())
}
