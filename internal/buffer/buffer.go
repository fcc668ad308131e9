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

// Package buffer provides a growable byte region with an explicit consumer
// offset and a shrink policy, used by the socket server/client read and
// write paths.
package buffer

import "github.com/sabouaram/drvshell/internal/errs"

// Policy controls whether realloc is allowed to drop capacity.
type Policy int

const (
	// NonShrinkable never reduces capacity: realloc only grows it.
	NonShrinkable Policy = iota
	// Shrinkable allows realloc to reduce capacity down to new_size.
	Shrinkable
)

// Buffer owns a contiguous byte region with capacity >= user_size, a
// consumer-controlled offset (0 <= offset <= user_size), and a shrink
// policy.
type Buffer struct {
	data   []byte
	size   int
	offset int
	policy Policy
}

// New inits a Buffer with the given initial capacity and shrink policy.
func New(capacity int, policy Policy) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		data:   make([]byte, capacity),
		size:   0,
		offset: 0,
		policy: policy,
	}
}

// Bytes returns the user-visible region [0, user_size).
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Cap returns the current capacity of the backing store.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Len returns the current user_size.
func (b *Buffer) Len() int {
	return b.size
}

// Offset returns the consumer-controlled cursor into the user region.
func (b *Buffer) Offset() int {
	return b.offset
}

// SetOffset moves the cursor, clamped to [0, user_size].
func (b *Buffer) SetOffset(off int) {
	if off < 0 {
		off = 0
	}
	if off > b.size {
		off = b.size
	}
	b.offset = off
}

// Remaining returns the unconsumed tail of the user region, from offset to
// user_size.
func (b *Buffer) Remaining() []byte {
	return b.data[b.offset:b.size]
}

// Advance moves the offset forward by n bytes, clamped to user_size. It is
// used after a partial send/recv to record how much of the buffer has been
// consumed so far.
func (b *Buffer) Advance(n int) {
	b.SetOffset(b.offset + n)
}

// Realloc sets user_size to newSize. Capacity grows monotonically unless
// the buffer's policy is Shrinkable, in which case capacity may also drop
// to newSize. realloc(0) releases the payload storage. Bytes in
// [0, min(old_user_size, new_user_size)) are always preserved, and offset
// is clamped to the new user_size.
func (b *Buffer) Realloc(newSize int) error {
	if newSize < 0 {
		return errs.CodeBufferOverflow.Error()
	}

	if newSize == 0 {
		b.data = nil
		b.size = 0
		b.offset = 0
		return nil
	}

	if newSize > cap(b.data) {
		grown := make([]byte, newSize)
		copy(grown, b.data[:b.size])
		b.data = grown
	} else if b.policy == Shrinkable && newSize < cap(b.data) {
		shrunk := make([]byte, newSize)
		n := b.size
		if n > newSize {
			n = newSize
		}
		copy(shrunk, b.data[:n])
		b.data = shrunk
	}

	b.size = newSize
	if b.offset > b.size {
		b.offset = b.size
	}

	return nil
}

// Deinit releases the buffer's storage, equivalent to Realloc(0).
func (b *Buffer) Deinit() {
	_ = b.Realloc(0)
}

// Write appends p to the user region, growing capacity as needed. It never
// shrinks regardless of policy, matching append semantics.
func (b *Buffer) Write(p []byte) (int, error) {
	old := b.size
	need := old + len(p)

	if need > cap(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data[:old])
		b.data = grown
	}

	b.size = need
	copy(b.data[old:need], p)

	return len(p), nil
}
