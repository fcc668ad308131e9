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

package container

import "strconv"

// permutation is a fixed 256-entry Pearson permutation table, a bijection
// of [0,255], built once at init time from a fixed-seed linear
// congruential shuffle. It never changes at runtime, so every process
// hashes the same (name, slot) pair to the same bucket.
var permutation [256]byte

func init() {
	for i := range permutation {
		permutation[i] = byte(i)
	}

	// Fixed seed: a deterministic Fisher-Yates shuffle, not a random one.
	var state uint32 = 0x9E3779B9
	next := func() uint32 {
		state = state*1664525 + 1013904223
		return state
	}

	for i := 255; i > 0; i-- {
		j := int(next() % uint32(i+1))
		permutation[i], permutation[j] = permutation[j], permutation[i]
	}
}

// pearson computes an 8-bit Pearson hash over the canonical concatenation
// of name and the decimal slot number.
func pearson(name string, slot uint32) byte {
	key := name + "\x00" + strconv.FormatUint(uint64(slot), 10)

	var h byte
	for i := 0; i < len(key); i++ {
		h = permutation[h^key[i]]
	}
	return h
}
