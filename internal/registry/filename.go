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

package registry

import (
	"strconv"
	"strings"
)

// DefaultSuffix is the socket filename suffix drivers are expected to use;
// deployments can override it via configuration.
const DefaultSuffix = ".drv.sock"

// ParseSocketName validates filename against the <name>.<slot>.<suffix>
// grammar: name is any non-empty run of characters containing neither '.'
// nor '/', slot is a non-empty digit string, suffix must match exactly.
func ParseSocketName(filename, suffix string) (name string, slot uint32, ok bool) {
	if !strings.HasSuffix(filename, suffix) {
		return "", 0, false
	}

	base := strings.TrimSuffix(filename, suffix)
	if base == "" {
		return "", 0, false
	}

	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return "", 0, false
	}

	name = base[:idx]
	slotStr := base[idx+1:]

	if strings.ContainsAny(name, "./") {
		return "", 0, false
	}
	for _, r := range slotStr {
		if r < '0' || r > '9' {
			return "", 0, false
		}
	}

	n, err := strconv.ParseUint(slotStr, 10, 32)
	if err != nil {
		return "", 0, false
	}

	return name, uint32(n), true
}
