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

// Package ioservice is the single-threaded readiness loop over file
// descriptors: jobs are posted keyed by (fd, op) and invoked as the kernel
// reports readiness.
package ioservice

// Op is the readiness direction a job is registered for.
type Op int

const (
	Read Op = iota
	Write
)

// Mode controls whether a job is removed after its first invocation.
type Mode int

const (
	// Oneshot jobs are removed by the service before their callback runs.
	Oneshot Mode = iota
	// Persistent jobs remain registered until RemoveJob is called, which
	// is legal from inside the callback itself.
	Persistent
)

// Callback is invoked on the reactor's single thread when fd becomes ready
// for op. ctx is the opaque value passed to PostJob, returned unchanged.
type Callback func(fd int, op Op, ctx interface{})

type job struct {
	mode Mode
	fn   Callback
	ctx  interface{}
}
