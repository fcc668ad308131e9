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

// Package errs provides coded, parent-chaining errors for the driver broker.
package errs

import "math"

// CodeError is a numeric error classification, scoped per package the way
// the rest of this module's error ranges are scoped.
type CodeError uint16

const (
	UnknownError CodeError = 0

	UnknownMessage = "unknown error"
)

// DrvShellBase is the first code reserved for this module. Every code the
// module's packages use is declared below, numbered upward from this value,
// so codes never collide across packages.
const DrvShellBase CodeError = 9000

const (
	CodeBufferShrink CodeError = DrvShellBase + iota
	CodeBufferOverflow
	CodeContainerDuplicate
	CodeContainerNotFound
	CodeIOServiceRegister
	CodeIOServiceClosed
	CodeSocketBusy
	CodeSocketClosed
	CodeSocketPartial
	CodeProtocolShort
	CodeProtocolBadType
	CodeProtocolTooLarge
	CodeWatchMissing
	CodeRegistryDuplicate
	CodeRegistryUnknownDriver
	CodeRegistryBusy
	CodeFrontendUnknownCommand
	CodeConfigInvalid
)

// ParseCodeError clamps an int64 into the valid CodeError range.
func ParseCodeError(i int64) CodeError {
	if i < 0 {
		return UnknownError
	} else if i >= int64(math.MaxUint16) {
		return math.MaxUint16
	}
	return CodeError(i)
}

func (c CodeError) Uint16() uint16 {
	return uint16(c)
}

// Message returns the static, human-readable text for a code. Unregistered
// codes return UnknownMessage rather than panicking.
func (c CodeError) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return UnknownMessage
}

var messages = map[CodeError]string{
	CodeBufferShrink:           "buffer shrink below user size",
	CodeBufferOverflow:         "buffer capacity exceeded",
	CodeContainerDuplicate:     "duplicate entry in bucket map",
	CodeContainerNotFound:      "entry not found in bucket map",
	CodeIOServiceRegister:      "failed to register job with the I/O service",
	CodeIOServiceClosed:        "I/O service is closed",
	CodeSocketBusy:             "socket has a send already in flight",
	CodeSocketClosed:           "socket is closed",
	CodeSocketPartial:          "partial read or write on socket",
	CodeProtocolShort:          "frame shorter than declared length",
	CodeProtocolBadType:        "unknown protocol message type",
	CodeProtocolTooLarge:       "frame exceeds maximum allowed size",
	CodeWatchMissing:           "watched directory no longer exists",
	CodeRegistryDuplicate:      "driver already registered for this name and slot",
	CodeRegistryUnknownDriver:  "no driver registered for this name and slot",
	CodeRegistryBusy:           "driver busy, try again",
	CodeFrontendUnknownCommand: "invalid command",
	CodeConfigInvalid:          "invalid configuration",
}

// Error builds a new Error from this code and optional parents.
func (c CodeError) Error(parent ...error) Error {
	return New(c, c.Message(), parent...)
}
