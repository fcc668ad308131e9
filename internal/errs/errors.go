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

package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error extends the standard error with a numeric code and a parent chain.
type Error interface {
	error

	IsCode(code CodeError) bool
	HasCode(code CodeError) bool
	GetCode() CodeError

	HasParent() bool
	GetParent() []error
	Add(parent ...error)

	ContainsString(s string) bool
	Unwrap() []error
}

type ers struct {
	c CodeError
	m string
	p []Error
}

func (e *ers) Error() string {
	if len(e.p) == 0 {
		return e.m
	}

	var b strings.Builder
	b.WriteString(e.m)
	for _, p := range e.p {
		b.WriteString(": ")
		b.WriteString(p.Error())
	}
	return b.String()
}

func (e *ers) IsCode(code CodeError) bool {
	return e.c == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.c == code {
		return true
	}
	for _, p := range e.p {
		if p.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) GetCode() CodeError {
	return e.c
}

func (e *ers) HasParent() bool {
	return len(e.p) > 0
}

func (e *ers) GetParent() []error {
	res := make([]error, 0, len(e.p))
	for _, p := range e.p {
		res = append(res, p)
	}
	return res
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p == nil {
			continue
		}
		e.p = append(e.p, Make(p))
	}
}

func (e *ers) ContainsString(s string) bool {
	if strings.Contains(e.m, s) {
		return true
	}
	for _, p := range e.p {
		if p.ContainsString(s) {
			return true
		}
	}
	return false
}

func (e *ers) Unwrap() []error {
	return e.GetParent()
}

// New builds an Error from a code, message and optional parents.
func New(code CodeError, message string, parent ...error) Error {
	e := &ers{c: code, m: message}
	e.Add(parent...)
	return e
}

// Newf is New with fmt.Sprintf-formatted message.
func Newf(code CodeError, pattern string, args ...interface{}) Error {
	return New(code, fmt.Sprintf(pattern, args...))
}

// Make wraps a plain error into Error, or returns it unchanged if it
// already is one.
func Make(e error) Error {
	if e == nil {
		return nil
	}
	var err Error
	if errors.As(e, &err) {
		return err
	}
	return &ers{c: UnknownError, m: e.Error()}
}

// Is reports whether e can be treated as an Error.
func Is(e error) bool {
	var err Error
	return errors.As(e, &err)
}

// HasCode reports whether e, or any of its parents, carries code.
func HasCode(e error, code CodeError) bool {
	var err Error
	if !errors.As(e, &err) {
		return false
	}
	return err.HasCode(code)
}
