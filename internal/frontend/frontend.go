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

// Package frontend implements the line-oriented shell: it tokenizes stdin
// into list/help/cmd verbs, drives the registry, and renders list/help and
// "Invalid command" locally while letting the registry's own output sink
// render asynchronous command responses (it owns when the prompt follows
// those, since a response can arrive an arbitrary time after dispatch).
package frontend

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sabouaram/drvshell/internal/errs"
	"github.com/sabouaram/drvshell/internal/registry"
)

const helpText = `Available commands:
  list                                  list every registered driver and its commands
  cmd <driver> <slot> <name> [args...]  dispatch a command to a driver
  help                                  show this text
`

// Shell reads whitespace-tokenized lines from an input reader and writes
// rendered output, including the prompt, to out.
type Shell struct {
	reg    *registry.Registry
	out    io.Writer
	prompt string
}

// New returns a Shell driving reg, writing to out, using prompt. It
// installs itself as reg's output sink and prompt string, so asynchronous
// command responses are rendered through the same writer as list/help.
func New(reg *registry.Registry, out io.Writer, prompt string) *Shell {
	s := &Shell{reg: reg, out: out, prompt: prompt}
	reg.SetPrompt(prompt)
	reg.SetOutput(func(text string) {
		fmt.Fprint(s.out, text)
	})
	return s
}

// Run prints the initial prompt, then reads and dispatches one line at a
// time until in reaches EOF or scanning fails.
func (s *Shell) Run(in io.Reader) error {
	fmt.Fprint(s.out, s.prompt)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
	return scanner.Err()
}

func (s *Shell) handleLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		fmt.Fprint(s.out, s.prompt)
		return
	}

	switch fields[0] {
	case "list":
		s.list()
		fmt.Fprint(s.out, s.prompt)
	case "help":
		fmt.Fprint(s.out, helpText)
		fmt.Fprint(s.out, s.prompt)
	case "cmd":
		if !s.dispatch(fields[1:]) {
			fmt.Fprint(s.out, s.prompt)
		}
	default:
		s.invalid()
		fmt.Fprint(s.out, s.prompt)
	}
}

// dispatch parses "cmd <driver> <slot> <name> [args...]" and reports
// whether a command was actually sent: false means the caller still owes
// the prompt, true means the registry's own output will print it once the
// response (or a resend failure) arrives.
func (s *Shell) dispatch(args []string) bool {
	if len(args) < 3 {
		s.invalid()
		return false
	}

	drv := args[0]
	slot, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		s.invalid()
		return false
	}
	name := args[2]

	argBytes := make([][]byte, 0, len(args)-3)
	for _, a := range args[3:] {
		argBytes = append(argBytes, []byte(a))
	}

	derr := s.reg.Dispatch(drv, uint32(slot), name, argBytes)
	if derr == nil {
		return true
	}

	if errs.HasCode(derr, errs.CodeRegistryBusy) {
		fmt.Fprint(s.out, "driver busy, try again\n")
		return false
	}

	s.invalid()
	return false
}

func (s *Shell) invalid() {
	fmt.Fprint(s.out, "Invalid command\n")
}

func (s *Shell) list() {
	for _, d := range s.reg.List() {
		for _, c := range d.Commands {
			fmt.Fprintf(s.out, "Driver: %s / Slot: %d / %s <arity: %d> --- %s\n", d.Name, d.Slot, c.Name, c.Arity, c.Descr)
		}
	}
}
