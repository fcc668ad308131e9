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

// Package watch discovers driver sockets under a base directory: a bootstrap
// scan synthesizes on_created for every matching node already present, then
// an fsnotify watch translates CREATE/DELETE/self-delete filesystem events
// for the registry to consume, in kernel delivery order.
package watch

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/sabouaram/drvshell/internal/errs"
	"github.com/sabouaram/drvshell/internal/logging"
)

// Handler receives the logical events the watcher translates from raw
// filesystem notifications.
type Handler interface {
	OnCreated(name string)
	OnDeleted(name string)
	OnSelfDeleted()
}

// Watcher wraps fsnotify.Watcher, translating its Op bits into the three
// logical events the driver registry reacts to.
type Watcher struct {
	base string
	fsw  *fsnotify.Watcher
	log  logging.Logger
	done chan struct{}
}

// New creates a Watcher over base, creating the directory (mode 0700) if it
// does not already exist.
func New(base string, log logging.Logger) (*Watcher, error) {
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, errs.CodeWatchMissing.Error(err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.CodeWatchMissing.Error(err)
	}

	if err := fsw.Add(base); err != nil {
		_ = fsw.Close()
		return nil, errs.CodeWatchMissing.Error(err)
	}

	return &Watcher{base: base, fsw: fsw, log: log, done: make(chan struct{})}, nil
}

// Bootstrap performs the one-shot directory scan, calling h.OnCreated for
// every existing entry that matches the filename grammar, in alphabetical
// order. It must be called before Run so discovery is at-least-once.
func (w *Watcher) Bootstrap(h Handler, matches func(name string) bool) error {
	entries, err := os.ReadDir(w.base)
	if err != nil {
		return errs.CodeWatchMissing.Error(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if matches(name) {
			h.OnCreated(name)
		}
	}
	return nil
}

// Run consumes fsnotify events until Close is called or the base directory
// itself disappears, dispatching them to h in delivery order. Create is a
// logical creation; Remove and Rename (a renamed-away node is a logical
// delete of the old name) are logical deletions; the loss of the base
// directory itself is a self-delete, after which Run returns -- there is
// nothing left to watch.
func (w *Watcher) Run(h Handler) {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handle(ev, h) {
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warning("directory watch error", err)
			}
		}
	}
}

// handle dispatches one event and reports whether it was a self-delete.
func (w *Watcher) handle(ev fsnotify.Event, h Handler) bool {
	name := filepath.Base(ev.Name)

	if ev.Name == w.base || filepath.Clean(ev.Name) == filepath.Clean(w.base) {
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			h.OnSelfDeleted()
			return true
		}
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		h.OnCreated(name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		h.OnDeleted(name)
	}
	return false
}

// Close stops the watch, causing a running Run to return once fsnotify
// drains its channels.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Done is closed once Run has returned, for callers that started Run on a
// separate goroutine and want to wait for it to finish.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
