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

// Package logging provides the structured logger shared by every component
// of the driver broker.
package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields are custom key/value pairs attached to a logger or a single entry.
type Fields map[string]interface{}

// Logger is the logging surface used across this module: leveled entries,
// attachable fields, and cloning for per-component field sets.
type Logger interface {
	SetLevel(lvl logrus.Level)
	GetLevel() logrus.Level

	SetFields(f Fields)
	GetFields() Fields

	// SetFormat switches the underlying logrus formatter: "json" selects
	// logrus.JSONFormatter, anything else (including "text" and "") keeps
	// the default logrus.TextFormatter.
	SetFormat(name string)

	Clone() Logger

	Debug(message string, data interface{}, args ...interface{})
	Info(message string, data interface{}, args ...interface{})
	Warning(message string, data interface{}, args ...interface{})
	Error(message string, data interface{}, args ...interface{})
	Fatal(message string, data interface{}, args ...interface{})
}

type lgr struct {
	m sync.RWMutex
	l *logrus.Logger
	f Fields
}

// New builds a Logger writing to w (os.Stderr in production, a buffer in
// tests) at InfoLevel with text formatting.
func New(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)

	return &lgr{l: l, f: Fields{}}
}

func (g *lgr) SetLevel(lvl logrus.Level) {
	g.m.Lock()
	defer g.m.Unlock()
	g.l.SetLevel(lvl)
}

func (g *lgr) GetLevel() logrus.Level {
	g.m.RLock()
	defer g.m.RUnlock()
	return g.l.GetLevel()
}

func (g *lgr) SetFields(f Fields) {
	g.m.Lock()
	defer g.m.Unlock()
	g.f = f
}

// SetFormat switches the underlying logrus formatter at runtime.
func (g *lgr) SetFormat(name string) {
	g.m.Lock()
	defer g.m.Unlock()
	if name == "json" {
		g.l.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	g.l.SetFormatter(&logrus.TextFormatter{})
}

func (g *lgr) GetFields() Fields {
	g.m.RLock()
	defer g.m.RUnlock()
	res := make(Fields, len(g.f))
	for k, v := range g.f {
		res[k] = v
	}
	return res
}

// Clone returns a new Logger sharing the same output but an independent
// field set.
func (g *lgr) Clone() Logger {
	g.m.RLock()
	defer g.m.RUnlock()

	n := &lgr{l: g.l, f: make(Fields, len(g.f))}
	for k, v := range g.f {
		n.f[k] = v
	}
	return n
}

func (g *lgr) entry(data interface{}, args []interface{}) *logrus.Entry {
	g.m.RLock()
	fields := make(logrus.Fields, len(g.f)+2)
	for k, v := range g.f {
		fields[k] = v
	}
	g.m.RUnlock()

	if data != nil {
		fields["data"] = data
	}
	if len(args) > 0 {
		fields["args"] = args
	}

	return g.l.WithFields(fields)
}

func (g *lgr) Debug(message string, data interface{}, args ...interface{}) {
	g.entry(data, args).Debug(message)
}

func (g *lgr) Info(message string, data interface{}, args ...interface{}) {
	g.entry(data, args).Info(message)
}

func (g *lgr) Warning(message string, data interface{}, args ...interface{}) {
	g.entry(data, args).Warning(message)
}

func (g *lgr) Error(message string, data interface{}, args ...interface{}) {
	g.entry(data, args).Error(message)
}

// Fatal logs at error severity without calling os.Exit: the I/O reactor
// owns process lifetime decisions, not the logger.
func (g *lgr) Fatal(message string, data interface{}, args ...interface{}) {
	g.entry(data, args).Error(message)
}
