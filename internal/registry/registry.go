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

// Package registry implements the driver registry and protocol engine: it
// reacts to directory-watch events by creating/destroying clients, drives
// each client through the PR_DRV_INFO / PR_DRV_COMMAND / PR_DRV_RESPONSE
// state machine, and dispatches frontend commands to the right driver.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sabouaram/drvshell/internal/container"
	"github.com/sabouaram/drvshell/internal/errs"
	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/logging"
	"github.com/sabouaram/drvshell/internal/protocol"
	"github.com/sabouaram/drvshell/internal/usocket/client"
)

// DriverRecord is the registry's view of one connected driver: its
// advertised name/slot and the command set its last PR_DRV_INFO declared.
type DriverRecord struct {
	Name     string
	Slot     uint32
	Client   *client.Client
	Commands []protocol.CommandDescriptor
}

// DriverInfo is the read-only snapshot List returns to the frontend.
type DriverInfo struct {
	Name     string
	Slot     uint32
	Commands []protocol.CommandDescriptor
}

// OutputFunc is the frontend's writable sink for response text.
type OutputFunc func(s string)

// clientState pairs a driver record with the per-connection frame
// reassembler driving its state machine.
type clientState struct {
	rec *DriverRecord
	asm protocol.Reassembler
}

// Registry is the driver hash table plus the protocol engine wiring every
// client to the shared I/O service.
type Registry struct {
	svc     *ioservice.Service
	baseDir string
	suffix  string
	log     logging.Logger

	bucket *container.BucketMap

	mu     sync.Mutex
	output OutputFunc
	prompt string

	onFatal func(error)
}

// New returns a Registry rooted at baseDir, matching sockets named per
// <name>.<slot>.suffix.
func New(svc *ioservice.Service, baseDir, suffix string, log logging.Logger) *Registry {
	return &Registry{
		svc:     svc,
		baseDir: baseDir,
		suffix:  suffix,
		log:     log,
		bucket:  container.New(),
		prompt:  "> ",
	}
}

// SetOutput installs the sink response payloads and hints are written to.
func (r *Registry) SetOutput(fn OutputFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output = fn
}

// SetPrompt sets the prompt string re-printed after asynchronous output.
func (r *Registry) SetPrompt(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompt = p
}

// SetFatalFunc overrides the registry's reaction to a structural invariant
// violation (default: log and os.Exit(1)). Tests install a non-exiting
// handler here.
func (r *Registry) SetFatalFunc(fn func(error)) {
	r.onFatal = fn
}

func (r *Registry) write(s string) {
	r.mu.Lock()
	out := r.output
	r.mu.Unlock()
	if out != nil {
		out(s)
	}
}

func (r *Registry) fatal(err error) {
	if r.log != nil {
		r.log.Fatal("registry invariant violated", err)
	}
	if r.onFatal != nil {
		r.onFatal(err)
		return
	}
	os.Exit(1)
}

// Matches reports whether name satisfies the socket filename grammar for
// this registry's suffix, for use as the directory watcher's bootstrap
// predicate.
func (r *Registry) Matches(name string) bool {
	_, _, ok := ParseSocketName(name, r.suffix)
	return ok
}

// OnCreated implements watch.Handler: validates the socket node, parses its
// filename, and connects a client to it. The directory watcher calls this
// from its own goroutine, so the whole body is hopped onto the I/O
// service's goroutine via Invoke before it touches the bucket map or any
// client/driver-record state -- the same pending-ops hand-off Dispatch and
// List use, so every core mutation still happens on one goroutine.
func (r *Registry) OnCreated(name string) {
	r.svc.Invoke(func() { r.onCreated(name) })
}

func (r *Registry) onCreated(name string) {
	path := filepath.Join(r.baseDir, name)

	fi, err := os.Lstat(path)
	if err != nil {
		return
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return
	}

	drvName, slot, ok := ParseSocketName(name, r.suffix)
	if !ok {
		return
	}

	key := container.Key{Name: drvName, Slot: slot}
	if r.bucket.Has(key) {
		r.fatal(errs.Newf(errs.CodeRegistryDuplicate, "duplicate driver registration for %s/%d", drvName, slot))
		return
	}

	rec := &DriverRecord{Name: drvName, Slot: slot}
	cli := client.New(r.svc)
	cli.Priv = rec
	rec.Client = cli

	cs := &clientState{rec: rec}
	if err := r.bucket.Insert(key, cs); err != nil {
		r.fatal(err)
		return
	}

	if err := cli.Connect(path, func(c *client.Client, cerr error) {
		if cerr != nil {
			if r.log != nil {
				r.log.Warning("connect to driver socket failed", cerr, drvName, slot)
			}
			return
		}
		r.armNext(cs)
	}); err != nil {
		if r.log != nil {
			r.log.Warning("connect to driver socket failed", err, drvName, slot)
		}
	}
}

// OnDeleted implements watch.Handler: deinitializes the client and removes
// the driver record. Hopped onto the I/O service's goroutine for the same
// reason as OnCreated.
func (r *Registry) OnDeleted(name string) {
	r.svc.Invoke(func() { r.onDeleted(name) })
}

func (r *Registry) onDeleted(name string) {
	drvName, slot, ok := ParseSocketName(name, r.suffix)
	if !ok {
		return
	}

	key := container.Key{Name: drvName, Slot: slot}
	v, ok := r.bucket.Get(key)
	if !ok {
		if r.log != nil {
			r.log.Warning("delete event for unregistered driver", name)
		}
		return
	}

	cs := v.(*clientState)
	cs.rec.Client.Deinit()
	r.bucket.Delete(key)
}

// OnSelfDeleted implements watch.Handler: the base directory vanished, so
// the I/O service stops without draining pending readiness.
func (r *Registry) OnSelfDeleted() {
	r.svc.Stop(false)
}

// armNext requests exactly the number of bytes the client's reassembler
// still needs: one byte to learn the signature, then the declared
// remainder of the frame.
func (r *Registry) armNext(cs *clientState) {
	n := cs.asm.NextChunk()
	_ = cs.rec.Client.Recv(n, r.onClientReadable, cs)
}

func (r *Registry) onClientReadable(c *client.Client, err error, eof bool, ctx interface{}) {
	cs := ctx.(*clientState)

	if err != nil {
		if r.log != nil {
			r.log.Warning("read error on driver socket", err, cs.rec.Name, cs.rec.Slot)
		}
		r.reconnect(c, cs)
		return
	}

	if eof {
		if r.log != nil {
			r.log.Warning("driver socket EOF, waiting for delete event", cs.rec.Name, cs.rec.Slot)
		}
		return
	}

	chunk := append([]byte(nil), c.ReadBuf().Bytes()...)
	_ = c.ReadBuf().Realloc(0)

	frame, ok, ferr := cs.asm.Feed(chunk)
	if ferr != nil {
		if r.log != nil {
			r.log.Warning("unknown protocol signature, reconnecting", ferr, cs.rec.Name, cs.rec.Slot)
		}
		r.reconnect(c, cs)
		return
	}
	if !ok {
		r.armNext(cs)
		return
	}

	switch frame.Sig {
	case protocol.SigDrvInfo:
		info, derr := protocol.UnmarshalDrvInfo(frame.Body)
		if derr != nil {
			if r.log != nil {
				r.log.Warning("malformed DRV_INFO, reconnecting", derr, cs.rec.Name, cs.rec.Slot)
			}
			r.reconnect(c, cs)
			return
		}
		cs.rec.Commands = info.Commands
		// Re-arm after DRV_INFO too: a driver that unsolicitedly resends
		// its command set is observed instead of wedging the connection.
		r.armNext(cs)

	case protocol.SigDrvResponse:
		resp, derr := protocol.UnmarshalDrvResponse(frame.Body)
		if derr != nil {
			if r.log != nil {
				r.log.Warning("malformed DRV_RESPONSE, reconnecting", derr, cs.rec.Name, cs.rec.Slot)
			}
			r.reconnect(c, cs)
			return
		}
		r.write(string(resp.Payload) + "\n" + r.prompt)
		// No next recv armed here: re-arm happens from the writer
		// completion of the next command.

	default:
		if r.log != nil {
			r.log.Warning("unknown signature, reconnecting", frame.Sig, cs.rec.Name, cs.rec.Slot)
		}
		r.reconnect(c, cs)
	}
}

func (r *Registry) reconnect(c *client.Client, cs *clientState) {
	_ = c.Reconnect(func(cc *client.Client, cerr error) {
		if cerr != nil {
			return
		}
		cs.asm = protocol.Reassembler{}
		r.armNext(cs)
	})
}

// Dispatch locates the (drv, slot) driver, validates cmdName and arity,
// and sends a PR_DRV_COMMAND frame. It returns CodeRegistryUnknownDriver
// for an unknown driver, CodeFrontendUnknownCommand for an unknown command
// or too many arguments, CodeRegistryBusy if a command is already in
// flight on this driver's connection. Dispatch runs on the
// frontend's own goroutine, so the lookup and send are hopped onto the
// I/O service's goroutine via Invoke: DriverRecord.Commands and the
// client's in-flight-send flag are otherwise read/written with no
// synchronization by the reactor's own callbacks, and Invoke is what
// keeps that true instead of racing a second goroutine against them.
func (r *Registry) Dispatch(drv string, slot uint32, cmdName string, args [][]byte) error {
	var result error
	r.svc.Invoke(func() {
		result = r.dispatch(drv, slot, cmdName, args)
	})
	return result
}

func (r *Registry) dispatch(drv string, slot uint32, cmdName string, args [][]byte) error {
	key := container.Key{Name: drv, Slot: slot}
	v, ok := r.bucket.Get(key)
	if !ok {
		return errs.CodeRegistryUnknownDriver.Error()
	}
	cs := v.(*clientState)
	rec := cs.rec

	idx := -1
	for i, c := range rec.Commands {
		if c.Name == cmdName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.CodeFrontendUnknownCommand.Error()
	}
	if len(args) > int(rec.Commands[idx].Arity) {
		return errs.CodeFrontendUnknownCommand.Error()
	}

	frame := protocol.DrvCommand{CmdIdx: uint32(idx), Args: args}
	buf, merr := frame.MarshalBinary()
	if merr != nil {
		return merr
	}

	err := rec.Client.Send(buf, r.onCommandSent, cs)
	if err != nil {
		if errs.HasCode(err, errs.CodeSocketBusy) {
			return errs.CodeRegistryBusy.Error()
		}
		return err
	}
	return nil
}

func (r *Registry) onCommandSent(c *client.Client, err error, ctx interface{}) {
	cs := ctx.(*clientState)

	if err != nil {
		if r.log != nil {
			r.log.Warning("command send failed, reconnecting", err, cs.rec.Name, cs.rec.Slot)
		}
		r.reconnect(c, cs)
		r.write("repeat your command\n" + r.prompt)
		return
	}

	r.armNext(cs)
}

// List returns a snapshot of every currently registered driver, ordered by
// (name, slot). Like Dispatch, the snapshot is taken on the I/O service's
// own goroutine via Invoke since it reads DriverRecord.Commands, which
// only that goroutine ever writes.
func (r *Registry) List() []DriverInfo {
	var out []DriverInfo
	r.svc.Invoke(func() {
		out = r.list()
	})
	return out
}

func (r *Registry) list() []DriverInfo {
	keys := r.bucket.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Slot < keys[j].Slot
	})

	out := make([]DriverInfo, 0, len(keys))
	for _, k := range keys {
		v, ok := r.bucket.Get(k)
		if !ok {
			continue
		}
		cs := v.(*clientState)
		out = append(out, DriverInfo{Name: cs.rec.Name, Slot: cs.rec.Slot, Commands: cs.rec.Commands})
	}
	return out
}
