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

// Package drvstub implements the reference driver side of the wire protocol:
// a minimal process that listens on one socket, advertises a fixed command
// set via PR_DRV_INFO on connect, and answers every PR_DRV_COMMAND with a
// PR_DRV_RESPONSE. cmd/drvstub wraps this with CLI flags; the registry's
// end-to-end test uses it directly in-process as the counterpart the
// registry drives.
package drvstub

import (
	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/logging"
	"github.com/sabouaram/drvshell/internal/protocol"
	"github.com/sabouaram/drvshell/internal/usocket/server"
)

// Handler answers one command by its advertised index, returning the
// response payload to send back.
type Handler func(args [][]byte) []byte

// Command pairs a wire descriptor with the handler that answers it; its
// position in the Commands slice passed to New is also its wire cmd_idx.
type Command struct {
	Descriptor protocol.CommandDescriptor
	Handle     Handler
}

// Driver is the stub's server-side half: one listening socket, driving
// every accepted connection through PR_DRV_INFO then a PR_DRV_COMMAND /
// PR_DRV_RESPONSE loop, exactly the counterpart the registry expects on
// the other end of a driver socket.
type Driver struct {
	srv      *server.Server
	commands []Command
	log      logging.Logger
}

// New returns a Driver bound to svc, not yet listening.
func New(svc *ioservice.Service, path string, commands []Command, log logging.Logger) *Driver {
	d := &Driver{commands: commands, log: log}
	d.srv = server.New(svc, path)
	d.srv.RegisterFuncAccept(d.onAccept)
	return d
}

// Listen binds and starts accepting.
func (d *Driver) Listen() error { return d.srv.Listen() }

// Close stops the driver and closes its socket.
func (d *Driver) Close() error { return d.srv.Close() }

// connState is the per-connection reassembler state hung off Connection.Priv.
type connState struct {
	asm protocol.Reassembler
}

func (d *Driver) onAccept(conn *server.Connection) bool {
	conn.Priv = &connState{}

	descs := make([]protocol.CommandDescriptor, len(d.commands))
	for i, c := range d.commands {
		descs[i] = c.Descriptor
	}
	info := protocol.DrvInfo{Commands: descs}
	buf, err := info.MarshalBinary()
	if err != nil {
		return false
	}

	if err := conn.Send(buf, func(c *server.Connection, err error, _ interface{}) {
		if err != nil {
			return
		}
		d.armNext(c)
	}, nil); err != nil {
		return false
	}
	return true
}

func (d *Driver) armNext(conn *server.Connection) {
	cs := conn.Priv.(*connState)
	n := cs.asm.NextChunk()
	_ = conn.Recv(n, d.onReadable, nil)
}

func (d *Driver) onReadable(conn *server.Connection, err error, eof bool, _ interface{}) {
	if err != nil || eof {
		d.srv.CloseConnection(conn)
		return
	}
	cs := conn.Priv.(*connState)

	chunk := append([]byte(nil), conn.ReadBuf().Bytes()...)
	_ = conn.ReadBuf().Realloc(0)

	frame, ok, ferr := cs.asm.Feed(chunk)
	if ferr != nil {
		return
	}
	if !ok {
		d.armNext(conn)
		return
	}

	if frame.Sig != protocol.SigDrvCommand {
		d.armNext(conn)
		return
	}

	cmd, derr := protocol.UnmarshalDrvCommand(frame.Body)
	if derr != nil {
		d.armNext(conn)
		return
	}

	var payload []byte
	if int(cmd.CmdIdx) < len(d.commands) {
		payload = d.commands[cmd.CmdIdx].Handle(cmd.Args)
	}

	resp := protocol.DrvResponse{Payload: payload}
	rbuf, _ := resp.MarshalBinary()
	_ = conn.Send(rbuf, func(c *server.Connection, err error, _ interface{}) {
		if err == nil {
			d.armNext(c)
		}
	}, nil)
}

// EchoCommands returns the builtin command set cmd/drvstub advertises by
// default: echo returns its single argument unchanged, ping always answers
// "pong".
func EchoCommands() []Command {
	return []Command{
		{
			Descriptor: protocol.CommandDescriptor{Name: "echo", Arity: 1, Descr: "echo the given argument back"},
			Handle: func(args [][]byte) []byte {
				if len(args) > 0 {
					return args[0]
				}
				return nil
			},
		},
		{
			Descriptor: protocol.CommandDescriptor{Name: "ping", Arity: 0, Descr: "reply pong"},
			Handle: func(args [][]byte) []byte {
				return []byte("pong")
			},
		},
	}
}
