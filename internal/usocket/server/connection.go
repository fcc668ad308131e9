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

package server

import (
	"golang.org/x/sys/unix"

	"github.com/sabouaram/drvshell/internal/buffer"
	"github.com/sabouaram/drvshell/internal/errs"
	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/usocket/rawio"
)

// Connection is one accepted client, owning its fd and the two task
// buffers. reading and writing are independent: both may be active on one
// connection simultaneously.
type Connection struct {
	fd  int
	srv *Server

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer

	readActive  bool
	writeActive bool
	eof         bool

	onRead    ReadFunc
	onReadCtx interface{}

	onWrite    WriteFunc
	onWriteCtx interface{}

	// Priv lets upper layers (the driver registry) hang their own record
	// off a connection without this package knowing its type.
	Priv interface{}
	// Peer is a human-readable label for the connection, set by the owner.
	Peer string
}

// Fd returns the connection's raw file descriptor. Callers must not close
// it directly; use Server.CloseConnection.
func (c *Connection) Fd() int { return c.fd }

// Send copies data into the connection's write task buffer and registers a
// persistent WRITE job that drains it with MSG_DONTWAIT|MSG_NOSIGNAL. An
// overlapping Send while one is already in flight is rejected rather than
// silently overwriting the task buffer.
func (c *Connection) Send(data []byte, cb WriteFunc, ctx interface{}) error {
	if c.writeActive {
		return errs.CodeSocketBusy.Error()
	}

	if err := c.writeBuf.Realloc(0); err != nil {
		return err
	}
	if _, err := c.writeBuf.Write(data); err != nil {
		return err
	}
	c.writeBuf.SetOffset(0)

	c.onWrite = cb
	c.onWriteCtx = ctx
	c.writeActive = true

	c.srv.reportInfo(c, ConnectionWrite)
	return c.srv.svc.PostJob(c.fd, ioservice.Write, ioservice.Persistent, c.onWritable, nil)
}

func (c *Connection) onWritable(fd int, op ioservice.Op, _ interface{}) {
	for {
		remaining := c.writeBuf.Remaining()
		if len(remaining) == 0 {
			c.finishWrite(nil)
			return
		}

		n, errno := rawio.SendOnce(c.fd, remaining)
		if n > 0 {
			c.writeBuf.Advance(n)
			continue
		}
		if errno == nil {
			continue
		}
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			return
		}

		c.finishWrite(errs.CodeSocketPartial.Error(errno))
		return
	}
}

func (c *Connection) finishWrite(err error) {
	c.srv.svc.RemoveJob(c.fd, ioservice.Write)
	c.writeActive = false

	cb, ctx := c.onWrite, c.onWriteCtx
	c.onWrite, c.onWriteCtx = nil, nil
	c.srv.reportInfo(c, ConnectionCloseWrite)

	if cb != nil {
		cb(c, err, ctx)
	}
}

// Recv grows the read task buffer by size bytes starting at its current
// offset and registers a persistent READ job. The readiness handler
// consults FIONREAD first: with zero pending it issues a one-byte recv
// probe, which completes the read with eof=true when it returns zero bytes
// and waits for the next readiness on EAGAIN.
func (c *Connection) Recv(size int, cb ReadFunc, ctx interface{}) error {
	if c.readActive {
		return errs.CodeSocketBusy.Error()
	}

	base := c.readBuf.Len()
	if err := c.readBuf.Realloc(base + size); err != nil {
		return err
	}
	c.readBuf.SetOffset(base)

	c.onRead = cb
	c.onReadCtx = ctx
	c.readActive = true

	c.srv.reportInfo(c, ConnectionRead)
	return c.srv.svc.PostJob(c.fd, ioservice.Read, ioservice.Persistent, c.onReadable, nil)
}

// ReadBuf exposes the bytes accumulated by Recv so far, for the caller's
// reader callback to decode once a recv completes.
func (c *Connection) ReadBuf() *buffer.Buffer { return c.readBuf }

func (c *Connection) onReadable(fd int, op ioservice.Op, _ interface{}) {
	for {
		target := c.readBuf.Len()
		remaining := target - c.readBuf.Offset()
		if remaining <= 0 {
			c.finishRead(nil, false)
			return
		}

		pending, err := rawio.Pending(c.fd)
		if err != nil {
			c.finishRead(errs.CodeSocketPartial.Error(err), false)
			return
		}
		if pending == 0 {
			// Zero bytes queued: distinguish EOF from "nothing yet" with a
			// one-byte recvfrom probe.
			probe := make([]byte, 1)
			n, errno := rawio.RecvOnce(c.fd, probe)
			if n == 0 && errno == nil {
				c.eof = true
				c.finishRead(nil, true)
				return
			}
			if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
				return
			}
			if errno != nil {
				c.finishRead(errs.CodeSocketPartial.Error(errno), false)
				return
			}
			// Got a byte after all (lost the race with FIONREAD); place it
			// and continue the loop.
			c.readBuf.Bytes()[c.readBuf.Offset()] = probe[0]
			c.readBuf.Advance(1)
			continue
		}

		want := remaining
		if pending < want {
			want = pending
		}

		n, errno := rawio.RecvOnce(c.fd, c.readBuf.Bytes()[c.readBuf.Offset():c.readBuf.Offset()+want])
		if n > 0 {
			c.readBuf.Advance(n)
			continue
		}
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			return
		}
		if errno != nil {
			c.finishRead(errs.CodeSocketPartial.Error(errno), false)
			return
		}
	}
}

func (c *Connection) finishRead(err error, eof bool) {
	c.srv.svc.RemoveJob(c.fd, ioservice.Read)
	c.readActive = false

	cb, ctx := c.onRead, c.onReadCtx
	c.onRead, c.onReadCtx = nil, nil
	c.srv.reportInfo(c, ConnectionCloseRead)

	if cb != nil {
		cb(c, err, eof, ctx)
	}
}
