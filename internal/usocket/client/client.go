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

// Package client implements the non-blocking UNIX-domain socket client:
// Connect/Reconnect with the same async Send/Recv contract and task shape
// as internal/usocket/server.
package client

import (
	"golang.org/x/sys/unix"

	"github.com/sabouaram/drvshell/internal/buffer"
	"github.com/sabouaram/drvshell/internal/errs"
	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/usocket/rawio"
)

// ConnectFunc fires once a non-blocking connect(2) resolves, successfully
// or not.
type ConnectFunc func(c *Client, err error)

// ReadFunc fires when a Recv completes, fails, or sees EOF.
type ReadFunc func(c *Client, err error, eof bool, ctx interface{})

// WriteFunc fires when a Send completes or fails.
type WriteFunc func(c *Client, err error, ctx interface{})

// Client owns at most one connection: its fd and the two task buffers. It
// is driven entirely by the shared I/O service, never blocking.
type Client struct {
	svc  *ioservice.Service
	path string

	fd        int
	connected bool

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer

	readActive  bool
	writeActive bool
	eof         bool

	onRead    ReadFunc
	onReadCtx interface{}

	onWrite    WriteFunc
	onWriteCtx interface{}

	// Priv lets the driver registry hang its driver record off a client
	// without this package knowing its type.
	Priv interface{}
	// Peer is the socket path this client is connected to.
	Peer string
}

// New returns an unconnected Client bound to svc.
func New(svc *ioservice.Service) *Client {
	return &Client{
		svc:      svc,
		fd:       -1,
		readBuf:  buffer.New(0, buffer.NonShrinkable),
		writeBuf: buffer.New(0, buffer.NonShrinkable),
	}
}

// Fd returns the client's raw file descriptor, or -1 if not connected.
func (c *Client) Fd() int { return c.fd }

// Connected reports whether the last connect attempt succeeded.
func (c *Client) Connected() bool { return c.connected }

// Connect opens a non-blocking socket and issues connect(2) against path.
// cb fires once the connection resolves (readiness for WRITE signals a
// completed connect on a UNIX domain socket).
func (c *Client) Connect(path string, cb ConnectFunc) error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errs.CodeIOServiceRegister.Error(err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	cerr := unix.Connect(fd, addr)
	if cerr != nil && cerr != unix.EINPROGRESS && cerr != unix.EAGAIN {
		_ = unix.Close(fd)
		return errs.CodeIOServiceRegister.Error(cerr)
	}

	c.fd = fd
	c.path = path
	c.Peer = path

	return c.svc.PostJob(fd, ioservice.Write, ioservice.Oneshot, c.onConnected, cb)
}

func (c *Client) onConnected(fd int, op ioservice.Op, ctx interface{}) {
	cb, _ := ctx.(ConnectFunc)

	errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	var err error
	if gerr != nil {
		err = errs.CodeIOServiceRegister.Error(gerr)
	} else if errno != 0 {
		err = errs.CodeIOServiceRegister.Error(unix.Errno(errno))
	}

	c.connected = err == nil
	if cb != nil {
		cb(c, err)
	}
}

// Reconnect closes the existing fd (if any), opens a new socket, and
// connects again to the stored path, resetting both task buffers to empty
// but preserving Priv and Peer.
func (c *Client) Reconnect(cb ConnectFunc) error {
	c.closeFd()
	c.readBuf.Deinit()
	c.writeBuf.Deinit()
	c.readActive = false
	c.writeActive = false
	c.eof = false
	return c.Connect(c.path, cb)
}

func (c *Client) closeFd() {
	if c.fd < 0 {
		return
	}
	c.svc.RemoveJob(c.fd, ioservice.Read)
	c.svc.RemoveJob(c.fd, ioservice.Write)
	_ = unix.Close(c.fd)
	c.fd = -1
	c.connected = false
}

// Deinit best-effort closes the client's connection.
func (c *Client) Deinit() {
	c.closeFd()
	c.readBuf.Deinit()
	c.writeBuf.Deinit()
}

// Send copies data into the write task buffer and registers a persistent
// WRITE job draining it with MSG_DONTWAIT|MSG_NOSIGNAL. An overlapping Send
// while one is in flight is rejected.
func (c *Client) Send(data []byte, cb WriteFunc, ctx interface{}) error {
	if c.fd < 0 {
		return errs.CodeSocketClosed.Error()
	}
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

	return c.svc.PostJob(c.fd, ioservice.Write, ioservice.Persistent, c.onWritable, nil)
}

func (c *Client) onWritable(fd int, op ioservice.Op, _ interface{}) {
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

func (c *Client) finishWrite(err error) {
	c.svc.RemoveJob(c.fd, ioservice.Write)
	c.writeActive = false

	cb, ctx := c.onWrite, c.onWriteCtx
	c.onWrite, c.onWriteCtx = nil, nil
	if cb != nil {
		cb(c, err, ctx)
	}
}

// Recv grows the read task buffer by size bytes and registers a persistent
// READ job. FIONREAD is consulted first; with zero pending a one-byte recv
// probe decides: zero bytes is EOF, EAGAIN waits for the next readiness.
func (c *Client) Recv(size int, cb ReadFunc, ctx interface{}) error {
	if c.fd < 0 {
		return errs.CodeSocketClosed.Error()
	}
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

	return c.svc.PostJob(c.fd, ioservice.Read, ioservice.Persistent, c.onReadable, nil)
}

// ReadBuf exposes the bytes accumulated by Recv so far.
func (c *Client) ReadBuf() *buffer.Buffer { return c.readBuf }

func (c *Client) onReadable(fd int, op ioservice.Op, _ interface{}) {
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

func (c *Client) finishRead(err error, eof bool) {
	c.svc.RemoveJob(c.fd, ioservice.Read)
	c.readActive = false

	cb, ctx := c.onRead, c.onReadCtx
	c.onRead, c.onReadCtx = nil, nil
	if cb != nil {
		cb(c, err, eof, ctx)
	}
}
