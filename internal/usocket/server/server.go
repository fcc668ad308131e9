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

// Package server implements the non-blocking UNIX-domain socket server:
// bind plus listen on a filesystem path, accept into a keyed connection
// table, and per-connection async Send/Recv with completion callbacks.
package server

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/drvshell/internal/buffer"
	"github.com/sabouaram/drvshell/internal/errs"
	"github.com/sabouaram/drvshell/internal/ioservice"
)

// backlog is the acceptor's listen(2) backlog. There is no accept-rate
// limiting; backpressure comes from the kernel queue.
const backlog = 50

// ConnState enumerates the lifecycle transitions RegisterFuncInfo observes.
type ConnState int

const (
	ConnectionNew ConnState = iota
	ConnectionRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseRead
	ConnectionCloseWrite
	ConnectionClose
)

func (s ConnState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionRead:
		return "read"
	case ConnectionHandler:
		return "handler"
	case ConnectionWrite:
		return "write"
	case ConnectionCloseRead:
		return "close-read"
	case ConnectionCloseWrite:
		return "close-write"
	case ConnectionClose:
		return "close"
	default:
		return "unknown"
	}
}

// AcceptFunc is consulted for every new connection; returning false causes
// the server to immediately close it.
type AcceptFunc func(conn *Connection) bool

// InfoFunc observes connection lifecycle transitions.
type InfoFunc func(conn *Connection, state ConnState)

// ErrorFunc observes errors that have no specific connection to attach to
// (listen/accept failures).
type ErrorFunc func(err error)

// ReadFunc is invoked when a Recv completes, fails, or sees EOF.
type ReadFunc func(conn *Connection, err error, eof bool, ctx interface{})

// WriteFunc is invoked when a Send completes or fails.
type WriteFunc func(conn *Connection, err error, ctx interface{})

// Server owns the listening socket and the keyed table of accepted
// connections. Every construction path that succeeds has a matching
// destruction path: Close deregisters I/O jobs before closing fds.
type Server struct {
	svc  *ioservice.Service
	path string

	listenFd int

	mu    sync.Mutex
	conns map[int]*Connection

	onAccept AcceptFunc
	onInfo   InfoFunc
	onError  ErrorFunc
}

// New returns an unbound Server. Call Listen to bind and start accepting.
func New(svc *ioservice.Service, path string) *Server {
	return &Server{
		svc:      svc,
		path:     path,
		listenFd: -1,
		conns:    make(map[int]*Connection),
	}
}

func (s *Server) RegisterFuncAccept(fn AcceptFunc) { s.onAccept = fn }
func (s *Server) RegisterFuncInfo(fn InfoFunc)     { s.onInfo = fn }
func (s *Server) RegisterFuncError(fn ErrorFunc)   { s.onError = fn }

func (s *Server) reportInfo(conn *Connection, state ConnState) {
	if s.onInfo != nil {
		s.onInfo(conn, state)
	}
}

func (s *Server) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// Listen creates, binds and listens on the UNIX socket at path, removing a
// stale socket node left over from a previous run, then registers a
// persistent READ job that is the acceptor.
func (s *Server) Listen() error {
	_ = os.Remove(s.path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errs.CodeIOServiceRegister.Error(err)
	}

	addr := &unix.SockaddrUnix{Name: s.path}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return errs.CodeIOServiceRegister.Error(err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return errs.CodeIOServiceRegister.Error(err)
	}

	s.listenFd = fd
	return s.svc.PostJob(fd, ioservice.Read, ioservice.Persistent, s.onAcceptable, nil)
}

// Close stops accepting and closes every open connection, then the
// listening socket itself. Jobs are deregistered before fds are closed so
// the service never invokes a callback against a stale fd.
func (s *Server) Close() error {
	if s.listenFd >= 0 {
		s.svc.RemoveJob(s.listenFd, ioservice.Read)
		_ = unix.Close(s.listenFd)
		s.listenFd = -1
	}

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.CloseConnection(c)
	}

	_ = os.Remove(s.path)
	return nil
}

func (s *Server) onAcceptable(fd int, op ioservice.Op, ctx interface{}) {
	connFd, _, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		s.reportError(errs.CodeIOServiceRegister.Error(err))
		return
	}

	conn := &Connection{
		fd:       connFd,
		srv:      s,
		readBuf:  buffer.New(0, buffer.NonShrinkable),
		writeBuf: buffer.New(0, buffer.NonShrinkable),
	}

	s.mu.Lock()
	s.conns[connFd] = conn
	s.mu.Unlock()

	if s.onAccept != nil && !s.onAccept(conn) {
		s.CloseConnection(conn)
		return
	}

	s.reportInfo(conn, ConnectionNew)
}

// CloseConnection deregisters both of the connection's I/O jobs, releases
// its buffers, shuts down and closes its fd, and drops it from the keyed
// table. No callback fires for conn after this returns.
func (s *Server) CloseConnection(conn *Connection) {
	s.mu.Lock()
	if _, ok := s.conns[conn.fd]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, conn.fd)
	s.mu.Unlock()

	s.svc.RemoveJob(conn.fd, ioservice.Read)
	s.svc.RemoveJob(conn.fd, ioservice.Write)
	conn.readBuf.Deinit()
	conn.writeBuf.Deinit()
	_ = unix.Shutdown(conn.fd, unix.SHUT_RDWR)
	_ = unix.Close(conn.fd)

	s.reportInfo(conn, ConnectionClose)
}

// Conn looks up an accepted connection by fd.
func (s *Server) Conn(fd int) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[fd]
	return c, ok
}

// Len returns the number of currently open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
