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

package ioservice

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/drvshell/internal/errs"
)

const maxEvents = 64

// opsQueueSize bounds the pending-ops channel. Callers outside the
// service's own goroutine (the frontend dispatching a command, the
// directory watcher announcing an event) post through it one at a time via
// Invoke, so a handful of slots is ample headroom.
const opsQueueSize = 32

// fdState holds the at-most-one-per-op registration for a single fd. A nil
// job in either slot means that op has no active registration.
type fdState struct {
	read  *job
	write *job
}

// Service is the single-threaded readiness loop: one epoll instance, a map
// of (fd, op) -> job guarded by a mutex, and a Run goroutine that is the
// only place callbacks are invoked from. Registration mutations (PostJob,
// RemoveJob) apply the underlying epoll_ctl synchronously under the mutex,
// so the change is visible to the very next epoll_wait regardless of which
// goroutine issued it -- a callback mutating its own or another fd's
// registration takes effect no later than the next tick, satisfying the
// ordering guarantee. Mutations to state the core callbacks themselves
// own (driver records, client buffers, connection flags) are not locked at
// all: callers outside this goroutine reach them only through Post/Invoke,
// which hop onto this same goroutine via the pending-ops channel and an
// eventfd wake, so the core really does stay single-threaded end to end.
type Service struct {
	epfd   int
	wakeFd int

	mu  sync.Mutex
	fds map[int]*fdState

	stopped int32
	drain   int32

	ops chan func()
}

// New creates an idle epoll-backed Service. Call Run to start the loop. A
// non-blocking eventfd is registered alongside the epoll instance so that
// Post/Invoke can wake a goroutine parked in epoll_wait to drain the
// pending-ops channel.
func New() (*Service, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errs.CodeIOServiceRegister.Error(err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errs.CodeIOServiceRegister.Error(err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, errs.CodeIOServiceRegister.Error(err)
	}

	return &Service{
		epfd:   epfd,
		wakeFd: wakeFd,
		fds:    make(map[int]*fdState),
		ops:    make(chan func(), opsQueueSize),
	}, nil
}

func eventMask(st *fdState) uint32 {
	var ev uint32
	if st.read != nil {
		ev |= unix.EPOLLIN
	}
	if st.write != nil {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// PostJob registers fn to run when fd becomes ready for op. Re-posting an
// already-registered (fd, op) replaces it -- at most one registration per
// (fd, op) ever exists. A syscall failure registering with epoll is
// reported back to the caller and the registration is rolled back.
func (s *Service) PostJob(fd int, op Op, mode Mode, fn Callback, ctx interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, existed := s.fds[fd]
	if !existed {
		st = &fdState{}
	}

	prevRead, prevWrite := st.read, st.write
	j := &job{mode: mode, fn: fn, ctx: ctx}
	switch op {
	case Read:
		st.read = j
	case Write:
		st.write = j
	}

	ev := unix.EpollEvent{Events: eventMask(st), Fd: int32(fd)}
	var ctlErr error
	if existed {
		ctlErr = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	} else {
		ctlErr = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
	if ctlErr != nil {
		st.read, st.write = prevRead, prevWrite
		return errs.CodeIOServiceRegister.Error(ctlErr)
	}

	s.fds[fd] = st
	return nil
}

// RemoveJob deregisters (fd, op), if present. Legal to call from inside the
// callback for that very (fd, op).
func (s *Service) RemoveJob(fd int, op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(fd, op)
}

func (s *Service) removeLocked(fd int, op Op) {
	st, ok := s.fds[fd]
	if !ok {
		return
	}

	switch op {
	case Read:
		st.read = nil
	case Write:
		st.write = nil
	}

	if st.read == nil && st.write == nil {
		_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(s.fds, fd)
		return
	}

	ev := unix.EpollEvent{Events: eventMask(st), Fd: int32(fd)}
	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Run drives the readiness loop until Stop has been observed and, if Stop
// was called with drain=true, one more zero-timeout epoll_wait returns no
// events. EINTR from epoll_wait is retried in place. The pending-ops
// channel is drained at the top of every tick, so a Post/Invoke from
// another goroutine takes effect no later than the next iteration,
// matching the ordering guarantee PostJob/RemoveJob already give callers
// on this same goroutine.
func (s *Service) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, maxEvents)

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		s.drainOps()

		timeout := -1
		if atomic.LoadInt32(&s.stopped) != 0 {
			timeout = 0
		}

		n, err := unix.EpollWait(s.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errs.CodeIOServiceClosed.Error(err)
		}

		for i := 0; i < n; i++ {
			s.dispatch(events[i])
		}

		if atomic.LoadInt32(&s.stopped) != 0 {
			if atomic.LoadInt32(&s.drain) == 0 || n == 0 {
				return nil
			}
		}
	}
}

func (s *Service) dispatch(ev unix.EpollEvent) {
	fd := int(ev.Fd)

	if fd == s.wakeFd {
		s.drainWake()
		return
	}

	if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		s.fire(fd, Read)
	}
	if ev.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
		s.fire(fd, Write)
	}
}

// drainWake resets the eventfd's counter; the ops themselves run from
// Run's top-of-tick drainOps call, not from here.
func (s *Service) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(s.wakeFd, buf[:])
		if err == nil || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// drainOps runs every function queued by Post/Invoke since the last tick,
// on this goroutine, with no other core callback in flight.
func (s *Service) drainOps() {
	for {
		select {
		case fn := <-s.ops:
			fn()
		default:
			return
		}
	}
}

// Post schedules fn to run on the service's own goroutine at the top of
// its next tick, waking a goroutine blocked in epoll_wait via the
// service's internal eventfd. Safe to call from any goroutine.
func (s *Service) Post(fn func()) {
	s.ops <- fn
	s.wake()
}

// Invoke posts fn and blocks the calling goroutine until it has run on the
// service's own goroutine. This is the pending-ops hand-off callers
// outside the reactor (the frontend dispatching a command, the directory
// watcher announcing an event) use to touch registry/client state without
// a lock: every mutation still happens on the single reactor goroutine.
// Must not be called from inside a callback already running on the
// service's own goroutine -- that would deadlock waiting for itself to
// drain.
func (s *Service) Invoke(fn func()) {
	done := make(chan struct{})
	s.Post(func() {
		fn()
		close(done)
	})
	<-done
}

func (s *Service) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(s.wakeFd, buf[:])
		if err == nil || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (s *Service) fire(fd int, op Op) {
	s.mu.Lock()
	st, ok := s.fds[fd]
	if !ok {
		s.mu.Unlock()
		return
	}

	var j *job
	switch op {
	case Read:
		j = st.read
	case Write:
		j = st.write
	}
	if j == nil {
		s.mu.Unlock()
		return
	}

	if j.mode == Oneshot {
		s.removeLocked(fd, op)
	}
	s.mu.Unlock()

	j.fn(fd, op, j.ctx)
}

// Stop requests the loop to terminate. If drain is true, Run keeps polling
// (with a zero timeout) until a poll returns no events, so any readiness
// already queued by the kernel is delivered before Run returns; if false,
// Run returns as soon as the in-flight batch of callbacks completes.
func (s *Service) Stop(drain bool) {
	atomic.StoreInt32(&s.stopped, 1)
	if drain {
		atomic.StoreInt32(&s.drain, 1)
	}
	// A goroutine parked in epoll_wait(-1) only observes the flag after its
	// next wakeup, so kick the eventfd; Stop must take effect even when no
	// fd readiness is pending.
	s.wake()
}

// Close releases the epoll fd. The service must not be running.
func (s *Service) Close() error {
	_ = unix.Close(s.wakeFd)
	return unix.Close(s.epfd)
}
