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

// Package rawio wraps the raw sendto(2)/recvfrom(2) syscalls with the
// MSG_DONTWAIT|MSG_NOSIGNAL flags the async send/recv paths need, shared
// between internal/usocket/server and internal/usocket/client.
// golang.org/x/sys/unix's exported Send/Sendto wrappers discard the partial
// byte count the syscall returns, which the task progress accounting needs,
// so this goes one level lower via Syscall6 directly.
package rawio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const sendRecvFlags = unix.MSG_DONTWAIT | unix.MSG_NOSIGNAL

// SendOnce issues one non-blocking sendto(2) and returns the number of
// bytes the kernel accepted. err is unix.EAGAIN/EWOULDBLOCK if the socket
// buffer is full, or a hard error otherwise; EINTR is retried internally
// and never returned.
func SendOnce(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, _, errno := unix.Syscall6(
			unix.SYS_SENDTO,
			uintptr(fd),
			uintptr(unsafe.Pointer(&p[0])),
			uintptr(len(p)),
			uintptr(sendRecvFlags),
			0,
			0,
		)
		if errno == 0 {
			return int(n), nil
		}
		if errno == unix.EINTR {
			continue
		}
		return 0, errno
	}
}

// RecvOnce issues one non-blocking recvfrom(2) into p and returns the
// number of bytes read. A zero-length return with a nil error means
// nothing was read (the caller decides what that means given FIONREAD).
func RecvOnce(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, _, errno := unix.Syscall6(
			unix.SYS_RECVFROM,
			uintptr(fd),
			uintptr(unsafe.Pointer(&p[0])),
			uintptr(len(p)),
			uintptr(unix.MSG_DONTWAIT),
			0,
			0,
		)
		if errno == 0 {
			return int(n), nil
		}
		if errno == unix.EINTR {
			continue
		}
		return 0, errno
	}
}

// Pending returns the number of bytes currently queued for read on fd via
// FIONREAD, used to distinguish "nothing pending yet" from EOF before a
// recv is attempted.
func Pending(fd int) (int, error) {
	// x/sys/unix doesn't export FIONREAD; TIOCINQ is the same ioctl request
	// number under its Linux kernel name.
	return unix.IoctlGetInt(fd, unix.TIOCINQ)
}
