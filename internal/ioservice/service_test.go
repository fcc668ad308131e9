package ioservice_test

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/drvshell/internal/ioservice"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func runService(t *testing.T) (*ioservice.Service, func()) {
	t.Helper()
	svc, err := ioservice.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = svc.Run(context.Background())
		close(done)
	}()

	return svc, func() {
		svc.Stop(false)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("service did not stop")
		}
		_ = svc.Close()
	}
}

func TestOneshotFiresOnceAndIsRemovedBeforeCallback(t *testing.T) {
	a, b := socketpair(t)
	svc, stop := runService(t)
	defer stop()

	fired := make(chan struct{}, 4)
	err := svc.PostJob(a, ioservice.Read, ioservice.Oneshot, func(fd int, op ioservice.Op, ctx interface{}) {
		fired <- struct{}{}
	}, nil)
	if err != nil {
		t.Fatalf("PostJob: %v", err)
	}

	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("oneshot callback never fired")
	}

	// Drain and write again: a second oneshot was not re-armed, so no
	// second callback should fire.
	buf := make([]byte, 1)
	_, _ = unix.Read(a, buf)
	if _, err := unix.Write(b, []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("oneshot job fired twice")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPersistentRemainsUntilRemoved(t *testing.T) {
	a, b := socketpair(t)
	svc, stop := runService(t)
	defer stop()

	fired := make(chan struct{}, 8)
	err := svc.PostJob(a, ioservice.Read, ioservice.Persistent, func(fd int, op ioservice.Op, ctx interface{}) {
		buf := make([]byte, 1)
		_, _ = unix.Read(fd, buf)
		fired <- struct{}{}
	}, nil)
	if err != nil {
		t.Fatalf("PostJob: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := unix.Write(b, []byte("x")); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("persistent callback did not fire on iteration %d", i)
		}
	}

	svc.RemoveJob(a, ioservice.Read)

	if _, err := unix.Write(b, []byte("z")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-fired:
		t.Fatal("callback fired after RemoveJob")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRemoveJobFromInsideCallback(t *testing.T) {
	a, b := socketpair(t)
	svc, stop := runService(t)
	defer stop()

	fired := make(chan struct{}, 8)
	svc.PostJob(a, ioservice.Read, ioservice.Persistent, func(fd int, op ioservice.Op, ctx interface{}) {
		buf := make([]byte, 1)
		_, _ = unix.Read(fd, buf)
		svc.RemoveJob(fd, op)
		fired <- struct{}{}
	}, nil)

	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}

	if _, err := unix.Write(b, []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-fired:
		t.Fatal("callback fired after self-removal")
	case <-time.After(200 * time.Millisecond):
	}
}
