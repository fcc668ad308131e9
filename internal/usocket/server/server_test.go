package server_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/usocket/server"
)

func runService(t *testing.T) (*ioservice.Service, func()) {
	t.Helper()
	svc, err := ioservice.New()
	if err != nil {
		t.Fatalf("ioservice.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()

	return svc, func() {
		cancel()
		svc.Stop(false)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("service did not stop")
		}
		_ = svc.Close()
	}
}

func TestListenAcceptsRawConnection(t *testing.T) {
	svc, stop := runService(t)
	defer stop()

	sockPath := filepath.Join(t.TempDir(), "accept.sock")
	srv := server.New(svc, sockPath)

	accepted := make(chan *server.Connection, 1)
	srv.RegisterFuncAccept(func(conn *server.Connection) bool {
		accepted <- conn
		return true
	})

	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = srv.Close() }()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case c := <-accepted:
		if c == nil {
			t.Fatal("nil connection accepted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not fire")
	}

	if srv.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", srv.Len())
	}
}

func TestSendDeliversToPeer(t *testing.T) {
	svc, stop := runService(t)
	defer stop()

	sockPath := filepath.Join(t.TempDir(), "send.sock")
	srv := server.New(svc, sockPath)
	srv.RegisterFuncAccept(func(conn *server.Connection) bool {
		return conn.Send([]byte("hi"), func(c *server.Connection, err error, _ interface{}) {}, nil) == nil
	})

	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = srv.Close() }()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 2)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("got %q, want %q", buf[:n], "hi")
	}
}

func TestCloseConnectionRemovesFromTable(t *testing.T) {
	svc, stop := runService(t)
	defer stop()

	sockPath := filepath.Join(t.TempDir(), "close.sock")
	srv := server.New(svc, sockPath)

	accepted := make(chan *server.Connection, 1)
	srv.RegisterFuncAccept(func(conn *server.Connection) bool {
		accepted <- conn
		return true
	})

	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = srv.Close() }()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var c *server.Connection
	select {
	case c = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not fire")
	}

	srv.CloseConnection(c)
	if srv.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after CloseConnection", srv.Len())
	}
	if _, ok := srv.Conn(c.Fd()); ok {
		t.Fatal("Conn still found after CloseConnection")
	}
}
