package client_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/usocket/client"
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

func listenRaw(t *testing.T, path string) net.Listener {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestConnectResolves(t *testing.T) {
	svc, stop := runService(t)
	defer stop()

	sockPath := filepath.Join(t.TempDir(), "connect.sock")
	ln := listenRaw(t, sockPath)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := client.New(svc)
	resolved := make(chan error, 1)
	if err := c.Connect(sockPath, func(c *client.Client, err error) { resolved <- err }); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case err := <-resolved:
		if err != nil {
			t.Fatalf("connect callback err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not resolve")
	}
	if !c.Connected() {
		t.Fatal("Connected() = false after successful connect")
	}

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("server side never accepted")
	}
}

func TestSendReachesServer(t *testing.T) {
	svc, stop := runService(t)
	defer stop()

	sockPath := filepath.Join(t.TempDir(), "send.sock")
	ln := listenRaw(t, sockPath)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := client.New(svc)
	resolved := make(chan error, 1)
	if err := c.Connect(sockPath, func(c *client.Client, err error) { resolved <- err }); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := <-resolved; err != nil {
		t.Fatalf("connect callback err: %v", err)
	}

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never accepted")
	}
	defer conn.Close()

	sent := make(chan error, 1)
	if err := c.Send([]byte("ping"), func(c *client.Client, err error, _ interface{}) { sent <- err }, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := <-sent; err != nil {
		t.Fatalf("send callback err: %v", err)
	}

	buf := make([]byte, 4)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want %q", buf[:n], "ping")
	}
}

func TestRecvSeesServerWrite(t *testing.T) {
	svc, stop := runService(t)
	defer stop()

	sockPath := filepath.Join(t.TempDir(), "recv.sock")
	ln := listenRaw(t, sockPath)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := client.New(svc)
	resolved := make(chan error, 1)
	if err := c.Connect(sockPath, func(c *client.Client, err error) { resolved <- err }); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := <-resolved; err != nil {
		t.Fatalf("connect callback err: %v", err)
	}

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never accepted")
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("pong!")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	read := make(chan error, 1)
	if err := c.Recv(5, func(c *client.Client, err error, eof bool, _ interface{}) {
		if eof {
			read <- errEOF
			return
		}
		read <- err
	}, nil); err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if err := <-read; err != nil {
		t.Fatalf("recv callback err: %v", err)
	}
	if string(c.ReadBuf().Bytes()) != "pong!" {
		t.Fatalf("got %q, want %q", c.ReadBuf().Bytes(), "pong!")
	}
}

var errEOF = &eofError{}

type eofError struct{}

func (*eofError) Error() string { return "unexpected eof" }
