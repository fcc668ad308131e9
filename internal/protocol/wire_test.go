package protocol_test

import (
	"bytes"
	"testing"

	"github.com/sabouaram/drvshell/internal/protocol"
)

func TestDrvInfoRoundTrip(t *testing.T) {
	info := protocol.DrvInfo{
		Commands: []protocol.CommandDescriptor{
			{Name: "ping", Arity: 0, Descr: "reply pong"},
			{Name: "echo", Arity: 1, Descr: "echo argument back"},
		},
	}

	raw, err := info.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if protocol.Signature(raw[0]) != protocol.SigDrvInfo {
		t.Fatalf("expected SigDrvInfo, got %d", raw[0])
	}

	got, err := protocol.UnmarshalDrvInfo(raw[1:])
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(got.Commands) != 2 || got.Commands[0].Name != "ping" || got.Commands[1].Arity != 1 {
		t.Fatalf("unexpected round-trip result: %+v", got)
	}
}

func TestDrvCommandRoundTrip(t *testing.T) {
	cmd := protocol.DrvCommand{
		CmdIdx: 3,
		Args:   [][]byte{[]byte("hello"), []byte("world")},
	}

	raw, err := cmd.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	got, err := protocol.UnmarshalDrvCommand(raw[1:])
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.CmdIdx != 3 || len(got.Args) != 2 || !bytes.Equal(got.Args[1], []byte("world")) {
		t.Fatalf("unexpected round-trip result: %+v", got)
	}
}

func TestDrvResponseRoundTrip(t *testing.T) {
	resp := protocol.DrvResponse{Payload: []byte("pong")}

	raw, err := resp.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	got, err := protocol.UnmarshalDrvResponse(raw[1:])
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !bytes.Equal(got.Payload, []byte("pong")) {
		t.Fatalf("expected pong, got %q", got.Payload)
	}
}

func TestReassemblerHandlesPartialDelivery(t *testing.T) {
	resp := protocol.DrvResponse{Payload: []byte("partial-echo")}
	raw, _ := resp.MarshalBinary()

	var r protocol.Reassembler

	// Feed one byte at a time; only the final byte should complete the frame.
	var frame protocol.Frame
	var ok bool
	var err error
	for i := 0; i < len(raw); i++ {
		frame, ok, err = r.Feed(raw[i : i+1])
		if err != nil {
			t.Fatalf("unexpected error mid-stream: %v", err)
		}
		if ok && i != len(raw)-1 {
			t.Fatalf("frame completed early at byte %d", i)
		}
	}

	if !ok {
		t.Fatal("expected frame to be complete after final byte")
	}
	if frame.Sig != protocol.SigDrvResponse {
		t.Fatalf("expected SigDrvResponse, got %d", frame.Sig)
	}

	got, err := protocol.UnmarshalDrvResponse(frame.Body)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if string(got.Payload) != "partial-echo" {
		t.Fatalf("expected partial-echo, got %q", got.Payload)
	}
}

func TestReassemblerRejectsBadSignature(t *testing.T) {
	var r protocol.Reassembler
	_, _, err := r.Feed([]byte{0xFF, 1, 2, 3, 4})
	if err == nil {
		t.Fatal("expected error for unknown signature")
	}
}

func TestMarshalRejectsOversizedName(t *testing.T) {
	info := protocol.DrvInfo{
		Commands: []protocol.CommandDescriptor{
			{Name: string(make([]byte, protocol.MaxCommandNameLen+1)), Arity: 0, Descr: "x"},
		},
	}
	if _, err := info.MarshalBinary(); err == nil {
		t.Fatal("expected error for oversized command name")
	}
}
