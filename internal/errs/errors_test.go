package errs_test

import (
	"errors"
	"testing"

	"github.com/sabouaram/drvshell/internal/errs"
)

func TestCodeRoundTrip(t *testing.T) {
	e := errs.CodeRegistryBusy.Error()
	if e.GetCode() != errs.CodeRegistryBusy {
		t.Fatalf("expected code %d, got %d", errs.CodeRegistryBusy, e.GetCode())
	}
	if e.Error() != "driver busy, try again" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
}

func TestParentChain(t *testing.T) {
	root := errors.New("socket reset by peer")
	wrapped := errs.New(errs.CodeSocketClosed, "closing connection", root)

	if !wrapped.HasParent() {
		t.Fatal("expected wrapped error to report a parent")
	}
	if !wrapped.ContainsString("reset by peer") {
		t.Fatal("expected ContainsString to find text in parent")
	}
}

func TestHasCodeWalksParents(t *testing.T) {
	inner := errs.CodeProtocolShort.Error()
	outer := errs.New(errs.CodeRegistryUnknownDriver, "dispatch failed", inner)

	if !errs.HasCode(outer, errs.CodeProtocolShort) {
		t.Fatal("expected HasCode to find code in parent chain")
	}
	if errs.HasCode(outer, errs.CodeBufferOverflow) {
		t.Fatal("did not expect unrelated code to match")
	}
}

func TestMakePreservesExistingError(t *testing.T) {
	original := errs.CodeWatchMissing.Error()
	made := errs.Make(original)

	if made.GetCode() != errs.CodeWatchMissing {
		t.Fatal("Make should not re-wrap an existing Error")
	}
}

func TestUnknownCodeMessage(t *testing.T) {
	if msg := errs.CodeError(65000).Message(); msg != errs.UnknownMessage {
		t.Fatalf("expected unknown message for unregistered code, got %q", msg)
	}
}
