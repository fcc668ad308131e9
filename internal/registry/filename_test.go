package registry_test

import (
	"testing"

	"github.com/sabouaram/drvshell/internal/registry"
)

func TestParseSocketNameValid(t *testing.T) {
	name, slot, ok := registry.ParseSocketName("printer.3.drv.sock", registry.DefaultSuffix)
	if !ok {
		t.Fatal("expected valid parse")
	}
	if name != "printer" || slot != 3 {
		t.Fatalf("got name=%q slot=%d", name, slot)
	}
}

func TestParseSocketNameRejectsMissingName(t *testing.T) {
	if _, _, ok := registry.ParseSocketName(".3.drv.sock", registry.DefaultSuffix); ok {
		t.Fatal("expected rejection of empty name")
	}
}

func TestParseSocketNameRejectsMissingSlot(t *testing.T) {
	if _, _, ok := registry.ParseSocketName("printer..drv.sock", registry.DefaultSuffix); ok {
		t.Fatal("expected rejection of empty slot")
	}
}

func TestParseSocketNameRejectsNonDigitSlot(t *testing.T) {
	if _, _, ok := registry.ParseSocketName("printer.abc.drv.sock", registry.DefaultSuffix); ok {
		t.Fatal("expected rejection of non-digit slot")
	}
}

func TestParseSocketNameRejectsWrongSuffix(t *testing.T) {
	if _, _, ok := registry.ParseSocketName("printer.3.sock", registry.DefaultSuffix); ok {
		t.Fatal("expected rejection of wrong suffix")
	}
}

func TestParseSocketNameRejectsNoSlotSeparator(t *testing.T) {
	if _, _, ok := registry.ParseSocketName("printer.drv.sock", registry.DefaultSuffix); ok {
		t.Fatal("expected rejection when there is no slot component at all")
	}
}
