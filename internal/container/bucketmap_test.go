package container_test

import (
	"testing"

	"github.com/sabouaram/drvshell/internal/container"
	"github.com/sabouaram/drvshell/internal/errs"
)

func TestInsertAndGet(t *testing.T) {
	m := container.New()
	k := container.Key{Name: "sensor", Slot: 0}

	if err := m.Insert(k, "record-0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok := m.Get(k)
	if !ok || v != "record-0" {
		t.Fatalf("expected record-0, got %v (ok=%v)", v, ok)
	}
}

func TestDuplicateInsertIsFatal(t *testing.T) {
	m := container.New()
	k := container.Key{Name: "sensor", Slot: 0}

	if err := m.Insert(k, "first"); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}

	err := m.Insert(k, "second")
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if !errs.HasCode(err, errs.CodeContainerDuplicate) {
		t.Fatalf("expected CodeContainerDuplicate, got %v", err)
	}
}

func TestCollisionChainKeepsDistinctKeys(t *testing.T) {
	m := container.New()

	// Different (name, slot) tuples may legitimately collide in the same
	// Pearson bucket; the chain must still distinguish them.
	inserted := 0
	for i := 0; i < 64; i++ {
		k := container.Key{Name: "drv", Slot: uint32(i)}
		if err := m.Insert(k, i); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
		inserted++
	}

	if m.Len() != inserted {
		t.Fatalf("expected %d entries, got %d", inserted, m.Len())
	}

	for i := 0; i < 64; i++ {
		k := container.Key{Name: "drv", Slot: uint32(i)}
		v, ok := m.Get(k)
		if !ok || v != i {
			t.Fatalf("expected %d for slot %d, got %v (ok=%v)", i, i, v, ok)
		}
	}
}

func TestDeleteRemovesOnlyMatchingKey(t *testing.T) {
	m := container.New()
	a := container.Key{Name: "a", Slot: 1}
	b := container.Key{Name: "b", Slot: 1}

	_ = m.Insert(a, 1)
	_ = m.Insert(b, 2)

	m.Delete(a)

	if m.Has(a) {
		t.Fatal("expected a to be deleted")
	}
	if !m.Has(b) {
		t.Fatal("expected b to survive delete of a")
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	m := container.New()
	m.Delete(container.Key{Name: "ghost", Slot: 9})
	if m.Len() != 0 {
		t.Fatal("expected empty map to remain empty")
	}
}
