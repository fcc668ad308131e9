package buffer_test

import (
	"bytes"
	"testing"

	"github.com/sabouaram/drvshell/internal/buffer"
)

func TestReallocPreservesBytesNonShrinkable(t *testing.T) {
	b := buffer.New(4, buffer.NonShrinkable)
	_, _ = b.Write([]byte("abcd"))

	if err := b.Realloc(8); err != nil {
		t.Fatalf("realloc grow failed: %v", err)
	}
	if !bytes.Equal(b.Bytes()[:4], []byte("abcd")) {
		t.Fatalf("expected original bytes preserved, got %q", b.Bytes())
	}

	// Shrinking the user_size must not drop capacity for a non-shrinkable buffer.
	if err := b.Realloc(2); err != nil {
		t.Fatalf("realloc shrink user_size failed: %v", err)
	}
	if b.Cap() < 8 {
		t.Fatalf("expected capacity to remain non-decreasing, got %d", b.Cap())
	}
	if !bytes.Equal(b.Bytes(), []byte("ab")) {
		t.Fatalf("expected preserved prefix, got %q", b.Bytes())
	}
}

func TestReallocShrinkableDropsCapacity(t *testing.T) {
	b := buffer.New(16, buffer.Shrinkable)
	_, _ = b.Write([]byte("hello world"))

	if err := b.Realloc(4); err != nil {
		t.Fatalf("realloc failed: %v", err)
	}
	if b.Cap() != 4 {
		t.Fatalf("expected capacity to shrink to 4, got %d", b.Cap())
	}
	if !bytes.Equal(b.Bytes(), []byte("hell")) {
		t.Fatalf("expected preserved prefix, got %q", b.Bytes())
	}
}

func TestReallocZeroReleasesStorage(t *testing.T) {
	b := buffer.New(8, buffer.NonShrinkable)
	_, _ = b.Write([]byte("payload"))

	if err := b.Realloc(0); err != nil {
		t.Fatalf("realloc(0) failed: %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("expected user_size 0, got %d", b.Len())
	}
	if b.Offset() != 0 {
		t.Fatalf("expected offset clamped to 0, got %d", b.Offset())
	}
}

func TestOffsetClampedToUserSize(t *testing.T) {
	b := buffer.New(8, buffer.NonShrinkable)
	_, _ = b.Write([]byte("abcdef"))

	b.SetOffset(100)
	if b.Offset() != b.Len() {
		t.Fatalf("expected offset clamped to user_size %d, got %d", b.Len(), b.Offset())
	}

	if err := b.Realloc(2); err != nil {
		t.Fatalf("realloc failed: %v", err)
	}
	if b.Offset() != 2 {
		t.Fatalf("expected offset re-clamped after shrink to %d, got %d", 2, b.Offset())
	}
}

func TestAdvanceTracksPartialProgress(t *testing.T) {
	b := buffer.New(8, buffer.NonShrinkable)
	_, _ = b.Write([]byte("abcdef"))

	b.Advance(2)
	if !bytes.Equal(b.Remaining(), []byte("cdef")) {
		t.Fatalf("expected remaining %q, got %q", "cdef", b.Remaining())
	}

	b.Advance(100)
	if len(b.Remaining()) != 0 {
		t.Fatalf("expected remaining empty after over-advance, got %q", b.Remaining())
	}
}
