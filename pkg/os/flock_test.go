package os

import (
	"errors"
	"testing"
)

func TestDirLock(t *testing.T) {
	dir := t.TempDir()

	a, err := NewDirLock(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.TryLock(); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	b, err := NewDirLock(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock(); !errors.Is(err, ErrLocked) {
		t.Errorf("second lock got %v, want %v", err, ErrLocked)
	}

	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock(); err != nil {
		t.Errorf("lock after unlock failed: %v", err)
	}
	_ = b.Unlock()
}
