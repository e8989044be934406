package os

import (
	"errors"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockName = ".camcorder.lock"

var ErrLocked = errors.New("directory is used by another recording")

// Flock is an exclusive lock on an output directory.
type Flock struct {
	f *flock.Flock
}

func NewDirLock(dir string) (*Flock, error) {
	if err := CheckCreateDir(dir); err != nil {
		return nil, err
	}
	return &Flock{f: flock.New(filepath.Join(dir, lockName))}, nil
}

// TryLock takes the lock without waiting.
func (f *Flock) TryLock() error {
	ok, err := f.f.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (f *Flock) Unlock() error { return f.f.Unlock() }
