package thread

import (
	"errors"
	"runtime"
	"sync"
)

var ErrStopped = errors.New("looper is stopped")

var errQuit = errors.New("quit")

// Looper executes posted functions one by one, in post order, on a
// single goroutine locked to its OS thread.
type Looper struct {
	name string
	q    chan func() error
	done chan struct{}

	once    sync.Once
	mu      sync.Mutex
	err     error
	onError func(error)
}

// NewLooper makes a looper with a queue of the given size.
// onError (may be nil) is called from the looper goroutine when a handler fails.
func NewLooper(name string, size int, onError func(error)) *Looper {
	if size < 1 {
		size = 1
	}
	return &Looper{
		name:    name,
		q:       make(chan func() error, size),
		done:    make(chan struct{}),
		onError: onError,
	}
}

// Start spawns the looper goroutine. Extra calls do nothing.
func (l *Looper) Start() { l.once.Do(func() { go l.loop() }) }

func (l *Looper) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	for fn := range l.q {
		err := fn()
		if err == nil {
			continue
		}
		if !errors.Is(err, errQuit) {
			l.mu.Lock()
			l.err = err
			l.mu.Unlock()
			if l.onError != nil {
				l.onError(err)
			}
		}
		return
	}
}

// Post queues fn, waiting for room in the queue.
// It returns false if the looper has already finished.
func (l *Looper) Post(fn func() error) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.q <- fn:
		return true
	case <-l.done:
		return false
	}
}

// TryPost queues fn only if there is room right now.
func (l *Looper) TryPost(fn func() error) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.q <- fn:
		return true
	default:
		return false
	}
}

// Quit lets the looper finish everything posted so far and exit.
func (l *Looper) Quit() { l.Post(func() error { return errQuit }) }

// QuitWith posts fn as the last handler. The looper exits right after
// it, functions posted later never run.
func (l *Looper) QuitWith(fn func() error) bool {
	return l.Post(func() error {
		if err := fn(); err != nil {
			return err
		}
		return errQuit
	})
}

// Join waits for the looper to exit and returns the error that stopped it.
func (l *Looper) Join() error {
	<-l.done
	return l.Err()
}

// Done is closed when the looper exits.
func (l *Looper) Done() <-chan struct{} { return l.done }

func (l *Looper) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Looper) String() string { return l.name }
