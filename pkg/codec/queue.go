package codec

import (
	"sync"
	"time"
)

// OutputQueue hands encoder results from the producing side to Dequeue.
// Encoder backends share it.
type OutputQueue struct {
	mu     sync.Mutex
	items  []Output
	signal chan struct{}
}

func NewOutputQueue() *OutputQueue { return &OutputQueue{signal: make(chan struct{}, 1)} }

func (q *OutputQueue) Push(o Output) {
	q.mu.Lock()
	q.items = append(q.items, o)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop waits up to timeout for the next output.
func (q *OutputQueue) Pop(timeout time.Duration) Output {
	if o, ok := q.pop(); ok {
		return o
	}
	if timeout <= 0 {
		return Output{Event: TryAgainLater}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-q.signal:
			if o, ok := q.pop(); ok {
				return o
			}
		case <-t.C:
			if o, ok := q.pop(); ok {
				return o
			}
			return Output{Event: TryAgainLater}
		}
	}
}

func (q *OutputQueue) pop() (Output, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Output{}, false
	}
	o := q.items[0]
	q.items[0] = Output{}
	q.items = q.items[1:]
	return o, true
}

func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
