package thread

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLooperOrder(t *testing.T) {
	l := NewLooper("test", 16, nil)
	l.Start()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() error { got = append(got, i); return nil })
	}
	l.Quit()
	if err := l.Join(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("executed %v of 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order at %v: %v", i, v)
		}
	}
}

func TestLooperQuitRunsPending(t *testing.T) {
	l := NewLooper("test", 4, nil)
	var n atomic.Int32
	// not started yet, so everything stays queued
	for i := 0; i < 3; i++ {
		l.Post(func() error { n.Add(1); return nil })
	}
	go l.Quit()
	l.Start()
	if err := l.Join(); err != nil {
		t.Fatal(err)
	}
	if n.Load() != 3 {
		t.Errorf("executed %v of 3", n.Load())
	}
	if l.Post(func() error { return nil }) {
		t.Errorf("post after exit was accepted")
	}
}

func TestLooperError(t *testing.T) {
	boom := errors.New("boom")
	var reported atomic.Value
	l := NewLooper("test", 4, func(err error) { reported.Store(err) })
	l.Start()

	var after atomic.Bool
	l.Post(func() error { return boom })
	l.Post(func() error { after.Store(true); return nil })

	if err := l.Join(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if after.Load() {
		t.Errorf("handler after the failed one was executed")
	}
	if err, _ := reported.Load().(error); !errors.Is(err, boom) {
		t.Errorf("onError got %v", err)
	}
}

func TestLooperTryPostFull(t *testing.T) {
	l := NewLooper("test", 1, nil)
	l.Start()
	gate := make(chan struct{})
	started := make(chan struct{})
	l.Post(func() error { close(started); <-gate; return nil })
	<-started

	if !l.TryPost(func() error { return nil }) {
		t.Fatalf("the queue should have room for one")
	}
	deadline := time.After(time.Second)
	dropped := 0
	for dropped == 0 {
		select {
		case <-deadline:
			t.Fatal("TryPost never reported a full queue")
		default:
		}
		if !l.TryPost(func() error { return nil }) {
			dropped++
		}
	}
	close(gate)
	l.Quit()
	if err := l.Join(); err != nil {
		t.Fatal(err)
	}
}

func TestLooperQuitWith(t *testing.T) {
	l := NewLooper("test", 4, nil)
	gate := make(chan struct{})
	l.Post(func() error { <-gate; return nil })
	l.Start()

	var last, late atomic.Bool
	if !l.QuitWith(func() error { last.Store(true); return nil }) {
		t.Fatal("QuitWith refused")
	}
	if !l.TryPost(func() error { late.Store(true); return nil }) {
		t.Fatal("the queue should have room")
	}
	close(gate)
	if err := l.Join(); err != nil {
		t.Fatal(err)
	}
	if !last.Load() {
		t.Errorf("last handler did not run")
	}
	if late.Load() {
		t.Errorf("handler posted after QuitWith was executed")
	}
}

func TestLooperQuitWithError(t *testing.T) {
	boom := errors.New("boom")
	l := NewLooper("test", 2, nil)
	l.Start()
	l.QuitWith(func() error { return boom })
	if err := l.Join(); !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}
