package render

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/graphics/soft"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
)

type consumer struct {
	running bool
	block   chan struct{}
	entered chan struct{}

	mu      sync.Mutex
	started int
	frames  []media.Frame
}

func (c *consumer) Start(graphics.Context, graphics.Texture, int, int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	return nil
}

func (c *consumer) RenderFrame(f media.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	n := len(c.frames)
	c.mu.Unlock()
	if n == 1 && c.block != nil {
		c.entered <- struct{}{}
		<-c.block
	}
}

func (c *consumer) Stop() error   { return nil }
func (c *consumer) Running() bool { return c.running }

func (c *consumer) Frames() []media.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]media.Frame(nil), c.frames...)
}

func newThread(t *testing.T, consumers ...Consumer) *Thread {
	t.Helper()
	ctx, err := soft.NewDevice().NewContext(nil)
	if err != nil {
		t.Fatal(err)
	}
	window, err := ctx.NewOffscreenSurface(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	var ready bool
	th := New(ctx, window,
		WithLogger(logger.Discard()),
		WithConsumers(func(w, h int) []Consumer { return consumers }),
		WithOnReady(func(*graphics.SurfaceTexture) { ready = true }),
	)
	if err := th.Start(); err != nil {
		t.Fatal(err)
	}
	if !ready || th.State() != Rendering {
		t.Fatalf("ready %v, state %v", ready, th.State())
	}
	t.Cleanup(func() { _ = th.Stop() })
	return th
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFanOut(t *testing.T) {
	on, off := &consumer{running: true}, &consumer{}
	th := newThread(t, on, off)

	// a running consumer is left alone
	if on.started != 0 || off.started != 1 {
		t.Errorf("started %v and %v times", on.started, off.started)
	}

	m := media.Matrix{1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 1, 0, 0, 1, 0, 1}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	th.SurfaceTexture().Publish(img, 42, m)
	waitFor(t, func() bool { return len(on.Frames()) == 1 })

	f := on.Frames()[0]
	if f.Timestamp != 42 || f.Transform != m {
		t.Errorf("got frame %+v", f)
	}
	if len(off.Frames()) != 0 {
		t.Errorf("stopped consumer got frames")
	}
	if th.Frames() != 1 {
		t.Errorf("drew %v frames", th.Frames())
	}
}

func TestRequestsCoalesce(t *testing.T) {
	c := &consumer{running: true, block: make(chan struct{}), entered: make(chan struct{})}
	th := newThread(t, c)

	th.RequestRender()
	<-c.entered
	for i := 0; i < 10; i++ {
		th.RequestRender()
	}
	close(c.block)
	waitFor(t, func() bool { return th.Frames() == 2 })
	time.Sleep(20 * time.Millisecond)
	if n := len(c.Frames()); n != 2 {
		t.Errorf("rendered %v frames, want 2", n)
	}
}

func TestStartError(t *testing.T) {
	ctx, _ := soft.NewDevice().NewContext(nil)
	window, _ := ctx.NewOffscreenSurface(4, 4)
	th := New(ctx, window, WithLogger(logger.Discard()), WithSize(-1, 4))
	if err := th.Start(); err == nil {
		t.Fatal("started with a bad texture size")
	}
	if th.State() != Created {
		t.Errorf("state %v", th.State())
	}
	if err := th.Stop(); err != nil {
		t.Error(err)
	}
}
