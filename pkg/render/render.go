// Package render runs the thread that owns the camera texture. Every
// camera frame is latched there, drawn to the preview and handed to the
// consumers, which draw it again on their own threads.
package render

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
	"github.com/grafika-go/camcorder/pkg/monitoring"
)

type State int32

const (
	Created State = iota
	SurfaceReady
	Rendering
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case SurfaceReady:
		return "SURFACE_READY"
	case Rendering:
		return "RENDERING"
	}
	return "UNKNOWN"
}

// Consumer draws camera frames from a context shared with the render thread.
type Consumer interface {
	Start(share graphics.Context, tex graphics.Texture, w, h int) error
	// RenderFrame must not block.
	RenderFrame(f media.Frame)
	Stop() error
	Running() bool
}

type options struct {
	consumers func(w, h int) []Consumer
	onReady   func(*graphics.SurfaceTexture)
	onError   func(error)
	clear     [4]float32
	w, h      int
	log       *logger.Logger
}

type Option func(*options)

// WithConsumers sets the factory of consumers, called once with the
// texture size when the surface is ready.
func WithConsumers(fn func(w, h int) []Consumer) Option {
	return func(o *options) { o.consumers = fn }
}

// WithOnReady is called once the camera may publish into the surface texture.
func WithOnReady(fn func(*graphics.SurfaceTexture)) Option {
	return func(o *options) { o.onReady = fn }
}

func WithOnError(fn func(error)) Option { return func(o *options) { o.onError = fn } }

func WithClearColor(r, g, b, a float32) Option {
	return func(o *options) { o.clear = [4]float32{r, g, b, a} }
}

// WithSize sets the camera texture size, the window size by default.
func WithSize(w, h int) Option { return func(o *options) { o.w, o.h = w, h } }

func WithLogger(log *logger.Logger) Option { return func(o *options) { o.log = log } }

type Thread struct {
	ctx    graphics.Context
	window graphics.Surface
	options

	state    atomic.Int32
	requests chan struct{}
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	frames   atomic.Int64

	// render goroutine owned
	tex       graphics.Texture
	st        *graphics.SurfaceTexture
	preview   graphics.Quad
	consumers []Consumer
	err       error
}

// New makes a render thread drawing into window with ctx, the main
// context that owns the camera texture.
func New(ctx graphics.Context, window graphics.Surface, opts ...Option) *Thread {
	o := options{log: logger.Default(), clear: [4]float32{0, 0, 0, 1}}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.Tag("render")
	if o.w == 0 || o.h == 0 {
		o.w, o.h = window.Size()
	}
	return &Thread{
		ctx:      ctx,
		window:   window,
		options:  o,
		requests: make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *Thread) State() State { return State(t.state.Load()) }

// SurfaceTexture is valid after Start.
func (t *Thread) SurfaceTexture() *graphics.SurfaceTexture { return t.st }

// Frames is the number of frames drawn.
func (t *Thread) Frames() int64 { return t.frames.Load() }

// Start spawns the render goroutine and waits until it is ready to
// draw camera frames.
func (t *Thread) Start() error {
	if !t.started.CompareAndSwap(false, true) {
		return errors.New("render thread already started")
	}
	ready := make(chan error, 1)
	go t.run(ready)
	if err := <-ready; err != nil {
		return err
	}
	if t.onReady != nil {
		t.onReady(t.st)
	}
	return nil
}

func (t *Thread) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	if err := t.setup(); err != nil {
		t.release()
		ready <- err
		return
	}
	ready <- nil

	for {
		select {
		case <-t.quit:
			t.release()
			return
		case <-t.requests:
			if err := t.draw(); err != nil {
				t.log.Error().Err(err).Msg("draw")
				t.err = err
				if t.onError != nil {
					t.onError(err)
				}
				t.release()
				return
			}
		}
	}
}

func (t *Thread) setup() (err error) {
	if err = t.window.MakeCurrent(); err != nil {
		return fmt.Errorf("preview surface: %w", err)
	}
	if t.tex, err = t.ctx.NewTexture(t.w, t.h); err != nil {
		return fmt.Errorf("camera texture: %w", err)
	}
	t.st = graphics.NewSurfaceTexture(t.tex)
	t.st.SetOnFrameAvailable(t.RequestRender)
	if t.preview, err = t.ctx.NewQuad(graphics.FlipNone, t.tex); err != nil {
		return err
	}
	t.state.Store(int32(SurfaceReady))

	if t.options.consumers != nil {
		t.consumers = t.options.consumers(t.w, t.h)
	}
	t.surfaceChanged()
	t.state.Store(int32(Rendering))
	t.log.Info().Msgf("rendering %vx%v with %v consumers", t.w, t.h, len(t.consumers))
	return nil
}

func (t *Thread) surfaceChanged() {
	for _, c := range t.consumers {
		if c.Running() {
			continue
		}
		if err := c.Start(t.ctx, t.tex, t.w, t.h); err != nil {
			t.log.Error().Err(err).Msg("consumer start")
			if t.onError != nil {
				t.onError(err)
			}
		}
	}
}

// RequestRender asks for one more frame. Requests made while one is
// pending are merged.
func (t *Thread) RequestRender() {
	select {
	case t.requests <- struct{}{}:
	default:
	}
}

func (t *Thread) draw() error {
	if err := t.st.UpdateTexImage(); err != nil {
		return err
	}
	f := media.Frame{Transform: t.st.TransformMatrix(), Timestamp: t.st.Timestamp()}
	for _, c := range t.consumers {
		if c.Running() {
			c.RenderFrame(f)
		}
	}

	if err := t.window.MakeCurrent(); err != nil {
		return err
	}
	t.ctx.Clear(t.clear[0], t.clear[1], t.clear[2], t.clear[3])
	if err := t.preview.Draw(media.Identity, f.Transform); err != nil {
		return err
	}
	if err := t.window.SwapBuffers(); err != nil {
		return err
	}
	t.frames.Add(1)
	monitoring.FramesRendered.Inc()
	return nil
}

func (t *Thread) release() {
	if t.preview != nil {
		t.preview.Release()
		t.preview = nil
	}
}

// Stop ends the render loop. Consumers are not stopped here.
func (t *Thread) Stop() error {
	if !t.started.Load() {
		return nil
	}
	t.stopOnce.Do(func() { close(t.quit) })
	<-t.done
	if t.err != nil {
		return errors.Join(errors.New("render thread failed"), t.err)
	}
	return nil
}
