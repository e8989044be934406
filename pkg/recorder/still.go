package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/media"
	"github.com/grafika-go/camcorder/pkg/monitoring"
	oss "github.com/grafika-go/camcorder/pkg/os"
	"github.com/grafika-go/camcorder/pkg/thread"
)

// StillPipeline saves camera frames as image files, one at a time.
type StillPipeline struct {
	dev  graphics.Device
	dir  string
	conf config.Still
	options

	looper  *thread.Looper
	state   media.StateVar
	busy    atomic.Bool
	dropped atomic.Int64
	saved   atomic.Int64

	ctx     graphics.Context
	surface graphics.Surface
	quad    graphics.Quad
	pix     *image.RGBA
	encode  func(io.Writer, image.Image) error
	ext     string
	count   int

	stopOnce sync.Once
	stopErr  error
}

func NewStillPipeline(dev graphics.Device, dir string, conf config.Still, opts ...Option) *StillPipeline {
	p := StillPipeline{dev: dev, dir: dir, conf: conf, options: newOptions("still", opts)}
	switch conf.Format {
	case "png":
		e := png.Encoder{CompressionLevel: png.BestSpeed, BufferPool: pngBuf()}
		p.encode, p.ext = e.Encode, "png"
	default:
		q := jpeg.Options{Quality: conf.Quality}
		p.encode = func(w io.Writer, img image.Image) error { return jpeg.Encode(w, img, &q) }
		p.ext = "jpg"
	}
	p.looper = thread.NewLooper("still", max(conf.Queue, 1), p.failed)
	return &p
}

type pool struct{ sync.Pool }

func pngBuf() *pool                      { return &pool{sync.Pool{New: func() any { return &png.EncoderBuffer{} }}} }
func (p *pool) Get() *png.EncoderBuffer  { return p.Pool.Get().(*png.EncoderBuffer) }
func (p *pool) Put(b *png.EncoderBuffer) { p.Pool.Put(b) }

func (p *StillPipeline) Start(share graphics.Context, tex graphics.Texture, w, h int) error {
	if !p.state.CompareAndSwap(media.Idle, media.Starting) {
		return fmt.Errorf("still pipeline is %v", p.state.Load())
	}
	p.looper.Start()
	p.looper.Post(func() error { return p.setup(share, tex, w, h) })
	return nil
}

func (p *StillPipeline) setup(share graphics.Context, tex graphics.Texture, w, h int) (err error) {
	if err = oss.CheckCreateDir(p.dir); err != nil {
		return err
	}
	if p.ctx, err = p.dev.NewContext(share); err != nil {
		return fmt.Errorf("still context: %w", err)
	}
	if p.surface, err = p.ctx.NewOffscreenSurface(w, h); err != nil {
		return fmt.Errorf("still surface: %w", err)
	}
	if err = p.surface.MakeCurrent(); err != nil {
		return err
	}
	if p.quad, err = p.ctx.NewQuad(p.flip, tex); err != nil {
		return err
	}
	p.pix = image.NewRGBA(image.Rect(0, 0, w, h))
	p.state.Store(media.Running)
	p.log.Info().Msgf("saving %v into %v", p.ext, p.dir)
	return nil
}

func (p *StillPipeline) failed(err error) {
	p.state.Store(media.Stopped)
	p.release()
	p.fail(err)
}

func (p *StillPipeline) Running() bool { return p.state.Load() == media.Running }

func (p *StillPipeline) Dropped() int64 { return p.dropped.Load() }

// Saved is the number of images written.
func (p *StillPipeline) Saved() int64 { return p.saved.Load() }

// RenderFrame queues a capture unless one is already in flight.
func (p *StillPipeline) RenderFrame(f media.Frame) {
	if !p.Running() {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.drop()
		return
	}
	if !p.looper.TryPost(func() error { return p.capture(f) }) {
		p.busy.Store(false)
		p.drop()
	}
}

func (p *StillPipeline) drop() {
	p.dropped.Add(1)
	monitoring.FramesDropped.WithLabelValues("still").Inc()
}

func (p *StillPipeline) capture(f media.Frame) error {
	defer p.busy.Store(false)
	if !f.Valid() || p.surface == nil {
		return nil
	}
	if err := p.surface.MakeCurrent(); err != nil {
		return err
	}
	p.ctx.Clear(0, 0, 0, 1)
	if err := p.quad.Draw(media.Identity, f.Transform); err != nil {
		return err
	}
	if err := p.surface.SwapBuffers(); err != nil {
		return err
	}
	if err := p.surface.ReadPixels(p.pix); err != nil {
		return err
	}
	p.count++
	return p.save(p.name(f.Timestamp))
}

func (p *StillPipeline) name(ts int64) string {
	if p.conf.Naming == "timestamp" {
		return fmt.Sprintf("%d.%v", ts, p.ext)
	}
	return fmt.Sprintf("IMG_%d.%v", p.count, p.ext)
}

func (p *StillPipeline) save(name string) (err error) {
	path := filepath.Join(p.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	w := bufio.NewWriter(f)
	if err = p.encode(w, p.pix); err != nil {
		return fmt.Errorf("encode %v: %w", name, err)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	p.saved.Add(1)
	monitoring.StillsSaved.Inc()
	p.log.Debug().Msgf("saved %v", name)
	return nil
}

func (p *StillPipeline) Stop() error {
	p.stopOnce.Do(func() { p.stopErr = p.stop() })
	return p.stopErr
}

func (p *StillPipeline) stop() error {
	if p.state.Load() == media.Idle {
		p.state.Store(media.Stopped)
		return nil
	}
	if p.state.Load() != media.Stopped {
		p.state.Store(media.Stopping)
	}
	p.looper.QuitWith(func() error { p.release(); return nil })
	err := p.looper.Join()
	p.state.Store(media.Stopped)
	p.log.Info().Msgf("%v images saved, %v frames skipped", p.Saved(), p.Dropped())

	if err == nil && p.conf.Zip && p.Saved() > 0 {
		if err = compress(p.dir); err != nil {
			return fmt.Errorf("zip stills: %w", err)
		}
		err = os.RemoveAll(p.dir)
	}
	return err
}

func (p *StillPipeline) release() {
	if p.quad != nil {
		p.quad.Release()
		p.quad = nil
	}
	if p.surface != nil {
		_ = p.surface.Release()
		p.surface = nil
	}
	if p.ctx != nil {
		_ = p.ctx.Release()
		p.ctx = nil
	}
}
