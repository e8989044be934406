// Package soft is a pure Go graphics backend.
//
// Framebuffers keep GL row order, row 0 is the bottom of the surface,
// and texture row 0 sits at t=0, so reading back a surface drawn with
// FlipNone returns the uploaded image unchanged.
package soft

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/media"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

type Device struct{}

func NewDevice() *Device { return &Device{} }

// NewContext makes a context; all soft contexts share textures.
func (d *Device) NewContext(share graphics.Context) (graphics.Context, error) {
	if share != nil {
		if s, ok := share.(*Context); !ok || s.isReleased() {
			return nil, fmt.Errorf("%w: bad share context", graphics.ErrContext)
		}
	}
	return &Context{}, nil
}

type Context struct {
	mu       sync.Mutex
	current  *Surface
	released bool
}

func (c *Context) MakeCurrent() error {
	if c.isReleased() {
		return fmt.Errorf("%w: released", graphics.ErrContext)
	}
	return nil
}

func (c *Context) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Context) bound() (*Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, fmt.Errorf("%w: no surface bound", graphics.ErrSurface)
	}
	return c.current, nil
}

func (c *Context) NewTexture(w, h int) (graphics.Texture, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("bad texture size %vx%v", w, h)
	}
	return &Texture{img: image.NewRGBA(image.Rect(0, 0, w, h))}, nil
}

func (c *Context) NewQuad(flip graphics.Flip, tex graphics.Texture) (graphics.Quad, error) {
	t, ok := tex.(*Texture)
	if !ok {
		return nil, fmt.Errorf("%w: foreign texture %T", graphics.ErrShader, tex)
	}
	return &Quad{ctx: c, flip: flip, tex: t}, nil
}

func (c *Context) NewOffscreenSurface(w, h int) (graphics.Surface, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: bad size %vx%v", graphics.ErrSurface, w, h)
	}
	return &Surface{ctx: c, fb: image.NewRGBA(image.Rect(0, 0, w, h))}, nil
}

func (c *Context) NewEncoderSurface(sink media.FrameSink) (graphics.Surface, error) {
	w, h := sink.Size()
	s, err := c.NewOffscreenSurface(w, h)
	if err != nil {
		return nil, err
	}
	s.(*Surface).sink = sink
	return s, nil
}

func (c *Context) Clear(r, g, b, a float32) {
	s, err := c.bound()
	if err != nil {
		return
	}
	col := color.RGBA{R: unit(r), G: unit(g), B: unit(b), A: unit(a)}
	draw.Draw(s.fb, s.fb.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

func (c *Context) Release() error {
	c.mu.Lock()
	c.released, c.current = true, nil
	c.mu.Unlock()
	return nil
}

func unit(v float32) uint8 { return uint8(math.Round(float64(max(0, min(1, v))) * 255)) }

type Texture struct {
	mu  sync.RWMutex
	img *image.RGBA
}

func (t *Texture) ID() uint32 { return 0 }

func (t *Texture) Size() (int, int) {
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

func (t *Texture) Upload(img *image.RGBA) error {
	if img.Bounds().Size() != t.img.Bounds().Size() {
		return fmt.Errorf("texture is %v, image is %v", t.img.Bounds().Size(), img.Bounds().Size())
	}
	t.mu.Lock()
	draw.Draw(t.img, t.img.Bounds(), img, img.Bounds().Min, draw.Src)
	t.mu.Unlock()
	return nil
}

type Surface struct {
	ctx  *Context
	fb   *image.RGBA
	sink media.FrameSink
	pts  int64
}

func (s *Surface) MakeCurrent() error {
	if err := s.ctx.MakeCurrent(); err != nil {
		return err
	}
	s.ctx.mu.Lock()
	s.ctx.current = s
	s.ctx.mu.Unlock()
	return nil
}

func (s *Surface) SetPresentationTime(ns int64) error { s.pts = ns; return nil }

// SwapBuffers sends a top-first copy of the frame to the sink, if any.
func (s *Surface) SwapBuffers() error {
	if s.sink == nil {
		return nil
	}
	frame := image.NewRGBA(s.fb.Bounds())
	graphics.FlipRows(frame, s.fb)
	return s.sink.QueueFrame(frame, s.pts)
}

func (s *Surface) ReadPixels(dst *image.RGBA) error {
	if dst.Bounds().Size() != s.fb.Bounds().Size() {
		return fmt.Errorf("%w: read %v from %v", graphics.ErrSurface, dst.Bounds().Size(), s.fb.Bounds().Size())
	}
	draw.Draw(dst, dst.Bounds(), s.fb, image.Point{}, draw.Src)
	return nil
}

func (s *Surface) Size() (int, int) {
	b := s.fb.Bounds()
	return b.Dx(), b.Dy()
}

func (s *Surface) Release() error {
	s.ctx.mu.Lock()
	if s.ctx.current == s {
		s.ctx.current = nil
	}
	s.ctx.mu.Unlock()
	return nil
}

// Quad samples the texture with nearest filtering the way the GL
// program does: quad position -> flipped coordinates -> texture matrix.
type Quad struct {
	ctx  *Context
	flip graphics.Flip
	tex  *Texture
}

var errDegenerate = errors.New("degenerate transform")

func (q *Quad) Draw(mvp, tex media.Matrix) error {
	s, err := q.ctx.bound()
	if err != nil {
		return err
	}
	w, h := s.Size()
	tw, th := q.tex.Size()
	mx, my := q.flip.Mirrors()

	su, ou := 1.0, 0.0
	if mx {
		su, ou = -1, 1
	}
	sv, ov := 1.0, 0.0
	if my {
		sv, ov = -1, 1
	}
	m := func(i int) float64 { return float64(tex[i]) }
	p := func(i int) float64 { return float64(mvp[i]) }

	// quad parameter (u, v) in [0, 1] to texel space
	uvToSrc := f64.Aff3{
		float64(tw) * m(0) * su, float64(tw) * m(4) * sv, float64(tw) * (m(0)*ou + m(4)*ov + m(12)),
		float64(th) * m(1) * su, float64(th) * m(5) * sv, float64(th) * (m(1)*ou + m(5)*ov + m(13)),
	}
	// quad parameter to framebuffer pixels, vertices are (2u-1, 2v-1)
	fw, fh := float64(w), float64(h)
	uvToDst := f64.Aff3{
		fw * p(0), fw * p(4), fw / 2 * (1 + p(12) - p(0) - p(4)),
		fh * p(1), fh * p(5), fh / 2 * (1 + p(13) - p(1) - p(5)),
	}
	srcToUv, ok := invert(uvToSrc)
	if !ok {
		return fmt.Errorf("texture matrix: %w", errDegenerate)
	}
	s2d := mul(uvToDst, srcToUv)
	if _, ok := invert(s2d); !ok {
		return fmt.Errorf("mvp matrix: %w", errDegenerate)
	}

	q.tex.mu.RLock()
	draw.NearestNeighbor.Transform(s.fb, s2d, q.tex.img, q.tex.img.Bounds(), draw.Src, nil)
	q.tex.mu.RUnlock()
	return nil
}

func (q *Quad) Release() {}

func invert(a f64.Aff3) (f64.Aff3, bool) {
	det := a[0]*a[4] - a[1]*a[3]
	if math.Abs(det) < 1e-12 {
		return f64.Aff3{}, false
	}
	return f64.Aff3{
		a[4] / det, -a[1] / det, (a[1]*a[5] - a[4]*a[2]) / det,
		-a[3] / det, a[0] / det, (a[3]*a[2] - a[0]*a[5]) / det,
	}, true
}

// mul returns a after b.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}
