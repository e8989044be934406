package opengl

import (
	"fmt"
	"image"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/media"
)

// framebuffer is an offscreen surface, with a sink it stands in for
// the input surface of an encoder.
type framebuffer struct {
	ctx  *Context
	fbo  uint32
	rbo  uint32
	w, h int
	sink media.FrameSink
	pts  int64
	read *image.RGBA
}

func newFramebuffer(ctx *Context, w, h int, sink media.FrameSink) (*framebuffer, error) {
	f := framebuffer{ctx: ctx, w: w, h: h, sink: sink}

	gl.GenRenderbuffers(1, &f.rbo)
	gl.BindRenderbuffer(gl.RENDERBUFFER, f.rbo)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.RGBA8, int32(w), int32(h))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	gl.GenFramebuffers(1, &f.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, f.fbo)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.RENDERBUFFER, f.rbo)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		_ = f.Release()
		return nil, fmt.Errorf("%w: framebuffer status 0x%X", graphics.ErrSurface, status)
	}
	return &f, nil
}

func (f *framebuffer) MakeCurrent() error {
	if err := f.ctx.MakeCurrent(); err != nil {
		return err
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, f.fbo)
	gl.Viewport(0, 0, int32(f.w), int32(f.h))
	return nil
}

func (f *framebuffer) SetPresentationTime(ns int64) error { f.pts = ns; return nil }

func (f *framebuffer) SwapBuffers() error {
	if f.sink == nil {
		gl.Flush()
		return glError("swap")
	}
	if f.read == nil {
		f.read = image.NewRGBA(image.Rect(0, 0, f.w, f.h))
	}
	if err := f.ReadPixels(f.read); err != nil {
		return err
	}
	img := image.NewRGBA(f.read.Bounds())
	graphics.FlipRows(img, f.read)
	return f.sink.QueueFrame(img, f.pts)
}

func (f *framebuffer) ReadPixels(dst *image.RGBA) error {
	return readPixels(f.fbo, f.w, f.h, dst)
}

func (f *framebuffer) Size() (int, int) { return f.w, f.h }

func (f *framebuffer) Release() error {
	gl.DeleteFramebuffers(1, &f.fbo)
	gl.DeleteRenderbuffers(1, &f.rbo)
	return glError("release")
}

func readPixels(fbo uint32, w, h int, dst *image.RGBA) error {
	if dst.Bounds().Dx() != w || dst.Bounds().Dy() != h || dst.Stride != 4*w {
		return fmt.Errorf("%w: read %v from %vx%v", graphics.ErrSurface, dst.Bounds().Size(), w, h)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&dst.Pix[0]))
	return glError("read")
}

// windowSurface is the default framebuffer of the preview window.
type windowSurface struct {
	ctx  *Context
	w, h int
}

func (s *windowSurface) MakeCurrent() error {
	if err := s.ctx.MakeCurrent(); err != nil {
		return err
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(s.w), int32(s.h))
	return nil
}

func (s *windowSurface) SetPresentationTime(int64) error { return nil }

func (s *windowSurface) SwapBuffers() error {
	s.ctx.win.SwapBuffers()
	return nil
}

func (s *windowSurface) ReadPixels(dst *image.RGBA) error { return readPixels(0, s.w, s.h, dst) }
func (s *windowSurface) Size() (int, int)                 { return s.w, s.h }
func (s *windowSurface) Release() error                   { return nil }
