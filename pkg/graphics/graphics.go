// Package graphics describes the GPU objects the pipelines draw with.
//
// A Device hands out contexts. A context may share textures with another
// one, which is how the camera texture owned by the render thread is
// drawn by the encoder and still workers. A context must only be used on
// the OS thread where it was made current.
package graphics

import (
	"errors"
	"image"

	"github.com/grafika-go/camcorder/pkg/media"
)

var (
	ErrShader  = errors.New("shader")
	ErrContext = errors.New("context")
	ErrSurface = errors.New("surface")
)

type Device interface {
	// NewContext creates a context that shares objects with share,
	// nil share makes an independent one.
	NewContext(share Context) (Context, error)
}

type Context interface {
	MakeCurrent() error
	// NewTexture allocates an RGBA texture for camera images.
	NewTexture(w, h int) (Texture, error)
	// NewQuad compiles the full-screen quad program.
	NewQuad(flip Flip, tex Texture) (Quad, error)
	// NewOffscreenSurface makes a w x h surface that never reaches a screen.
	NewOffscreenSurface(w, h int) (Surface, error)
	// NewEncoderSurface makes a surface whose swaps feed the sink.
	NewEncoderSurface(sink media.FrameSink) (Surface, error)
	Clear(r, g, b, a float32)
	Release() error
}

type Surface interface {
	// MakeCurrent binds the surface and its context to the calling thread.
	MakeCurrent() error
	// SetPresentationTime stamps the next swap, in nanoseconds.
	SetPresentationTime(ns int64) error
	SwapBuffers() error
	// ReadPixels copies the surface into dst, bottom row first.
	ReadPixels(dst *image.RGBA) error
	Size() (w, h int)
	Release() error
}

type Texture interface {
	ID() uint32
	Size() (w, h int)
	// Upload replaces the texture content, img must match the texture size.
	Upload(img *image.RGBA) error
}

// Quad draws the texture over the whole bound surface.
type Quad interface {
	Draw(mvp, tex media.Matrix) error
	Release()
}
