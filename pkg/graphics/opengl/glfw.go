// Package opengl is the desktop OpenGL backend.
//
// Every context lives in a GLFW window: the preview is a visible one,
// worker contexts are hidden 1x1 windows created with the preview as
// their share window. GLFW wants window calls on the main thread, those
// go through thread.Call.
package opengl

import (
	"fmt"
	"sync"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
	"github.com/grafika-go/camcorder/pkg/thread"
)

type Device struct {
	log *logger.Logger

	initOnce sync.Once
	initErr  error
}

// NewDevice initializes GLFW.
func NewDevice(log *logger.Logger) (*Device, error) {
	log = log.Tag("opengl")
	log.Info().Msg("[GLFW] initialization...")
	if err := thread.CallErr(glfw.Init); err != nil {
		return nil, fmt.Errorf("%w: glfw: %v", graphics.ErrContext, err)
	}
	return &Device{log: log}, nil
}

// Terminate destroys what is left of GLFW.
func (d *Device) Terminate() {
	thread.Call(glfw.Terminate)
	d.log.Info().Msg("[GLFW] deinitialized")
}

// PollEvents keeps the preview window responsive, main thread only.
func (d *Device) PollEvents() { thread.Call(glfw.PollEvents) }

func (d *Device) createWindow(w, h int, title string, visible bool, share *glfw.Window) (win *glfw.Window, err error) {
	thread.Call(func() {
		glfw.WindowHint(glfw.Resizable, glfw.False)
		glfw.WindowHint(glfw.Visible, hint(visible))
		glfw.WindowHint(glfw.ContextVersionMajor, 2)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		win, err = glfw.CreateWindow(w, h, title, nil, share)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graphics.ErrContext, err)
	}
	return win, nil
}

func hint(v bool) int {
	if v {
		return glfw.True
	}
	return glfw.False
}

// NewWindow opens the on-screen preview, its context owns the camera texture.
func (d *Device) NewWindow(w, h int, title string) (*Context, graphics.Surface, error) {
	win, err := d.createWindow(w, h, title, true, nil)
	if err != nil {
		return nil, nil, err
	}
	var fw, fh int
	thread.Call(func() { fw, fh = win.GetFramebufferSize() })
	ctx := &Context{dev: d, win: win}
	return ctx, &windowSurface{ctx: ctx, w: fw, h: fh}, nil
}

func (d *Device) NewContext(share graphics.Context) (graphics.Context, error) {
	var sw *glfw.Window
	if share != nil {
		s, ok := share.(*Context)
		if !ok {
			return nil, fmt.Errorf("%w: foreign share context %T", graphics.ErrContext, share)
		}
		sw = s.win
	}
	win, err := d.createWindow(1, 1, "", false, sw)
	if err != nil {
		return nil, err
	}
	return &Context{dev: d, win: win}, nil
}

func (d *Device) initGL() error {
	d.initOnce.Do(func() {
		if err := gl.InitWithProcAddrFunc(glfw.GetProcAddress); err != nil {
			d.initErr = fmt.Errorf("%w: %v", graphics.ErrContext, err)
			return
		}
		d.log.Info().
			Str("version", get(gl.VERSION)).
			Str("vendor", get(gl.VENDOR)).
			Str("renderer", get(gl.RENDERER)).
			Str("glsl", get(gl.SHADING_LANGUAGE_VERSION)).
			Msg("[OpenGL] driver")
	})
	return d.initErr
}

func get(name uint32) string { return gl.GoStr(gl.GetString(name)) }

type Context struct {
	dev *Device
	win *glfw.Window
}

func (c *Context) MakeCurrent() error {
	c.win.MakeContextCurrent()
	return c.dev.initGL()
}

// ShouldClose reports whether the user closed the window.
func (c *Context) ShouldClose() (closed bool) {
	thread.Call(func() { closed = c.win.ShouldClose() })
	return
}

func (c *Context) NewTexture(w, h int) (graphics.Texture, error) { return newTexture(w, h) }

func (c *Context) NewQuad(flip graphics.Flip, tex graphics.Texture) (graphics.Quad, error) {
	return newQuad(flip, tex)
}

func (c *Context) NewOffscreenSurface(w, h int) (graphics.Surface, error) {
	return newFramebuffer(c, w, h, nil)
}

func (c *Context) NewEncoderSurface(sink media.FrameSink) (graphics.Surface, error) {
	w, h := sink.Size()
	return newFramebuffer(c, w, h, sink)
}

func (c *Context) Clear(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

// Release detaches whatever context the calling thread holds and
// destroys the window of c.
func (c *Context) Release() error {
	glfw.DetachCurrentContext()
	thread.Call(c.win.Destroy)
	return nil
}
