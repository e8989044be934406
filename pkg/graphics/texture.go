package graphics

import (
	"image"
	"sync"

	"github.com/grafika-go/camcorder/pkg/media"
)

// SurfaceTexture connects a camera producer with the render thread.
// The producer publishes images from any goroutine, the render thread
// latches the newest one into the texture with UpdateTexImage.
// Images published faster than they are latched replace each other.
type SurfaceTexture struct {
	tex Texture

	mu          sync.Mutex
	pending     *image.RGBA
	pendingTs   int64
	pendingM    media.Matrix
	hasPending  bool
	spare       *image.RGBA
	onAvailable func()

	ts        int64
	transform media.Matrix
}

func NewSurfaceTexture(tex Texture) *SurfaceTexture {
	return &SurfaceTexture{tex: tex, transform: media.Identity, pendingM: media.Identity}
}

// SetOnFrameAvailable sets the listener called after every Publish.
func (s *SurfaceTexture) SetOnFrameAvailable(fn func()) {
	s.mu.Lock()
	s.onAvailable = fn
	s.mu.Unlock()
}

// Publish hands a new camera image over. The pixels are copied, the
// producer may reuse img as soon as Publish returns.
func (s *SurfaceTexture) Publish(img *image.RGBA, ts int64, transform media.Matrix) {
	s.mu.Lock()
	if s.pending == nil {
		s.pending, s.spare = s.spare, nil
	}
	if s.pending == nil || s.pending.Bounds().Size() != img.Bounds().Size() {
		s.pending = image.NewRGBA(image.Rectangle{Max: img.Bounds().Size()})
	}
	Copy(s.pending, img)
	s.pendingTs, s.pendingM, s.hasPending = ts, transform, true
	fn := s.onAvailable
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// UpdateTexImage uploads the latest image. Must be called from the
// thread owning the context of the texture.
func (s *SurfaceTexture) UpdateTexImage() error {
	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return nil
	}
	img, ts, m := s.pending, s.pendingTs, s.pendingM
	s.pending, s.hasPending = nil, false
	s.mu.Unlock()

	// img is owned by this call until it goes back as the spare
	err := s.tex.Upload(img)
	s.mu.Lock()
	s.spare = img
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.ts, s.transform = ts, m
	return nil
}

func (s *SurfaceTexture) Texture() Texture              { return s.tex }
func (s *SurfaceTexture) Timestamp() int64              { return s.ts }
func (s *SurfaceTexture) TransformMatrix() media.Matrix { return s.transform }

// Size of the texture images.
func (s *SurfaceTexture) Size() (int, int) { return s.tex.Size() }
