// Package camera defines camera sources feeding a surface texture.
package camera

import (
	"fmt"

	"github.com/grafika-go/camcorder/pkg/graphics"
)

type Facing int

const (
	Back Facing = iota
	Front
)

func ParseFacing(s string) (Facing, error) {
	switch s {
	case "back", "":
		return Back, nil
	case "front":
		return Front, nil
	}
	return Back, fmt.Errorf("unknown camera facing %q", s)
}

func (f Facing) String() string {
	if f == Front {
		return "front"
	}
	return "back"
}

// EncoderFlip mirrors the front camera in the movie.
func (f Facing) EncoderFlip() graphics.Flip {
	if f == Front {
		return graphics.FlipHorizontal
	}
	return graphics.FlipNone
}

// StillFlip turns readback rows upright for saved images, mirrored for
// the front camera.
func (f Facing) StillFlip() graphics.Flip {
	if f == Front {
		return graphics.FlipBoth
	}
	return graphics.FlipVertical
}

// Source publishes frames into a surface texture from its own goroutine.
type Source interface {
	Start(st *graphics.SurfaceTexture) error
	Stop() error
	Size() (w, h int)
	Facing() Facing
}
