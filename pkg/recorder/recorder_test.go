package recorder

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/graphics/soft"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/media"
)

var (
	quiet = WithLogger(logger.Discard())

	videoConf = config.Video{Fps: 30, IFrameInterval: 1, BitRate: 1_000_000, Queue: 64}
	audioConf = config.Audio{SampleRate: 16000, Channels: 1, BitRate: 64000, Queue: 16}

	// camera images are top row first
	cameraTransform = media.Matrix{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 1,
	}
)

// camera is a soft context with a texture holding img.
func camera(t *testing.T, img *image.RGBA) (*soft.Device, graphics.Context, graphics.Texture) {
	t.Helper()
	dev := soft.NewDevice()
	ctx, err := dev.NewContext(nil)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	tex, err := ctx.NewTexture(b.Dx(), b.Dy())
	if err != nil {
		t.Fatal(err)
	}
	if err := tex.Upload(img); err != nil {
		t.Fatal(err)
	}
	return dev, ctx, tex
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %v", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func frame(ts int64) media.Frame { return media.Frame{Transform: cameraTransform, Timestamp: ts} }
