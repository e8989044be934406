package soft

import (
	"image"
	"image/color"
	"testing"

	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/media"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// markerImage is blue with a red pixel at the origin of the buffer.
func markerImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, blue)
		}
	}
	img.SetRGBA(0, 0, red)
	return img
}

func render(t *testing.T, flip graphics.Flip, tex media.Matrix, w, h int) *image.RGBA {
	t.Helper()
	dev := NewDevice()
	ctx, err := dev.NewContext(nil)
	if err != nil {
		t.Fatal(err)
	}
	texture, err := ctx.NewTexture(w, h)
	if err != nil {
		t.Fatal(err)
	}
	if err := texture.Upload(markerImage(w, h)); err != nil {
		t.Fatal(err)
	}
	surface, err := ctx.NewOffscreenSurface(w, h)
	if err != nil {
		t.Fatal(err)
	}
	if err := surface.MakeCurrent(); err != nil {
		t.Fatal(err)
	}
	quad, err := ctx.NewQuad(flip, texture)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Clear(0, 0, 0, 1)
	if err := quad.Draw(media.Identity, tex); err != nil {
		t.Fatal(err)
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := surface.ReadPixels(out); err != nil {
		t.Fatal(err)
	}
	return out
}

func redAt(img *image.RGBA) []image.Point {
	var pts []image.Point
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == red {
				pts = append(pts, image.Pt(x, y))
			}
		}
	}
	return pts
}

func TestFlipCorners(t *testing.T) {
	vflip := media.Matrix{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 1,
	}
	tests := []struct {
		flip graphics.Flip
		tex  media.Matrix
		want image.Point
	}{
		{flip: graphics.FlipNone, tex: media.Identity, want: image.Pt(0, 0)},
		{flip: graphics.FlipHorizontal, tex: media.Identity, want: image.Pt(7, 0)},
		{flip: graphics.FlipVertical, tex: media.Identity, want: image.Pt(0, 5)},
		{flip: graphics.FlipBoth, tex: media.Identity, want: image.Pt(7, 5)},
		{flip: graphics.FlipNone, tex: vflip, want: image.Pt(0, 5)},
		{flip: graphics.FlipVertical, tex: vflip, want: image.Pt(0, 0)},
	}
	for _, test := range tests {
		t.Run(test.flip.String(), func(t *testing.T) {
			out := render(t, test.flip, test.tex, 8, 6)
			got := redAt(out)
			if len(got) != 1 || got[0] != test.want {
				t.Errorf("marker at %v, want %v", got, test.want)
			}
			// everything else is the texture background
			if c := out.RGBAAt(3, 3); c != blue {
				t.Errorf("center is %v", c)
			}
		})
	}
}

func TestScaledDraw(t *testing.T) {
	dev := NewDevice()
	ctx, _ := dev.NewContext(nil)
	texture, _ := ctx.NewTexture(2, 2)
	_ = texture.Upload(markerImage(2, 2))
	surface, _ := ctx.NewOffscreenSurface(8, 8)
	_ = surface.MakeCurrent()
	quad, _ := ctx.NewQuad(graphics.FlipNone, texture)
	if err := quad.Draw(media.Identity, media.Identity); err != nil {
		t.Fatal(err)
	}
	out := image.NewRGBA(image.Rect(0, 0, 8, 8))
	_ = surface.ReadPixels(out)
	if n := len(redAt(out)); n != 16 {
		t.Errorf("marker covers %v pixels, want 16", n)
	}
}

type sink struct {
	frames []*image.RGBA
	pts    []int64
}

func (s *sink) Size() (int, int) { return 4, 4 }
func (s *sink) QueueFrame(img *image.RGBA, pts int64) error {
	s.frames = append(s.frames, img)
	s.pts = append(s.pts, pts)
	return nil
}

func TestEncoderSurface(t *testing.T) {
	dev := NewDevice()
	main, _ := dev.NewContext(nil)
	texture, _ := main.NewTexture(4, 4)
	_ = texture.Upload(markerImage(4, 4))

	shared, err := dev.NewContext(main)
	if err != nil {
		t.Fatal(err)
	}
	var out sink
	surface, err := shared.NewEncoderSurface(&out)
	if err != nil {
		t.Fatal(err)
	}
	_ = surface.MakeCurrent()
	quad, _ := shared.NewQuad(graphics.FlipHorizontal, texture)

	for _, pts := range []int64{100, 200} {
		if err := quad.Draw(media.Identity, media.Identity); err != nil {
			t.Fatal(err)
		}
		_ = surface.SetPresentationTime(pts)
		if err := surface.SwapBuffers(); err != nil {
			t.Fatal(err)
		}
	}
	if len(out.frames) != 2 || out.pts[0] != 100 || out.pts[1] != 200 {
		t.Fatalf("sink got %v frames with %v", len(out.frames), out.pts)
	}
	if out.frames[0] == out.frames[1] {
		t.Errorf("frames share a buffer")
	}
	if got := redAt(out.frames[1]); len(got) != 1 || got[0] != image.Pt(3, 3) {
		t.Errorf("marker at %v", got)
	}
}

func TestDrawWithoutSurface(t *testing.T) {
	ctx, _ := NewDevice().NewContext(nil)
	texture, _ := ctx.NewTexture(2, 2)
	quad, _ := ctx.NewQuad(graphics.FlipNone, texture)
	if err := quad.Draw(media.Identity, media.Identity); err == nil {
		t.Errorf("draw without a bound surface succeeded")
	}
}
