package graphics

import "image"

// FlipRows writes src into dst with the row order reversed. Framebuffer
// readback is bottom row first, frame sinks take rows top first.
func FlipRows(dst, src *image.RGBA) {
	h := min(src.Bounds().Dy(), dst.Bounds().Dy())
	n := 4 * min(src.Bounds().Dx(), dst.Bounds().Dx())
	for y := 0; y < h; y++ {
		s := src.PixOffset(src.Bounds().Min.X, src.Bounds().Min.Y+y)
		d := dst.PixOffset(dst.Bounds().Min.X, dst.Bounds().Min.Y+h-1-y)
		copy(dst.Pix[d:d+n], src.Pix[s:s+n])
	}
}

// Copy writes src into dst row by row, both anchored at their minimum point.
func Copy(dst, src *image.RGBA) {
	h := min(src.Bounds().Dy(), dst.Bounds().Dy())
	n := 4 * min(src.Bounds().Dx(), dst.Bounds().Dx())
	for y := 0; y < h; y++ {
		s := src.PixOffset(src.Bounds().Min.X, src.Bounds().Min.Y+y)
		d := dst.PixOffset(dst.Bounds().Min.X, dst.Bounds().Min.Y+y)
		copy(dst.Pix[d:d+n], src.Pix[s:s+n])
	}
}
