package camera

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/media"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageTransform maps texture coordinates of a top-first image so it
// shows upright.
var ImageTransform = media.Matrix{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 1, 0,
	0, 1, 0, 1,
}

var bars = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, A: 255},
	{G: 192, B: 192, A: 255},
	{G: 192, A: 255},
	{R: 192, B: 192, A: 255},
	{R: 192, A: 255},
	{B: 192, A: 255},
}

// Pattern is a synthetic camera showing moving color bars with the
// running time on top.
type Pattern struct {
	w, h   int
	fps    int
	facing Facing

	img  *image.RGBA
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewPattern(w, h, fps int, facing Facing) *Pattern {
	return &Pattern{w: w, h: h, fps: max(fps, 1), facing: facing}
}

func (p *Pattern) Size() (int, int) { return p.w, p.h }
func (p *Pattern) Facing() Facing   { return p.facing }

func (p *Pattern) Start(st *graphics.SurfaceTexture) error {
	if st == nil {
		return errors.New("no surface texture")
	}
	if w, h := st.Size(); w != p.w || h != p.h {
		return fmt.Errorf("texture is %vx%v, camera %vx%v", w, h, p.w, p.h)
	}
	p.img = image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	p.stop, p.done = make(chan struct{}), make(chan struct{})
	p.once = sync.Once{}
	go p.run(st)
	return nil
}

func (p *Pattern) run(st *graphics.SurfaceTexture) {
	defer close(p.done)
	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()

	start := time.Now()
	// the very first frame has no timestamp yet
	p.draw(p.img, 0)
	st.Publish(p.img, 0, ImageTransform)
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
		p.draw(p.img, time.Since(start))
		st.Publish(p.img, media.Monotonic(), ImageTransform)
	}
}

func (p *Pattern) draw(img *image.RGBA, d time.Duration) {
	shift := int(d.Milliseconds()/10) % p.w
	bw := max(p.w/len(bars), 1)
	for x := 0; x < p.w; x++ {
		c := bars[((x+shift)%p.w/bw)%len(bars)]
		for y := 0; y < p.h; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	AddLabel(img, 4, 4, fmt.Sprintf("%v %v", p.facing, TimeFormat(d)))
}

func (p *Pattern) Stop() error {
	if p.stop == nil {
		return nil
	}
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return nil
}

// AddLabel writes white text on a black box at x, y.
func AddLabel(img *image.RGBA, x, y int, label string) {
	draw.Draw(img, image.Rect(x, y, x+len(label)*7+3, y+12), &image.Uniform{C: color.RGBA{A: 255}}, image.Point{}, draw.Src)
	(&font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.Int26_6((x + 2) * 64), Y: fixed.Int26_6((y + 10) * 64)},
	}).DrawString(label)
}

func TimeFormat(d time.Duration) string {
	mms := int(d.Milliseconds())
	ms := mms % 1000
	s := (mms / 1000) % 60
	m := (mms / (1000 * 60)) % 60
	h := (mms / (1000 * 60 * 60)) % 24
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
