package recorder

import (
	"image/color"
	"testing"

	"github.com/grafika-go/camcorder/pkg/codec/codectest"
	"github.com/grafika-go/camcorder/pkg/container/containertest"
	"github.com/grafika-go/camcorder/pkg/media"
)

type rig struct {
	factory *codectest.Factory
	muxer   *containertest.Muxer
	sink    *Sink
	video   *VideoPipeline
}

func newRig(t *testing.T, opts codectest.Options) *rig {
	t.Helper()
	r := rig{factory: codectest.NewFactory(opts), muxer: containertest.New()}
	r.sink = NewSink(r.factory, r.muxer, audioConf, quiet)
	if err := r.sink.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sink", r.sink.Running)

	dev, ctx, tex := camera(t, solid(8, 8, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	r.video = NewVideoPipeline(dev, r.sink, r.factory, videoConf, quiet)
	if err := r.video.Start(ctx, tex, 8, 8); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "video", r.video.Running)
	return &r
}

func (r *rig) stop(t *testing.T) {
	t.Helper()
	if err := r.video.Stop(); err != nil {
		t.Fatalf("video stop: %v", err)
	}
	if err := r.sink.Stop(); err != nil {
		t.Fatalf("sink stop: %v", err)
	}
}

func (r *rig) videoTrack() int {
	for i, f := range r.muxer.Formats() {
		if f.IsVideo() {
			return i
		}
	}
	return -1
}

func TestVideoSkipsZeroTimestamp(t *testing.T) {
	r := newRig(t, codectest.Options{})

	base := int64(7_000_000_000)
	r.video.RenderFrame(frame(0))
	r.video.RenderFrame(frame(0))
	for i := int64(0); i < 5; i++ {
		r.video.RenderFrame(frame(base + i*33_000_000))
	}
	r.stop(t)

	inputs := r.factory.Video().Inputs()
	if len(inputs) != 5 {
		t.Fatalf("encoder got %v frames, want 5", len(inputs))
	}
	start := r.sink.Epoch() / 1000
	for i, pts := range inputs {
		if want := start + int64(i)*33_000; pts != want {
			t.Errorf("frame %v pts %v, want %v", i, pts, want)
		}
	}
}

func TestVideoStopDrainsAll(t *testing.T) {
	for _, delay := range []int{0, 3, 10} {
		r := newRig(t, codectest.Options{Delay: delay, CodecConfig: true})
		const n = 20
		for i := int64(1); i <= n; i++ {
			r.video.RenderFrame(frame(i * 33_000_000))
			r.sink.RenderAudioFrame(make([]byte, 1024))
		}
		r.stop(t)

		if !r.factory.Video().Released() {
			t.Errorf("delay %v: encoder not released", delay)
		}
		v := r.videoTrack()
		if v < 0 {
			t.Fatalf("delay %v: no video track in %v", delay, r.muxer.Calls())
		}
		samples := r.muxer.Track(v)
		if len(samples) != n {
			t.Errorf("delay %v: muxed %v frames, want %v", delay, len(samples), n)
		}
		for i := 1; i < len(samples); i++ {
			if samples[i].Info.PresentationTimeUs <= samples[i-1].Info.PresentationTimeUs {
				t.Errorf("delay %v: pts goes back at %v", delay, i)
			}
		}
		if r.video.Dropped() != 0 {
			t.Errorf("delay %v: %v frames dropped", delay, r.video.Dropped())
		}
		if r.video.Running() {
			t.Errorf("delay %v: still running", delay)
		}
	}
}

func TestVideoDropsWhenBusy(t *testing.T) {
	gate := make(chan struct{})
	r := rig{factory: codectest.NewFactory(codectest.Options{Gate: gate}), muxer: containertest.New()}
	r.sink = NewSink(r.factory, r.muxer, audioConf, quiet)
	_ = r.sink.Start()
	dev, ctx, tex := camera(t, solid(4, 4, color.RGBA{A: 255}))
	conf := videoConf
	conf.Queue = 1
	r.video = NewVideoPipeline(dev, r.sink, r.factory, conf, quiet)
	_ = r.video.Start(ctx, tex, 4, 4)
	waitFor(t, "video", r.video.Running)

	for i := int64(1); i <= 10; i++ {
		r.video.RenderFrame(frame(i))
	}
	if r.video.Dropped() < 8 {
		t.Errorf("dropped %v frames with the encoder stuck", r.video.Dropped())
	}
	close(gate)
	r.stop(t)
}

func TestVideoEncoderFailure(t *testing.T) {
	failed := make(chan error, 1)
	factory := codectest.NewFactory(codectest.Options{VideoErr: errBoom})
	sink := NewSink(factory, containertest.New(), audioConf, quiet)
	_ = sink.Start()
	dev, ctx, tex := camera(t, solid(4, 4, color.RGBA{A: 255}))
	video := NewVideoPipeline(dev, sink, factory, videoConf, quiet, WithOnError(func(err error) { failed <- err }))
	_ = video.Start(ctx, tex, 4, 4)

	if err := <-failed; err == nil {
		t.Fatal("no error")
	}
	video.RenderFrame(frame(1))
	if video.Running() {
		t.Errorf("running after failure")
	}
	if err := video.Stop(); err == nil {
		t.Errorf("stop lost the failure")
	}
	if err := sink.Stop(); err != nil {
		t.Error(err)
	}
}

func TestVideoFrameAfterFinish(t *testing.T) {
	r := newRig(t, codectest.Options{})
	r.video.RenderFrame(frame(33_000_000))

	// a frame the render thread queued while the pipeline was stopping
	r.video.state.Store(media.Stopping)
	r.video.looper.QuitWith(r.video.finish)
	r.video.looper.TryPost(func() error { return r.video.frame(frame(66_000_000)) })
	if err := r.video.looper.Join(); err != nil {
		t.Fatal(err)
	}
	if err := r.video.frame(frame(99_000_000)); err != nil {
		t.Errorf("frame after release: %v", err)
	}
	r.stop(t)

	if n := len(r.factory.Video().Inputs()); n != 1 {
		t.Errorf("encoder got %v frames, want 1", n)
	}
	if !r.factory.Video().EndOfStream() {
		t.Errorf("no end of stream")
	}
}
