// Package session wires the camera, the render thread, the encode
// pipelines and audio capture into one recording.
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/grafika-go/camcorder/pkg/camera"
	"github.com/grafika-go/camcorder/pkg/capture"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/container"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/recorder"
	"github.com/grafika-go/camcorder/pkg/render"
)

// Deps are the platform pieces a session runs on.
type Deps struct {
	Device graphics.Device
	// Context owns the camera texture and draws into Window.
	Context    graphics.Context
	Window     graphics.Surface
	Codecs     codec.Factory
	Muxer      container.Muxer
	Microphone capture.Microphone
	Camera     camera.Source
}

type Session struct {
	conf config.Config
	deps Deps
	log  *logger.Logger

	sink   *recorder.Sink
	video  *recorder.VideoPipeline
	still  *recorder.StillPipeline
	render *render.Thread
	audio  *capture.Audio

	done    chan struct{}
	errOnce sync.Once
	err     error

	stopOnce sync.Once
	stopErr  error
}

func New(conf config.Config, deps Deps, log *logger.Logger) (*Session, error) {
	switch {
	case deps.Device == nil, deps.Context == nil, deps.Window == nil:
		return nil, errors.New("session: no graphics")
	case deps.Codecs == nil, deps.Muxer == nil:
		return nil, errors.New("session: no codecs or muxer")
	case deps.Microphone == nil, deps.Camera == nil:
		return nil, errors.New("session: no camera or microphone")
	}

	s := Session{conf: conf, deps: deps, log: log.Tag("session"), done: make(chan struct{})}
	facing := deps.Camera.Facing()

	videoFlip, err := flip(conf.Video.Flip, facing.EncoderFlip())
	if err != nil {
		return nil, err
	}
	stillFlip, err := flip(conf.Still.Flip, facing.StillFlip())
	if err != nil {
		return nil, err
	}

	opts := []recorder.Option{recorder.WithLogger(log), recorder.WithOnError(s.fail)}
	s.sink = recorder.NewSink(deps.Codecs, deps.Muxer, conf.Audio,
		append(opts, recorder.WithPendingLimit(conf.Recording.PendingLimit))...)
	s.video = recorder.NewVideoPipeline(deps.Device, s.sink, deps.Codecs, conf.Video,
		append(opts, recorder.WithFlip(videoFlip))...)
	if conf.Still.Enabled {
		dir := filepath.Join(conf.Recording.Dir, conf.Still.Dir)
		s.still = recorder.NewStillPipeline(deps.Device, dir, conf.Still, append(opts, recorder.WithFlip(stillFlip))...)
	}
	s.audio = capture.New(deps.Microphone, s.sink.RenderAudioFrame,
		capture.WithSleep(conf.Audio.Sleep), capture.WithRate(conf.Audio.SampleRate, conf.Audio.Channels),
		capture.WithOnError(s.fail), capture.WithLogger(log))

	w, h := deps.Camera.Size()
	s.render = render.New(deps.Context, deps.Window,
		render.WithSize(w, h),
		render.WithLogger(log),
		render.WithOnError(s.fail),
		render.WithConsumers(s.consumers),
		render.WithOnReady(func(st *graphics.SurfaceTexture) {
			if err := deps.Camera.Start(st); err != nil {
				s.fail(fmt.Errorf("camera: %w", err))
			}
		}),
	)
	s.log.Info().Msgf("%v camera %vx%v, encoder flip %v, stills %v", facing, w, h, videoFlip, conf.Still.Enabled)
	return &s, nil
}

func flip(override string, def graphics.Flip) (graphics.Flip, error) {
	if override == "" {
		return def, nil
	}
	return graphics.ParseFlip(override)
}

func (s *Session) consumers(int, int) []render.Consumer {
	c := []render.Consumer{s.video}
	if s.still != nil {
		c = append(c, s.still)
	}
	return c
}

// Start begins recording: the sink pins the clock, the render thread
// starts the consumers and the camera, then audio capture starts.
func (s *Session) Start() error {
	if err := s.sink.Start(); err != nil {
		return err
	}
	if err := s.render.Start(); err != nil {
		return errors.Join(fmt.Errorf("render: %w", err), s.sink.Stop())
	}
	if err := s.audio.Start(); err != nil {
		return errors.Join(err, s.Stop())
	}
	s.log.Info().Msg("recording")
	return nil
}

func (s *Session) fail(err error) {
	s.errOnce.Do(func() {
		s.log.Error().Err(err).Msg("session failed")
		s.err = err
		close(s.done)
	})
}

// Done is closed on the first fatal pipeline error.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Frames is the number of camera frames rendered.
func (s *Session) Frames() int64 { return s.render.Frames() }

// Stop shuts everything down in order: camera, audio capture, still
// images, video drain, render thread and the sink with the muxer last.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		var errs []error
		add := func(what string, err error) {
			if err != nil {
				errs = append(errs, fmt.Errorf("%v: %w", what, err))
			}
		}
		add("camera", s.deps.Camera.Stop())
		add("audio capture", s.audio.Stop())
		if s.still != nil {
			add("stills", s.still.Stop())
		}
		add("video", s.video.Stop())
		add("render", s.render.Stop())
		add("sink", s.sink.Stop())
		s.stopErr = errors.Join(errs...)
		s.log.Info().Msgf("stopped, %v frames, %v dropped", s.render.Frames(), s.video.Dropped())
	})
	return s.stopErr
}
