package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grafika-go/camcorder/pkg/camera"
	"github.com/grafika-go/camcorder/pkg/capture"
	"github.com/grafika-go/camcorder/pkg/capture/portaudio"
	"github.com/grafika-go/camcorder/pkg/codec/ffmpeg"
	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/container"
	"github.com/grafika-go/camcorder/pkg/container/fmp4"
	"github.com/grafika-go/camcorder/pkg/container/mp4"
	"github.com/grafika-go/camcorder/pkg/graphics/opengl"
	"github.com/grafika-go/camcorder/pkg/graphics/soft"
	"github.com/grafika-go/camcorder/pkg/logger"
	"github.com/grafika-go/camcorder/pkg/monitoring"
	oss "github.com/grafika-go/camcorder/pkg/os"
	"github.com/grafika-go/camcorder/pkg/recorder"
	"github.com/grafika-go/camcorder/pkg/session"
	"github.com/grafika-go/camcorder/pkg/thread"
	flag "github.com/spf13/pflag"
)

var Version = "?"

const toneFreq = 440

func run() {
	var confPath string
	pre := flag.NewFlagSet("conf", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.StringVarP(&confPath, "conf", "c", "", "config file directory")
	_ = pre.Parse(os.Args[1:])

	var conf config.Config
	if err := config.LoadConfig(&conf, confPath); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	flag.StringVarP(&confPath, "conf", "c", confPath, "config file directory")
	conf.WithFlags(flag.CommandLine)
	flag.Parse()

	log := logger.NewConsole(conf.Debug, "cam", false)
	log.Info().Msgf("version %v", Version)
	if err := conf.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad config")
	}
	log.Debug().Msgf("config: %+v", conf)

	if err := record(conf, log); err != nil {
		log.Error().Err(err).Msg("recording failed")
		os.Exit(1)
	}
}

func record(conf config.Config, log *logger.Logger) error {
	lock, err := oss.NewDirLock(conf.Recording.Dir)
	if err != nil {
		return err
	}
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("%v: %w", conf.Recording.Dir, err)
	}
	defer func() { _ = lock.Unlock() }()

	if conf.Monitoring.IsEnabled() {
		mon := monitoring.New(conf.Monitoring, log)
		mon.Run()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mon.Shutdown(ctx)
		}()
	}

	facing, err := camera.ParseFacing(conf.Camera.Facing)
	if err != nil {
		return err
	}

	deps := session.Deps{
		Codecs: ffmpeg.NewFactory(conf.Video, log),
		Camera: camera.NewPattern(conf.Video.Width, conf.Video.Height, conf.Video.Fps, facing),
	}

	// the preview window, or a window that is never shown
	var win *opengl.Context
	switch conf.Graphics.Backend {
	case "opengl":
		dev, err := opengl.NewDevice(log)
		if err != nil {
			return err
		}
		defer dev.Terminate()
		ctx, surface, err := dev.NewWindow(conf.Video.Width, conf.Video.Height, conf.Graphics.Title)
		if err != nil {
			return err
		}
		deps.Device, deps.Context, deps.Window, win = dev, ctx, surface, ctx
	default:
		dev := soft.NewDevice()
		ctx, err := dev.NewContext(nil)
		if err != nil {
			return err
		}
		surface, err := ctx.NewOffscreenSurface(conf.Video.Width, conf.Video.Height)
		if err != nil {
			return err
		}
		deps.Device, deps.Context, deps.Window = dev, ctx, surface
	}

	switch conf.Audio.Source {
	case "tone":
		deps.Microphone = capture.NewTone(conf.Audio, toneFreq)
	default:
		deps.Microphone = portaudio.New(conf.Audio)
	}

	path := filepath.Join(conf.Recording.Dir, recorder.ParseName(conf.Recording.Name, time.Now()))
	var muxer container.Muxer
	switch conf.Recording.Container {
	case "mp4":
		muxer, err = mp4.New(path, log)
	default:
		muxer, err = fmp4.New(path, log)
	}
	if err != nil {
		return err
	}
	deps.Muxer = muxer

	s, err := session.New(conf, deps, log)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	log.Info().Msgf("recording into %v, stop with Ctrl+C", path)

	term := oss.ExpectTermination()
	var closed <-chan struct{}
	if win != nil {
		quit := make(chan struct{})
		defer close(quit)
		closed = pollEvents(win, deps.Device.(*opengl.Device), quit)
	}

	select {
	case sig := <-term:
		log.Info().Msgf("stopping on %v", sig)
	case <-closed:
		log.Info().Msg("window closed")
	case <-s.Done():
	}

	start := time.Now()
	err = s.Stop()
	log.Info().Msgf("%v frames in the movie, stopped in %v", s.Frames(), time.Since(start))
	if err != nil {
		return err
	}
	return s.Err()
}

// pollEvents keeps the preview window alive and reports when it was closed.
func pollEvents(win *opengl.Context, dev *opengl.Device, quit <-chan struct{}) <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
			}
			dev.PollEvents()
			if win.ShouldClose() {
				close(closed)
				return
			}
		}
	}()
	return closed
}

func main() { thread.Wrap(run) }
