package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	Video      Video
	Audio      Audio
	Recording  Recording
	Still      Still
	Camera     Camera
	Graphics   Graphics
	Monitoring Monitoring
	Debug      bool `fig:"debug"`
}

type Video struct {
	Width  int `fig:"width" default:"1280"`
	Height int `fig:"height" default:"720"`
	// BitRate in bits per second (videoBitRate).
	BitRate int `fig:"bitrate" default:"10000000"`
	// Fps is the target frame rate (frameRate).
	Fps int `fig:"fps" default:"30"`
	// IFrameInterval in seconds between key frames (iFrameIntervalSec).
	IFrameInterval int `fig:"iframe_interval" default:"5"`
	// Encoders are tried in order before the generic H.264 encoder.
	Encoders []string `fig:"encoders"`
	// Flip overrides the encoder mirroring picked from the camera facing:
	// none, horizontal, vertical or both.
	Flip string `fig:"flip"`
	// Queue is the number of frames the encoder worker may lag behind.
	Queue int `fig:"queue" default:"4"`
}

type Audio struct {
	// BitRate in bits per second (audioBitRate).
	BitRate int `fig:"bitrate" default:"128000"`
	// SampleRate in Hz (sampleRate).
	SampleRate int `fig:"sample_rate" default:"16000"`
	Channels   int `fig:"channels" default:"1"`
	// Frames per microphone read.
	Frames int `fig:"frames" default:"1024"`
	// Sleep after every read.
	Sleep time.Duration `fig:"sleep" default:"5ms"`
	Queue int           `fig:"queue" default:"16"`
	// Source is mic (PortAudio default input) or tone (a generated sine).
	Source string `fig:"source" default:"mic"`
}

type Recording struct {
	Dir string `fig:"dir" default:"recording"`
	// Name of the movie file, supports %date:<go layout>%, %rand:<n>% and %uuid%.
	Name string `fig:"name" default:"movie_%date:20060102_150405%.mp4"`
	// Container is mp4 (libavformat) or fmp4 (fragmented, pure Go).
	Container string `fig:"container" default:"fmp4"`
	// PendingLimit bounds samples held while the muxer waits for all tracks.
	PendingLimit int `fig:"pending_limit" default:"512"`
}

type Still struct {
	Enabled bool `fig:"enabled"`
	// Dir is relative to the recording dir.
	Dir string `fig:"dir" default:"stills"`
	// Format is jpeg or png.
	Format  string `fig:"format" default:"jpeg"`
	Quality int    `fig:"quality" default:"90"`
	// Naming is index (IMG_<n>.jpg) or timestamp (<ts>.jpg).
	Naming string `fig:"naming" default:"index"`
	Flip   string `fig:"flip"`
	Zip    bool   `fig:"zip"`
	Queue  int    `fig:"queue" default:"2"`
}

type Camera struct {
	// Facing is front or back.
	Facing string `fig:"facing" default:"back"`
}

type Graphics struct {
	// Backend is opengl or soft.
	Backend string `fig:"backend" default:"opengl"`
	Title   string `fig:"title" default:"camcorder"`
}

type Monitoring struct {
	Port             int    `fig:"port" default:"6601"`
	URLPrefix        string `fig:"url_prefix"`
	MetricEnabled    bool   `fig:"metric_enabled"`
	ProfilingEnabled bool   `fig:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

// WithFlags binds the most used options to command line flags.
func (c *Config) WithFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.Debug, "debug", "d", c.Debug, "debug logging")
	fs.StringVarP(&c.Recording.Dir, "out", "o", c.Recording.Dir, "output directory")
	fs.StringVar(&c.Recording.Name, "name", c.Recording.Name, "output file name")
	fs.StringVar(&c.Recording.Container, "container", c.Recording.Container, "container backend: mp4, fmp4")
	fs.StringVar(&c.Graphics.Backend, "graphics", c.Graphics.Backend, "graphics backend: opengl, soft")
	fs.StringVar(&c.Camera.Facing, "facing", c.Camera.Facing, "camera facing: front, back")
	fs.IntVar(&c.Video.Width, "width", c.Video.Width, "frame width")
	fs.IntVar(&c.Video.Height, "height", c.Video.Height, "frame height")
	fs.IntVar(&c.Video.BitRate, "video-bitrate", c.Video.BitRate, "video bit rate")
	fs.IntVar(&c.Video.Fps, "fps", c.Video.Fps, "frame rate")
	fs.IntVar(&c.Audio.BitRate, "audio-bitrate", c.Audio.BitRate, "audio bit rate")
	fs.IntVar(&c.Audio.SampleRate, "sample-rate", c.Audio.SampleRate, "audio sample rate")
	fs.StringVar(&c.Audio.Source, "audio", c.Audio.Source, "audio source: mic, tone")
	fs.BoolVar(&c.Still.Enabled, "stills", c.Still.Enabled, "save every frame as an image")
}

// Validate checks option values that fig cannot.
func (c *Config) Validate() error {
	var errs []string
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		errs = append(errs, fmt.Sprintf("bad frame size %vx%v", c.Video.Width, c.Video.Height))
	}
	if c.Video.Fps <= 0 {
		errs = append(errs, "fps should be positive")
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, "sample rate should be positive")
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, "only 1 or 2 audio channels are supported")
	}
	switch c.Audio.Source {
	case "mic", "tone":
	default:
		errs = append(errs, "unknown audio source "+c.Audio.Source)
	}
	switch c.Graphics.Backend {
	case "opengl", "soft":
	default:
		errs = append(errs, "unknown graphics backend "+c.Graphics.Backend)
	}
	switch c.Recording.Container {
	case "mp4", "fmp4":
	default:
		errs = append(errs, "unknown container "+c.Recording.Container)
	}
	switch c.Still.Format {
	case "jpeg", "png":
	default:
		errs = append(errs, "unknown still format "+c.Still.Format)
	}
	switch c.Still.Naming {
	case "index", "timestamp":
	default:
		errs = append(errs, "unknown still naming "+c.Still.Naming)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %v", strings.Join(errs, ", "))
	}
	return nil
}
