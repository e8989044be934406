package config

import (
	"testing"
	"time"
)

func TestConfigEnv(t *testing.T) {
	t.Setenv("CAMCORDER_VIDEO_BITRATE", "2000000")
	t.Setenv("CAMCORDER_AUDIO_SAMPLE_RATE", "44100")
	t.Setenv("CAMCORDER_STILL_FORMAT", "png")

	var conf Config
	if err := LoadConfigEnv(&conf); err != nil {
		t.Fatal(err)
	}

	if conf.Video.BitRate != 2000000 {
		t.Errorf("video bitrate %v is not 2000000", conf.Video.BitRate)
	}
	if conf.Audio.SampleRate != 44100 {
		t.Errorf("sample rate %v is not 44100", conf.Audio.SampleRate)
	}
	if conf.Still.Format != "png" {
		t.Errorf("still format %v is not png", conf.Still.Format)
	}
	if err := conf.Validate(); err != nil {
		t.Errorf("valid config failed: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var conf Config
	if err := LoadConfigEnv(&conf); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		got, want any
	}{
		{"videoBitRate", conf.Video.BitRate, 10000000},
		{"audioBitRate", conf.Audio.BitRate, 128000},
		{"frameRate", conf.Video.Fps, 30},
		{"iFrameIntervalSec", conf.Video.IFrameInterval, 5},
		{"sampleRate", conf.Audio.SampleRate, 16000},
		{"channels", conf.Audio.Channels, 1},
		{"sleep", conf.Audio.Sleep, 5 * time.Millisecond},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("%v = %v, want %v", test.name, test.got, test.want)
		}
	}
}

func TestValidate(t *testing.T) {
	var conf Config
	if err := LoadConfigEnv(&conf); err != nil {
		t.Fatal(err)
	}
	conf.Recording.Container = "avi"
	conf.Audio.Channels = 6
	if err := conf.Validate(); err == nil {
		t.Errorf("broken config passed")
	}
}
