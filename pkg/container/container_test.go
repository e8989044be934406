package container

import (
	"errors"
	"testing"

	"github.com/grafika-go/camcorder/pkg/codec"
)

func TestLifecycle(t *testing.T) {
	var l Lifecycle
	if err := l.Write(0); !errors.Is(err, ErrNotStarted) {
		t.Errorf("write before start: %v", err)
	}
	if err := l.Start(); err == nil {
		t.Errorf("start without tracks")
	}
	if i, _ := l.Add(); i != 0 {
		t.Errorf("first track %v", i)
	}
	if i, _ := l.Add(); i != 1 {
		t.Errorf("second track %v", i)
	}
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Add(); !errors.Is(err, ErrStarted) {
		t.Errorf("add after start: %v", err)
	}
	if err := l.Write(2); !errors.Is(err, ErrNoTrack) {
		t.Errorf("write to unknown track: %v", err)
	}
	if err := l.Write(1); err != nil {
		t.Error(err)
	}
	if err := l.Stop(); err != nil {
		t.Error(err)
	}
	if err := l.Write(1); !errors.Is(err, ErrStopped) {
		t.Errorf("write after stop: %v", err)
	}
}

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		name string
		f    codec.Format
		ok   bool
	}{
		{"h264", codec.Format{MIME: codec.MimeH264, Width: 2, Height: 2, CSD: [][]byte{{0x67}, {0x68}}}, true},
		{"h264 no pps", codec.Format{MIME: codec.MimeH264, Width: 2, Height: 2, CSD: [][]byte{{0x67}}}, false},
		{"aac", codec.Format{MIME: codec.MimeAAC, SampleRate: 16000, CSD: [][]byte{{0x14, 0x08}}}, true},
		{"aac no config", codec.Format{MIME: codec.MimeAAC, SampleRate: 16000}, false},
		{"opus", codec.Format{MIME: "audio/opus"}, false},
	}
	for _, test := range tests {
		if err := CheckFormat(test.f); (err == nil) != test.ok {
			t.Errorf("%v: %v", test.name, err)
		}
	}
}
