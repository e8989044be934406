package fmp4

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/container"
	"github.com/grafika-go/camcorder/pkg/logger"
)

var (
	sps = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
	}
	pps = []byte{0x08}
)

func formats(t *testing.T) (codec.Format, codec.Format) {
	asc, err := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   16000,
		ChannelCount: 1,
	}.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	video := codec.Format{MIME: codec.MimeH264, Width: 1920, Height: 1080, FrameRate: 30, CSD: [][]byte{sps, pps}}
	audio := codec.Format{MIME: codec.MimeAAC, SampleRate: 16000, Channels: 1, CSD: [][]byte{asc}}
	return video, audio
}

func newMuxer(t *testing.T) (*Muxer, string) {
	path := filepath.Join(t.TempDir(), "movie.mp4")
	m, err := New(path, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return m, path
}

func TestLifecycleErrors(t *testing.T) {
	m, _ := newMuxer(t)
	video, _ := formats(t)
	if _, err := m.AddTrack(codec.Format{MIME: codec.MimeH264}); err == nil {
		t.Errorf("track without parameter sets was added")
	}
	v, err := m.AddTrack(video)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.WriteSampleData(v, []byte{0, 0, 0, 1, 0x65}, codec.BufferInfo{}); !errors.Is(err, container.ErrNotStarted) {
		t.Errorf("write before start: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddTrack(video); !errors.Is(err, container.ErrStarted) {
		t.Errorf("add after start: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Error(err)
	}
	if err := m.Stop(); !errors.Is(err, container.ErrStopped) {
		t.Errorf("second stop: %v", err)
	}
}

func TestWrite(t *testing.T) {
	m, path := newMuxer(t)
	video, audio := formats(t)
	a, _ := m.AddTrack(audio)
	v, _ := m.AddTrack(video)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	const start = 5_000_000
	for i := 0; i < 60; i++ {
		flags := codec.BufferFlag(0)
		nal := byte(0x41)
		if i%30 == 0 {
			flags, nal = codec.FlagKeyFrame, 0x65
		}
		data := []byte{0, 0, 0, 1, nal, byte(i), 0xaa}
		info := codec.BufferInfo{Size: len(data), PresentationTimeUs: start + int64(i)*33_333, Flags: flags}
		if err := m.WriteSampleData(v, data, info); err != nil {
			t.Fatal(err)
		}
		if i%2 == 0 {
			pcm := []byte{0x21, 0x10, byte(i)}
			if err := m.WriteSampleData(a, pcm, codec.BufferInfo{Size: 3, PresentationTimeUs: start + int64(i)*33_333}); err != nil {
				t.Fatal(err)
			}
		}
	}
	// config and empty buffers are skipped
	_ = m.WriteSampleData(v, []byte{0, 0, 0, 1, 0x67}, codec.BufferInfo{Flags: codec.FlagCodecConfig})
	_ = m.WriteSampleData(a, nil, codec.BufferInfo{})

	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if m.seq-1 != 2 {
		t.Errorf("wrote %v fragments, want one per key frame", m.seq-1)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, box := range []string{"ftyp", "moov", "avc1", "mp4a", "moof", "mdat"} {
		if !bytes.Contains(b, []byte(box)) {
			t.Errorf("no %v box", box)
		}
	}
	if int64(len(b)) != m.written {
		t.Errorf("file has %v bytes, wrote %v", len(b), m.written)
	}
}

func TestAVCC(t *testing.T) {
	au := []byte{0, 0, 0, 1, 0x67, 1, 0, 0, 1, 0x68, 2, 0, 0, 1, 0x65, 3, 4}
	got, err := avcc(au)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0, 0, 0, 3, 0x65, 3, 4}; !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
	if got, _ := avcc([]byte{0, 0, 0, 1, 0x67, 1}); got != nil {
		t.Errorf("parameter sets only: %x", got)
	}
}
