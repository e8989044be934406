// Package fmp4 writes fragmented MP4 files without cgo.
package fmp4

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/container"
	"github.com/grafika-go/camcorder/pkg/logger"
)

const (
	videoTimeScale = 90000
	// FragmentDuration is the longest fragment in µs, video key frames cut earlier.
	FragmentDuration = 1_000_000
)

type sample struct {
	ts      int64
	key     bool
	payload []byte
}

type track struct {
	id        int
	video     bool
	timeScale uint32
	codec     mp4.Codec
	pending   *sample
	lastDur   uint32
	samples   []*fmp4.Sample
	base      uint64
}

type Muxer struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	log    *logger.Logger
	life   container.Lifecycle
	tracks []*track

	origin    int64
	hasOrigin bool
	fragStart int64
	seq       uint32
	written   int64
}

// New creates the output file at path.
func New(path string, log *logger.Logger) (*Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Muxer{path: path, f: f, w: bufio.NewWriter(f), log: log.Tag("fmp4"), seq: 1}, nil
}

func (m *Muxer) AddTrack(format codec.Format) (int, error) {
	if err := container.CheckFormat(format); err != nil {
		return -1, err
	}
	t := track{id: len(m.tracks) + 1}
	if format.IsVideo() {
		t.video = true
		t.timeScale = videoTimeScale
		t.codec = &mp4.CodecH264{SPS: format.CSD[0], PPS: format.CSD[1]}
	} else {
		var conf mpeg4audio.AudioSpecificConfig
		if err := conf.Unmarshal(format.CSD[0]); err != nil {
			return -1, fmt.Errorf("audio specific config: %w", err)
		}
		t.timeScale = uint32(format.SampleRate)
		t.codec = &mp4.CodecMPEG4Audio{Config: conf}
	}
	i, err := m.life.Add()
	if err != nil {
		return -1, err
	}
	m.tracks = append(m.tracks, &t)
	m.log.Debug().Msgf("track %v: %v", i, format.MIME)
	return i, nil
}

func (m *Muxer) Start() error {
	if err := m.life.Start(); err != nil {
		return err
	}
	init := fmp4.Init{}
	for _, t := range m.tracks {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{ID: t.id, TimeScale: t.timeScale, Codec: t.codec})
	}
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return m.write(buf.Bytes())
}

func (m *Muxer) WriteSampleData(track int, data []byte, info codec.BufferInfo) error {
	if err := m.life.Write(track); err != nil {
		return err
	}
	if info.Flags.Has(codec.FlagCodecConfig) || len(data) == 0 {
		return nil
	}
	t := m.tracks[track]

	payload := data
	if t.video {
		var err error
		if payload, err = avcc(data); err != nil {
			return err
		}
		if payload == nil {
			return nil
		}
	}

	if !m.hasOrigin {
		m.origin, m.hasOrigin = info.PresentationTimeUs, true
		m.fragStart = 0
	}
	rel := max(info.PresentationTimeUs-m.origin, 0)
	ts := rel * int64(t.timeScale) / 1_000_000
	key := !t.video || info.Flags.Has(codec.FlagKeyFrame)

	if t.pending != nil {
		dur := ts - t.pending.ts
		if dur <= 0 {
			dur = 1
		}
		t.lastDur = uint32(dur)
		t.push(t.pending, t.lastDur)
	}
	if (t.video && key) || rel-m.fragStart >= FragmentDuration {
		if err := m.flush(); err != nil {
			return err
		}
		m.fragStart = rel
	}
	t.pending = &sample{ts: ts, key: key, payload: payload}
	return nil
}

func (t *track) push(s *sample, dur uint32) {
	if len(t.samples) == 0 {
		t.base = uint64(s.ts)
	}
	t.samples = append(t.samples, &fmp4.Sample{
		Duration:        dur,
		IsNonSyncSample: !s.key,
		Payload:         s.payload,
	})
}

// flush writes the samples collected so far as one fragment.
func (m *Muxer) flush() error {
	part := fmp4.Part{SequenceNumber: m.seq}
	for _, t := range m.tracks {
		if len(t.samples) == 0 {
			continue
		}
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{ID: t.id, BaseTime: t.base, Samples: t.samples})
		t.samples = nil
	}
	if len(part.Tracks) == 0 {
		return nil
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("fragment %v: %w", m.seq, err)
	}
	m.seq++
	return m.write(buf.Bytes())
}

func (m *Muxer) write(b []byte) error {
	n, err := m.w.Write(b)
	m.written += int64(n)
	return err
}

func (m *Muxer) Stop() error {
	err := m.life.Stop()
	if errors.Is(err, container.ErrStopped) {
		return err
	}
	if err == nil {
		for _, t := range m.tracks {
			if t.pending != nil {
				t.push(t.pending, max(t.lastDur, 1))
				t.pending = nil
			}
		}
		err = m.flush()
		m.log.Info().Msgf("%v: %v fragments, %v bytes", m.path, m.seq-1, m.written)
	}
	return errors.Join(err, m.w.Flush(), m.f.Close())
}

// avcc turns an Annex-B access unit into length-prefixed NAL units,
// parameter sets are dropped as they live in the init segment.
func avcc(data []byte) ([]byte, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("annex-b: %w", err)
	}
	nalus := au[:0]
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
			continue
		}
		nalus = append(nalus, nalu)
	}
	if len(nalus) == 0 {
		return nil, nil
	}
	return h264.AVCC(nalus).Marshal()
}
