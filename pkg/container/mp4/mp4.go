// Package mp4 writes MP4 files with libavformat.
package mp4

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/container"
	"github.com/grafika-go/camcorder/pkg/logger"
)

var usTimeBase = astiav.NewRational(1, 1_000_000)

type Muxer struct {
	path    string
	log     *logger.Logger
	life    container.Lifecycle
	fc      *astiav.FormatContext
	pb      *astiav.IOContext
	pkt     *astiav.Packet
	streams []*astiav.Stream
	frames  []int64
}

// New opens path for writing, the header goes out on Start.
func New(path string, log *logger.Logger) (*Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, "mp4", path)
	if err != nil {
		return nil, fmt.Errorf("output context: %w", err)
	}
	if fc == nil {
		return nil, errors.New("output context: nil")
	}
	pb, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
	if err != nil {
		fc.Free()
		return nil, fmt.Errorf("open %v: %w", path, err)
	}
	fc.SetPb(pb)
	return &Muxer{path: path, log: log.Tag("mp4"), fc: fc, pb: pb, pkt: astiav.AllocPacket()}, nil
}

func annexB(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		b = append(append(b, 0, 0, 0, 1), n...)
	}
	return b
}

func (m *Muxer) AddTrack(format codec.Format) (int, error) {
	if err := container.CheckFormat(format); err != nil {
		return -1, err
	}
	i, err := m.life.Add()
	if err != nil {
		return -1, err
	}
	s := m.fc.NewStream(nil)
	if s == nil {
		return -1, errors.New("new stream")
	}
	par := s.CodecParameters()
	if format.IsVideo() {
		par.SetCodecID(astiav.CodecIDH264)
		par.SetMediaType(astiav.MediaTypeVideo)
		par.SetWidth(format.Width)
		par.SetHeight(format.Height)
		par.SetPixelFormat(astiav.PixelFormatYuv420P)
		err = par.SetExtraData(annexB(format.CSD[0], format.CSD[1]))
		s.SetTimeBase(astiav.NewRational(1, 90000))
	} else {
		par.SetCodecID(astiav.CodecIDAac)
		par.SetMediaType(astiav.MediaTypeAudio)
		par.SetSampleRate(format.SampleRate)
		if format.Channels == 2 {
			par.SetChannelLayout(astiav.ChannelLayoutStereo)
		} else {
			par.SetChannelLayout(astiav.ChannelLayoutMono)
		}
		err = par.SetExtraData(format.CSD[0])
		s.SetTimeBase(astiav.NewRational(1, format.SampleRate))
	}
	if err != nil {
		return -1, fmt.Errorf("extradata: %w", err)
	}
	m.streams = append(m.streams, s)
	m.frames = append(m.frames, 0)
	m.log.Debug().Msgf("track %v: %v", i, format.MIME)
	return i, nil
}

func (m *Muxer) Start() error {
	if err := m.life.Start(); err != nil {
		return err
	}
	if err := m.fc.WriteHeader(nil); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	return nil
}

func (m *Muxer) WriteSampleData(track int, data []byte, info codec.BufferInfo) error {
	if err := m.life.Write(track); err != nil {
		return err
	}
	if info.Flags.Has(codec.FlagCodecConfig) || len(data) == 0 {
		return nil
	}
	s := m.streams[track]
	defer m.pkt.Unref()
	if err := m.pkt.FromData(data); err != nil {
		return fmt.Errorf("packet: %w", err)
	}
	m.pkt.SetPts(info.PresentationTimeUs)
	m.pkt.SetDts(info.PresentationTimeUs)
	m.pkt.SetStreamIndex(s.Index())
	if info.Flags.Has(codec.FlagKeyFrame) {
		m.pkt.SetFlags(m.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	m.pkt.RescaleTs(usTimeBase, s.TimeBase())
	if err := m.fc.WriteInterleavedFrame(m.pkt); err != nil {
		return fmt.Errorf("write track %v: %w", track, err)
	}
	m.frames[track]++
	return nil
}

func (m *Muxer) Stop() error {
	err := m.life.Stop()
	if errors.Is(err, container.ErrStopped) {
		return err
	}
	if err == nil {
		if terr := m.fc.WriteTrailer(); terr != nil {
			err = fmt.Errorf("trailer: %w", terr)
		}
		m.log.Info().Msgf("%v: %v samples per track", m.path, m.frames)
	}
	err = errors.Join(err, m.pb.Close())
	m.pkt.Free()
	m.fc.Free()
	return err
}
