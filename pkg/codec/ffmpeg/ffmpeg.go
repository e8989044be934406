// Package ffmpeg implements the codec interfaces with libavcodec.
package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/logger"
)

var logOnce sync.Once

type Factory struct {
	encoders []string
	log      *logger.Logger
}

// NewFactory makes encoders, video encoder names from conf are tried
// in order before the default H.264 encoder of the build.
func NewFactory(conf config.Video, log *logger.Logger) *Factory {
	log = log.Tag("ffmpeg")
	logOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelWarning)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
			msg = strings.TrimSpace(msg)
			switch {
			case l <= astiav.LogLevelError:
				log.Error().Msg(msg)
			case l <= astiav.LogLevelWarning:
				log.Warn().Msg(msg)
			default:
				log.Debug().Msg(msg)
			}
		})
	})
	return &Factory{encoders: conf.Encoders, log: log}
}

func (f *Factory) NewVideoEncoder(format codec.Format) (codec.VideoEncoder, error) {
	if format.MIME != codec.MimeH264 {
		return nil, fmt.Errorf("%w: %v", codec.ErrNoEncoder, format.MIME)
	}
	return newVideoEncoder(format, f.encoders, f.log)
}

func (f *Factory) NewAudioEncoder(format codec.Format) (codec.AudioEncoder, error) {
	if format.MIME != codec.MimeAAC {
		return nil, fmt.Errorf("%w: %v", codec.ErrNoEncoder, format.MIME)
	}
	return newAudioEncoder(format, f.log)
}

// receive moves every ready packet into the output queue.
// Packet timestamps are converted with toUs.
func receive(ctx *astiav.CodecContext, pkt *astiav.Packet, out *codec.OutputQueue, toUs func(int64) int64) (eof bool, err error) {
	for {
		if err := ctx.ReceivePacket(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return true, nil
			}
			if errors.Is(err, astiav.ErrEagain) {
				return false, nil
			}
			return false, fmt.Errorf("receive packet: %w", err)
		}
		data := append([]byte(nil), pkt.Data()...)
		var flags codec.BufferFlag
		if pkt.Flags().Has(astiav.PacketFlagKey) {
			flags |= codec.FlagKeyFrame
		}
		out.Push(codec.Output{Event: codec.BufferAvailable, Data: data, Info: codec.BufferInfo{
			Size:               len(data),
			PresentationTimeUs: toUs(pkt.Pts()),
			Flags:              flags,
		}})
		pkt.Unref()
	}
}

// send hands a frame to the encoder. When the encoder input is full, ready
// packets are moved out with drain and the frame is sent once more.
// A frame the encoder still refuses is reported as dropped.
func send(push, drain func() error) (dropped bool, err error) {
	err = push()
	if errors.Is(err, astiav.ErrEagain) {
		if err = drain(); err != nil {
			return false, err
		}
		err = push()
	}
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, astiav.ErrEagain):
		return true, nil
	default:
		return false, fmt.Errorf("send frame: %w", err)
	}
}

func extraData(ctx *astiav.CodecContext) ([]byte, error) {
	par := astiav.AllocCodecParameters()
	defer par.Free()
	if err := ctx.ToCodecParameters(par); err != nil {
		return nil, err
	}
	return append([]byte(nil), par.ExtraData()...), nil
}
