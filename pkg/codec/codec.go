// Package codec describes hardware-style encoders: input goes in through
// a surface or queued buffers, compressed output is polled with Dequeue.
package codec

import (
	"errors"
	"time"

	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/media"
)

const (
	MimeH264 = "video/avc"
	MimeAAC  = "audio/mp4a-latm"
)

var (
	ErrNoEncoder  = errors.New("no encoder available")
	ErrNotStarted = errors.New("codec is not started")
	ErrReleased   = errors.New("codec is released")
)

// Format of an elementary stream.
type Format struct {
	MIME string

	Width          int
	Height         int
	FrameRate      int
	IFrameInterval int

	SampleRate int
	Channels   int

	BitRate int

	// CSD is the codec specific data, SPS and PPS for H.264
	// or the AudioSpecificConfig for AAC.
	CSD [][]byte
}

func (f Format) IsVideo() bool { return f.MIME == MimeH264 }

// VideoFormat is a baseline H.264 format of the given size.
func VideoFormat(w, h int, conf config.Video) Format {
	return Format{
		MIME:           MimeH264,
		Width:          w,
		Height:         h,
		FrameRate:      conf.Fps,
		IFrameInterval: conf.IFrameInterval,
		BitRate:        conf.BitRate,
	}
}

// AudioFormat is an AAC-LC format for 16-bit PCM input.
func AudioFormat(conf config.Audio) Format {
	return Format{
		MIME:       MimeAAC,
		SampleRate: conf.SampleRate,
		Channels:   conf.Channels,
		BitRate:    conf.BitRate,
	}
}

type BufferFlag uint32

const (
	FlagKeyFrame BufferFlag = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

func (f BufferFlag) Has(x BufferFlag) bool { return f&x != 0 }

type BufferInfo struct {
	Size               int
	PresentationTimeUs int64
	Flags              BufferFlag
}

type Event uint8

const (
	BufferAvailable Event = iota
	FormatChanged
	TryAgainLater
)

func (e Event) String() string {
	switch e {
	case BufferAvailable:
		return "buffer"
	case FormatChanged:
		return "format changed"
	case TryAgainLater:
		return "try again later"
	}
	return "unknown"
}

// Output is one result of Dequeue. Data belongs to the caller.
type Output struct {
	Event Event
	Data  []byte
	Info  BufferInfo
}

type Encoder interface {
	Start() error
	// Dequeue waits up to timeout for output, zero timeout polls.
	Dequeue(timeout time.Duration) (Output, error)
	// OutputFormat is valid after FormatChanged.
	OutputFormat() Format
	Stop() error
	Release() error
}

// VideoEncoder takes frames through its input surface.
type VideoEncoder interface {
	Encoder
	InputSurface() media.FrameSink
	SignalEndOfInputStream() error
}

// AudioEncoder takes 16-bit PCM buffers.
type AudioEncoder interface {
	Encoder
	// QueueInput blocks until the encoder can accept the buffer.
	QueueInput(pcm []byte, ptsUs int64, flags BufferFlag) error
}

type Factory interface {
	NewVideoEncoder(f Format) (VideoEncoder, error)
	NewAudioEncoder(f Format) (AudioEncoder, error)
}
