// Package portaudio captures the default input device.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/grafika-go/camcorder/pkg/config"
)

type Microphone struct {
	rate     int
	channels int
	frames   int

	mu     sync.Mutex
	stream *portaudio.Stream
	in     []int16
	closed atomic.Bool
}

func New(conf config.Audio) *Microphone {
	return &Microphone{rate: conf.SampleRate, channels: max(conf.Channels, 1), frames: conf.Frames}
}

func (m *Microphone) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	stream, err := m.open(m.rate, m.frames)
	if err != nil {
		// the device may not run at the requested rate, take its own
		dev, derr := portaudio.DefaultInputDevice()
		if derr != nil || int(dev.DefaultSampleRate) == m.rate || dev.DefaultSampleRate <= 0 {
			_ = portaudio.Terminate()
			return fmt.Errorf("open input: %w", err)
		}
		rate := int(dev.DefaultSampleRate)
		frames := max(m.frames*rate/m.rate, 1)
		if stream, err = m.open(rate, frames); err != nil {
			_ = portaudio.Terminate()
			return fmt.Errorf("open input at %v Hz: %w", rate, err)
		}
		m.rate, m.frames = rate, frames
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start input: %w", err)
	}
	m.stream = stream
	m.closed.Store(false)
	return nil
}

func (m *Microphone) open(rate, frames int) (*portaudio.Stream, error) {
	m.in = make([]int16, frames*m.channels)
	return portaudio.OpenDefaultStream(m.channels, 0, float64(rate), frames, m.in)
}

// Read blocks for one buffer of the stream.
func (m *Microphone) Read(p []byte) (int, error) {
	if m.closed.Load() {
		return 0, io.EOF
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return 0, io.EOF
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, err
	}
	n := min(len(p)/2, len(m.in))
	for i, s := range m.in[:n] {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(s))
	}
	return 2 * n, nil
}

// Stop waits for a pending Read and closes the stream.
func (m *Microphone) Stop() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := errors.Join(m.stream.Stop(), m.stream.Close(), portaudio.Terminate())
	m.stream = nil
	return err
}

func (m *Microphone) BufferSize() int { return m.frames * m.channels * 2 }

// SampleRate is the rate the device runs at, known after Start.
func (m *Microphone) SampleRate() int { return m.rate }
