// Package containertest provides an in-memory muxer that records calls.
package containertest

import (
	"sync"

	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/container"
)

type Sample struct {
	Track int
	Data  []byte
	Info  codec.BufferInfo
}

// Muxer enforces the container lifecycle and keeps everything written.
type Muxer struct {
	mu      sync.Mutex
	life    container.Lifecycle
	formats []codec.Format
	samples []Sample
	calls   []string
	// Fail makes WriteSampleData return it.
	Fail error
}

func New() *Muxer { return &Muxer{} }

func (m *Muxer) AddTrack(format codec.Format) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "add")
	if err := container.CheckFormat(format); err != nil {
		return -1, err
	}
	i, err := m.life.Add()
	if err != nil {
		return -1, err
	}
	m.formats = append(m.formats, format)
	return i, nil
}

func (m *Muxer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "start")
	return m.life.Start()
}

func (m *Muxer) WriteSampleData(track int, data []byte, info codec.BufferInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "write")
	if err := m.life.Write(track); err != nil {
		return err
	}
	if m.Fail != nil {
		return m.Fail
	}
	m.samples = append(m.samples, Sample{Track: track, Data: append([]byte(nil), data...), Info: info})
	return nil
}

func (m *Muxer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "stop")
	return m.life.Stop()
}

func (m *Muxer) Formats() []codec.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]codec.Format(nil), m.formats...)
}

func (m *Muxer) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// Track returns the samples of one track in write order.
func (m *Muxer) Track(track int) []Sample {
	var out []Sample
	for _, s := range m.Samples() {
		if s.Track == track {
			out = append(out, s)
		}
	}
	return out
}

// Calls lists the method calls in order: add, start, write, stop.
func (m *Muxer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Muxer) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.life.Started()
}
