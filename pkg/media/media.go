// Package media holds the value types shared by the capture, render and
// encode pipelines.
package media

import (
	"image"
	"sync/atomic"
	"time"
)

// Matrix is a column-major 4x4 transform as used by GL.
type Matrix [16]float32

var Identity = Matrix{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Frame describes one camera sample.
// It is passed by value so every consumer owns its copy.
type Frame struct {
	Transform Matrix
	// Timestamp is a monotonic value in nanoseconds, zero means
	// the frame is not valid yet.
	Timestamp int64
}

func (f Frame) Valid() bool { return f.Timestamp != 0 }

// Kind of elementary stream.
type Kind uint8

const (
	Video Kind = iota
	Audio
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	}
	return "unknown"
}

// FrameSink accepts rendered pixels, e.g. an encoder input surface.
// Images are passed with the top row first.
type FrameSink interface {
	Size() (w, h int)
	QueueFrame(img *image.RGBA, ptsNs int64) error
}

var epoch = time.Now()

// Monotonic returns a monotonic clock reading in nanoseconds.
// It is never zero.
func Monotonic() int64 { return int64(time.Since(epoch)) + 1 }

// State of a pipeline.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// StateVar is a State safe for concurrent reads.
type StateVar struct{ v atomic.Int32 }

func (s *StateVar) Load() State   { return State(s.v.Load()) }
func (s *StateVar) Store(v State) { s.v.Store(int32(v)) }

// CompareAndSwap changes the state only from old.
func (s *StateVar) CompareAndSwap(old, new State) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}
