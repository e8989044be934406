// Package container writes encoded tracks into a movie file.
package container

import (
	"errors"
	"fmt"

	"github.com/grafika-go/camcorder/pkg/codec"
)

var (
	ErrNotStarted = errors.New("muxer not started")
	ErrStarted    = errors.New("muxer already started")
	ErrStopped    = errors.New("muxer stopped")
	ErrNoTrack    = errors.New("no such track")
)

// Muxer has the lifecycle AddTrack* -> Start -> WriteSampleData* -> Stop.
// It is not safe for concurrent use.
type Muxer interface {
	AddTrack(format codec.Format) (int, error)
	Start() error
	WriteSampleData(track int, data []byte, info codec.BufferInfo) error
	Stop() error
}

// Kinds is the list of supported container names.
var Kinds = []string{"mp4", "fmp4"}

// CheckFormat validates that a track format carries what a container
// needs to describe it.
func CheckFormat(f codec.Format) error {
	switch f.MIME {
	case codec.MimeH264:
		if len(f.CSD) < 2 || len(f.CSD[0]) == 0 || len(f.CSD[1]) == 0 {
			return fmt.Errorf("h264 track without SPS/PPS")
		}
		if f.Width <= 0 || f.Height <= 0 {
			return fmt.Errorf("h264 track with size %vx%v", f.Width, f.Height)
		}
	case codec.MimeAAC:
		if len(f.CSD) < 1 || len(f.CSD[0]) == 0 {
			return fmt.Errorf("aac track without audio specific config")
		}
		if f.SampleRate <= 0 {
			return fmt.Errorf("aac track with sample rate %v", f.SampleRate)
		}
	default:
		return fmt.Errorf("unsupported track %q", f.MIME)
	}
	return nil
}

// Lifecycle tracks the state shared by muxer implementations.
type Lifecycle struct {
	Tracks  int
	started bool
	stopped bool
}

func (l *Lifecycle) Add() (int, error) {
	switch {
	case l.stopped:
		return -1, ErrStopped
	case l.started:
		return -1, ErrStarted
	}
	l.Tracks++
	return l.Tracks - 1, nil
}

func (l *Lifecycle) Start() error {
	switch {
	case l.stopped:
		return ErrStopped
	case l.started:
		return ErrStarted
	case l.Tracks == 0:
		return fmt.Errorf("start with no tracks")
	}
	l.started = true
	return nil
}

func (l *Lifecycle) Write(track int) error {
	switch {
	case l.stopped:
		return ErrStopped
	case !l.started:
		return ErrNotStarted
	case track < 0 || track >= l.Tracks:
		return fmt.Errorf("%w: %v", ErrNoTrack, track)
	}
	return nil
}

// Stop marks the end, it returns ErrNotStarted for a muxer that never started.
func (l *Lifecycle) Stop() error {
	if l.stopped {
		return ErrStopped
	}
	l.stopped = true
	if !l.started {
		return ErrNotStarted
	}
	return nil
}

func (l *Lifecycle) Started() bool { return l.started }
