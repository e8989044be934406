package capture

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/grafika-go/camcorder/pkg/config"
)

// Tone is a microphone playing a sine wave in real time.
type Tone struct {
	rate     int
	channels int
	frames   int
	freq     float64

	start time.Time
	sent  int64
	stop  chan struct{}
	once  sync.Once
}

func NewTone(conf config.Audio, freq float64) *Tone {
	return &Tone{rate: conf.SampleRate, channels: max(conf.Channels, 1), frames: conf.Frames, freq: freq}
}

func (t *Tone) Start() error {
	t.start, t.sent = time.Now(), 0
	t.stop, t.once = make(chan struct{}), sync.Once{}
	return nil
}

func (t *Tone) Read(p []byte) (int, error) {
	n := min(len(p)/(2*t.channels), t.frames)
	due := t.start.Add(time.Duration(int64(time.Second) * (t.sent + int64(n)) / int64(t.rate)))
	timer := time.NewTimer(time.Until(due))
	defer timer.Stop()
	select {
	case <-t.stop:
		return 0, io.EOF
	case <-timer.C:
	}

	for i := 0; i < n; i++ {
		v := int16(math.Sin(2*math.Pi*t.freq*float64(t.sent+int64(i))/float64(t.rate)) * 0.3 * math.MaxInt16)
		for c := 0; c < t.channels; c++ {
			binary.LittleEndian.PutUint16(p[(i*t.channels+c)*2:], uint16(v))
		}
	}
	t.sent += int64(n)
	return n * 2 * t.channels, nil
}

func (t *Tone) Stop() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

func (t *Tone) BufferSize() int { return t.frames * 2 * t.channels }
func (t *Tone) SampleRate() int { return t.rate }
