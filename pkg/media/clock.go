package media

// Timebase maps camera timestamps onto the session clock.
// The first valid frame is pinned to the session start.
type Timebase struct {
	start int64
	first int64
}

func NewTimebase(start int64) *Timebase { return &Timebase{start: start} }

// PTS returns the presentation time in nanoseconds for ts.
func (t *Timebase) PTS(ts int64) int64 {
	if t.first == 0 {
		t.first = ts
	}
	return t.start + (ts - t.first)
}

// AudioClock produces presentation times for PCM buffers.
// It advances by the buffer duration and never looks at wall clock time.
type AudioClock struct {
	last           int64
	rate           int
	bytesPerSample int
}

// NewAudioClock starts at startUs for 16-bit PCM with the given channel count.
func NewAudioClock(startUs int64, sampleRate, channels int) *AudioClock {
	if channels < 1 {
		channels = 1
	}
	return &AudioClock{last: startUs, rate: sampleRate, bytesPerSample: 2 * channels}
}

// Next returns the timestamp for a buffer of n bytes and moves the clock past it.
func (c *AudioClock) Next(n int) int64 {
	pts := c.last
	c.last += Duration(n/c.bytesPerSample, c.rate)
	return pts
}

// Now returns the time of the next buffer in microseconds.
func (c *AudioClock) Now() int64 { return c.last }

// Duration is round(1e6 * samples / rate) in microseconds.
func Duration(samples, rate int) int64 {
	if rate <= 0 {
		return 0
	}
	r := int64(rate)
	return (1_000_000*int64(samples) + r/2) / r
}
