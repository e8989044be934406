package recorder

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/config"
	"github.com/grafika-go/camcorder/pkg/container"
	"github.com/grafika-go/camcorder/pkg/media"
	"github.com/grafika-go/camcorder/pkg/monitoring"
	"github.com/grafika-go/camcorder/pkg/thread"
)

type sample struct {
	kind media.Kind
	data []byte
	info codec.BufferInfo
}

// Sink owns the muxer and the audio encoder.
// The video pipeline feeds it through the same drain as audio.
type Sink struct {
	factory codec.Factory
	muxer   container.Muxer
	conf    config.Audio
	options

	looper   *thread.Looper
	state    media.StateVar
	draining atomic.Bool

	epoch int64
	clock *media.AudioClock
	enc   codec.AudioEncoder

	mu         sync.Mutex
	videoIndex int
	audioIndex int
	started    bool
	pending    []sample
	discarded  int

	stopOnce sync.Once
	stopErr  error
}

func NewSink(factory codec.Factory, muxer container.Muxer, conf config.Audio, opts ...Option) *Sink {
	s := Sink{
		factory:    factory,
		muxer:      muxer,
		conf:       conf,
		options:    newOptions("sink", opts),
		videoIndex: -1,
		audioIndex: -1,
	}
	s.looper = thread.NewLooper("audio", max(conf.Queue, 2), s.failed)
	return &s
}

// Start pins the session clock and starts the audio encoder on the worker.
func (s *Sink) Start() error {
	if !s.state.CompareAndSwap(media.Idle, media.Starting) {
		return fmt.Errorf("sink is %v", s.state.Load())
	}
	s.epoch = media.Monotonic()
	s.clock = media.NewAudioClock(s.epoch/1000, s.conf.SampleRate, s.conf.Channels)
	s.looper.Start()
	s.looper.Post(func() error {
		enc, err := s.factory.NewAudioEncoder(codec.AudioFormat(s.conf))
		if err != nil {
			return fmt.Errorf("audio encoder: %w", err)
		}
		s.enc = enc
		if err := enc.Start(); err != nil {
			return fmt.Errorf("audio encoder start: %w", err)
		}
		s.state.Store(media.Running)
		s.log.Debug().Msgf("started, epoch %v", s.epoch)
		return nil
	})
	return nil
}

func (s *Sink) failed(err error) {
	s.state.Store(media.Stopped)
	s.fail(err)
}

// Epoch is the session start in monotonic nanoseconds.
func (s *Sink) Epoch() int64 { return s.epoch }

func (s *Sink) Running() bool { return s.state.Load() == media.Running }

// RenderAudioFrame encodes one PCM buffer. It is called on the capture
// thread, buffers that arrive while the sink is not running are dropped.
func (s *Sink) RenderAudioFrame(pcm []byte) {
	if !s.Running() || len(pcm) == 0 {
		return
	}
	pts := s.clock.Next(len(pcm))
	if err := s.enc.QueueInput(append([]byte(nil), pcm...), pts, 0); err != nil {
		s.state.Store(media.Stopped)
		s.fail(fmt.Errorf("audio input: %w", err))
		return
	}
	if s.draining.CompareAndSwap(false, true) {
		if !s.looper.TryPost(s.drainStep) {
			s.draining.Store(false)
		}
	}
}

func (s *Sink) drainStep() error {
	s.draining.Store(false)
	return drain(s.enc, media.Audio, s, false)
}

func (s *Sink) index(kind media.Kind) *int {
	if kind == media.Video {
		return &s.videoIndex
	}
	return &s.audioIndex
}

func (s *Sink) canStartMuxer() bool { return s.videoIndex >= 0 && s.audioIndex >= 0 }

// CanStartMuxer reports whether both tracks have been added.
func (s *Sink) CanStartMuxer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canStartMuxer()
}

// addTrack registers a track on the first format of an encoder and
// starts the muxer once both tracks are known.
func (s *Sink) addTrack(kind media.Kind, format codec.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(kind)
	if *idx >= 0 {
		return fmt.Errorf("%v format changed twice", kind)
	}
	i, err := s.muxer.AddTrack(format)
	if err != nil {
		return fmt.Errorf("add %v track: %w", kind, err)
	}
	*idx = i
	s.log.Info().Msgf("%v track %v", kind, i)

	if !s.canStartMuxer() {
		return nil
	}
	if err := s.muxer.Start(); err != nil {
		return fmt.Errorf("muxer start: %w", err)
	}
	s.started = true
	s.log.Info().Msgf("muxer started, %v samples pending", len(s.pending))

	slices.SortStableFunc(s.pending, func(a, b sample) int {
		return cmp.Compare(a.info.PresentationTimeUs, b.info.PresentationTimeUs)
	})
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		if err := s.write(p.kind, p.data, p.info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) writeSample(kind media.Kind, data []byte, info codec.BufferInfo) error {
	if info.Flags.Has(codec.FlagCodecConfig) || len(data) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if len(s.pending) >= s.pendingLimit {
			s.evict()
		}
		s.pending = append(s.pending, sample{kind: kind, data: data, info: info})
		s.trimVideo()
		return nil
	}
	return s.write(kind, data, info)
}

// evict drops the oldest pending audio sample, or the oldest video frame
// when only video is pending.
func (s *Sink) evict() {
	i := slices.IndexFunc(s.pending, func(p sample) bool { return p.kind == media.Audio })
	if i < 0 {
		i = 0
	}
	s.pending = slices.Delete(s.pending, i, i+1)
	s.discarded++
}

// trimVideo drops pending video ahead of the first key frame once
// anything was evicted, those frames may have lost their reference.
func (s *Sink) trimVideo() {
	if s.discarded == 0 {
		return
	}
	key := slices.IndexFunc(s.pending, func(p sample) bool {
		return p.kind == media.Video && p.info.Flags.Has(codec.FlagKeyFrame)
	})
	if key == 0 {
		return
	}
	if key < 0 {
		key = len(s.pending)
	}
	kept := s.pending[:0]
	for i, p := range s.pending {
		if i < key && p.kind == media.Video {
			s.discarded++
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
}

func (s *Sink) write(kind media.Kind, data []byte, info codec.BufferInfo) error {
	if err := s.muxer.WriteSampleData(*s.index(kind), data, info); err != nil {
		return fmt.Errorf("write %v: %w", kind, err)
	}
	monitoring.SamplesWritten.WithLabelValues(kind.String()).Inc()
	monitoring.BytesWritten.WithLabelValues(kind.String()).Add(float64(len(data)))
	return nil
}

// Stop ends the audio stream, drains it and closes the muxer.
// The video pipeline must be stopped before.
func (s *Sink) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.stop() })
	return s.stopErr
}

func (s *Sink) stop() error {
	if s.state.Load() == media.Idle {
		s.state.Store(media.Stopped)
		return nil
	}
	if s.state.Load() != media.Stopped {
		s.state.Store(media.Stopping)
	}
	s.looper.QuitWith(s.finish)
	err := s.looper.Join()
	if s.enc != nil {
		err = errors.Join(err, s.enc.Release())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started && len(s.pending) > 0 {
		s.log.Warn().Msgf("muxer never started, %v samples discarded", len(s.pending))
	}
	if s.discarded > 0 {
		s.log.Warn().Msgf("%v samples dropped while waiting for tracks", s.discarded)
	}
	s.pending = nil
	if merr := s.muxer.Stop(); merr != nil && !errors.Is(merr, container.ErrNotStarted) {
		err = errors.Join(err, fmt.Errorf("muxer stop: %w", merr))
	}
	s.state.Store(media.Stopped)
	return err
}

func (s *Sink) finish() error {
	if err := s.enc.QueueInput(nil, s.clock.Now(), codec.FlagEndOfStream); err != nil {
		return fmt.Errorf("audio end of stream: %w", err)
	}
	if err := drain(s.enc, media.Audio, s, true); err != nil {
		return err
	}
	return s.enc.Stop()
}
