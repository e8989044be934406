package media

import (
	"reflect"
	"testing"
)

func TestBufferWrite(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []Samples
		frames []Samples
		left   int
	}{
		{
			name:   "underflow",
			size:   4,
			writes: []Samples{{1, 2}, {3}},
			left:   3,
		},
		{
			name:   "exact",
			size:   2,
			writes: []Samples{{1, 2}},
			frames: []Samples{{1, 2}},
		},
		{
			name:   "overflow",
			size:   3,
			writes: []Samples{{1, 2}, {3, 4, 5, 6, 7}},
			frames: []Samples{{1, 2, 3}, {4, 5, 6}},
			left:   1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := NewBuffer(test.size)
			var frames []Samples
			for _, w := range test.writes {
				n := b.Write(w, func(s Samples) { frames = append(frames, append(Samples(nil), s...)) })
				if n != len(w) {
					t.Errorf("wrote %v of %v", n, len(w))
				}
			}
			if !reflect.DeepEqual(frames, test.frames) {
				t.Errorf("frames %v, want %v", frames, test.frames)
			}
			if b.Len() != test.left {
				t.Errorf("%v samples left, want %v", b.Len(), test.left)
			}
		})
	}
}

func TestSamplesBytes(t *testing.T) {
	s := Samples{0, 1, -1, 32767, -32768}
	b := s.AppendBytes(nil)
	if len(b) != 10 || b[2] != 1 || b[4] != 0xff || b[5] != 0xff {
		t.Errorf("bad encoding %v", b)
	}
	if got := SamplesOf(nil, b); !reflect.DeepEqual(got, s) {
		t.Errorf("decoded %v, want %v", got, s)
	}
	if got := SamplesOf(nil, []byte{1, 0, 7}); !reflect.DeepEqual(got, Samples{1}) {
		t.Errorf("odd byte kept: %v", got)
	}
}

func TestResampleStretch(t *testing.T) {
	tests := []struct {
		name     string
		pcm      Samples
		channels int
		size     int
		want     Samples
	}{
		{name: "same", pcm: Samples{1, 2, 3}, channels: 1, size: 3, want: Samples{1, 2, 3}},
		{name: "up mono", pcm: Samples{1, 2}, channels: 1, size: 4, want: Samples{1, 1, 2, 2}},
		{name: "down mono", pcm: Samples{1, 2, 3, 4}, channels: 1, size: 2, want: Samples{1, 3}},
		{name: "up stereo", pcm: Samples{1, -1, 2, -2}, channels: 2, size: 8, want: Samples{1, -1, 1, -1, 2, -2, 2, -2}},
		{name: "odd size", pcm: Samples{1, -1}, channels: 2, size: 5, want: Samples{1, -1, 1, -1}},
		{name: "empty", pcm: nil, channels: 1, size: 2, want: Samples{0, 0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ResampleStretch(test.pcm, test.channels, test.size); !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

func TestResampledSize(t *testing.T) {
	tests := []struct {
		n, channels, from, to int
		want                  int
	}{
		{n: 1024, channels: 1, from: 48000, to: 16000, want: 341},
		{n: 960, channels: 2, from: 48000, to: 44100, want: 882},
		{n: 441, channels: 1, from: 44100, to: 48000, want: 480},
		{n: 100, channels: 1, from: 16000, to: 16000, want: 100},
	}
	for _, test := range tests {
		if got := ResampledSize(test.n, test.channels, test.from, test.to); got != test.want {
			t.Errorf("%v samples %v->%v: %v, want %v", test.n, test.from, test.to, got, test.want)
		}
	}
}
