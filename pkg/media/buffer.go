package media

import "encoding/binary"

// Samples are interleaved 16-bit PCM values.
type Samples []int16

// SamplesOf decodes little-endian PCM into dst, reusing its memory.
func SamplesOf(dst Samples, pcm []byte) Samples {
	dst = dst[:0]
	for i := 0; i+1 < len(pcm); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	return dst
}

// AppendBytes appends s to b as little-endian PCM.
func (s Samples) AppendBytes(b []byte) []byte {
	for _, v := range s {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

// Buffer cuts a stream of samples into frames of a fixed size.
// Not thread safe.
type Buffer struct {
	s  Samples
	wi int
}

func NewBuffer(numSamples int) *Buffer { return &Buffer{s: make(Samples, numSamples)} }

// Write copies s into the buffer and calls onFull every time a frame
// is complete. The frame passed to onFull is reused afterwards.
// Samples of an incomplete frame stay until the next Write.
func (b *Buffer) Write(s Samples, onFull func(Samples)) (r int) {
	for r < len(s) {
		w := copy(b.s[b.wi:], s[r:])
		r += w
		b.wi += w
		if b.wi == len(b.s) {
			b.wi = 0
			if onFull != nil {
				onFull(b.s)
			}
		}
	}
	return
}

// Len is the number of samples waiting for a full frame.
func (b *Buffer) Len() int { return b.wi }
