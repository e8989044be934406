package media

// ResampleStretch stretches or squeezes interleaved samples of the given
// channel count into size samples by picking the nearest source frame.
// size is rounded down to whole frames.
func ResampleStretch(pcm Samples, channels, size int) Samples {
	if channels < 1 {
		channels = 1
	}
	in, out := len(pcm)/channels, size/channels
	audio := make(Samples, out*channels)
	if in == 0 {
		return audio
	}
	for i := 0; i < out; i++ {
		src := i * in / out
		copy(audio[i*channels:(i+1)*channels], pcm[src*channels:(src+1)*channels])
	}
	return audio
}

// ResampledSize is the number of samples n samples at rate from take at
// rate to, in whole frames of channels.
func ResampledSize(n, channels, from, to int) int {
	if channels < 1 {
		channels = 1
	}
	frames := (n/channels*to + from/2) / from
	return frames * channels
}
