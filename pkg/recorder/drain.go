package recorder

import (
	"fmt"

	"github.com/grafika-go/camcorder/pkg/codec"
	"github.com/grafika-go/camcorder/pkg/media"
)

// drain moves encoder output into the sink. It returns when the
// encoder has nothing ready, or with final set, once end of stream
// has been written.
func drain(enc codec.Encoder, kind media.Kind, sink *Sink, final bool) error {
	timeout := DrainPoll
	if !final {
		timeout = 0
	}
	for {
		out, err := enc.Dequeue(timeout)
		if err != nil {
			return fmt.Errorf("%v dequeue: %w", kind, err)
		}
		switch out.Event {
		case codec.TryAgainLater:
			if !final {
				return nil
			}
		case codec.FormatChanged:
			if err := sink.addTrack(kind, enc.OutputFormat()); err != nil {
				return err
			}
		case codec.BufferAvailable:
			if err := sink.writeSample(kind, out.Data, out.Info); err != nil {
				return err
			}
			if out.Info.Flags.Has(codec.FlagEndOfStream) {
				if !final {
					sink.log.Warn().Msgf("%v end of stream before stop", kind)
				}
				return nil
			}
		}
	}
}
