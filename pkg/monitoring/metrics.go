package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camcorder"

var (
	FramesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_rendered_total",
		Help:      "Camera frames drawn by the render thread.",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because a pipeline queue was full.",
	}, []string{"pipeline"})
	SamplesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_written_total",
		Help:      "Access units written into the container.",
	}, []string{"track"})
	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_written_total",
		Help:      "Payload bytes written into the container.",
	}, []string{"track"})
	StillsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stills_saved_total",
		Help:      "Still images written to disk.",
	})
)
