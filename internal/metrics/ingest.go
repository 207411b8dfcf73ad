// Package metrics provides Prometheus metrics for the ingest pipeline and
// the keyframe liveness tracker consumed by health checks.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nvrnode",
		Subsystem: "ingest",
		Name:      "packets_read_total",
		Help:      "Packets read from the source",
	}, []string{"stream", "kind"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nvrnode",
		Subsystem: "ingest",
		Name:      "reconnects_total",
		Help:      "Source reconnect attempts after recoverable failures",
	}, []string{"stream"})

	segmentWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nvrnode",
		Subsystem: "ingest",
		Name:      "segment_write_errors_total",
		Help:      "Failed writes to the segment writer",
	}, []string{"stream"})

	recorderWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nvrnode",
		Subsystem: "ingest",
		Name:      "recorder_write_errors_total",
		Help:      "Failed writes to the recorder",
	}, []string{"stream"})

	detectionSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nvrnode",
		Subsystem: "ingest",
		Name:      "detection_submissions_total",
		Help:      "Keyframes submitted to the detection pool",
	}, []string{"stream"})

	lastKeyframe = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nvrnode",
		Subsystem: "ingest",
		Name:      "last_keyframe_timestamp_seconds",
		Help:      "Unix time of the last keyframe seen",
	}, []string{"stream"})

	// Local cache so liveness checks and the API can read keyframe times
	// without scraping.
	keyframeCache   = make(map[string]time.Time)
	keyframeCacheMu sync.RWMutex
)

// IncPacketsRead counts one packet read from the source.
func IncPacketsRead(stream, kind string) {
	packetsRead.WithLabelValues(stream, kind).Inc()
}

// IncReconnects counts one reconnect attempt.
func IncReconnects(stream string) {
	reconnects.WithLabelValues(stream).Inc()
}

// IncSegmentWriteError counts one failed segment write.
func IncSegmentWriteError(stream string) {
	segmentWriteErrors.WithLabelValues(stream).Inc()
}

// IncRecorderWriteError counts one failed recorder write.
func IncRecorderWriteError(stream string) {
	recorderWriteErrors.WithLabelValues(stream).Inc()
}

// IncDetectionSubmitted counts one detection submission.
func IncDetectionSubmitted(stream string) {
	detectionSubmissions.WithLabelValues(stream).Inc()
}

// UpdateKeyframeTime records that a keyframe was seen now. Workers call this
// on every video keyframe; liveness checks compare against it.
func UpdateKeyframeTime(stream string) {
	now := time.Now()
	lastKeyframe.WithLabelValues(stream).Set(float64(now.Unix()))

	keyframeCacheMu.Lock()
	keyframeCache[stream] = now
	keyframeCacheMu.Unlock()
}

// LastKeyframeTime returns when a keyframe was last seen for the stream; the
// zero time when none has been.
func LastKeyframeTime(stream string) time.Time {
	keyframeCacheMu.RLock()
	defer keyframeCacheMu.RUnlock()
	return keyframeCache[stream]
}

// DeleteStreamMetrics removes all series and cache entries for a stream.
func DeleteStreamMetrics(stream string) {
	packetsRead.DeletePartialMatch(prometheus.Labels{"stream": stream})
	reconnects.DeleteLabelValues(stream)
	segmentWriteErrors.DeleteLabelValues(stream)
	recorderWriteErrors.DeleteLabelValues(stream)
	detectionSubmissions.DeleteLabelValues(stream)
	lastKeyframe.DeleteLabelValues(stream)

	keyframeCacheMu.Lock()
	delete(keyframeCache, stream)
	keyframeCacheMu.Unlock()
}
