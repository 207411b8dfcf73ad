// Package streams holds the stream configuration model, its TOML store and
// the runtime state registry that ingest workers poll.
package streams

import "time"

// Default values applied when a spec leaves them unset.
const (
	DefaultSegmentDuration   = 500 * time.Millisecond
	DefaultDetectionInterval = 10 * time.Second
)

// StreamSpec is the persisted configuration of one camera stream.
type StreamSpec struct {
	// Name is the unique identifier for this stream. It becomes the
	// directory name for segments and recordings.
	Name string `toml:"name" json:"name"`

	// URL is the source address, e.g. rtsp://cam.local/stream
	URL string `toml:"url" json:"url"`

	// Protocol selects the source transport (currently "tcp")
	Protocol string `toml:"protocol" json:"protocol"`

	// Enabled controls whether a worker runs for this stream
	Enabled bool `toml:"enabled" json:"enabled"`

	// Record enables container-file recording
	Record bool `toml:"record" json:"record"`

	// RecordAudio forwards audio packets to the recorder when it
	// supports them
	RecordAudio bool `toml:"record_audio" json:"record_audio"`

	// SegmentDurationMS is the target segment length in milliseconds.
	// Zero or negative falls back to DefaultSegmentDuration.
	SegmentDurationMS int `toml:"segment_duration_ms" json:"segment_duration_ms"`

	// DetectionEnabled marks the stream for object detection sampling
	DetectionEnabled bool `toml:"detection_enabled" json:"detection_enabled"`

	// DetectionIntervalSec is the minimum spacing between detection
	// submissions in seconds. Zero falls back to DefaultDetectionInterval.
	DetectionIntervalSec int `toml:"detection_interval_sec" json:"detection_interval_sec"`
}

// SegmentDuration returns the configured segment length with the default
// applied.
func (s StreamSpec) SegmentDuration() time.Duration {
	if s.SegmentDurationMS <= 0 {
		return DefaultSegmentDuration
	}
	return time.Duration(s.SegmentDurationMS) * time.Millisecond
}

// DetectionInterval returns the configured detection spacing with the
// default applied.
func (s StreamSpec) DetectionInterval() time.Duration {
	if s.DetectionIntervalSec <= 0 {
		return DefaultDetectionInterval
	}
	return time.Duration(s.DetectionIntervalSec) * time.Second
}
