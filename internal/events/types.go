package events

// Event type constants for kelindar/event.
const (
	TypeStreamConnected uint32 = iota + 1
	TypeStreamDisconnected
	TypeStreamReconnecting
	TypeRecordingStarted
	TypeRecordingStopped
	TypeIngestStopped
	TypeDetectionSample
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamConnectedEvent fires when a worker opens its source and finds the
// video stream.
type StreamConnectedEvent struct {
	Stream    string `json:"stream"`
	URL       string `json:"url"`
	HasAudio  bool   `json:"has_audio"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StreamConnectedEvent.
func (e StreamConnectedEvent) Type() uint32 { return TypeStreamConnected }

// StreamDisconnectedEvent fires when a source read fails recoverably.
type StreamDisconnectedEvent struct {
	Stream    string `json:"stream"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StreamDisconnectedEvent.
func (e StreamDisconnectedEvent) Type() uint32 { return TypeStreamDisconnected }

// StreamReconnectingEvent fires for each reconnect attempt.
type StreamReconnectingEvent struct {
	Stream    string `json:"stream"`
	Attempt   int64  `json:"attempt"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StreamReconnectingEvent.
func (e StreamReconnectingEvent) Type() uint32 { return TypeStreamReconnecting }

// RecordingStartedEvent fires when a recorder is attached to a stream.
type RecordingStartedEvent struct {
	Stream    string `json:"stream"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingStoppedEvent fires when a recorder is detached.
type RecordingStoppedEvent struct {
	Stream    string `json:"stream"`
	Path      string `json:"path"`
	Packets   int64  `json:"packets"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for RecordingStoppedEvent.
func (e RecordingStoppedEvent) Type() uint32 { return TypeRecordingStopped }

// DetectionSampleEvent fires when a sampled keyframe has been handed to the
// external inference consumer.
type DetectionSampleEvent struct {
	Stream    string `json:"stream"`
	Size      int    `json:"size"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for DetectionSampleEvent.
func (e DetectionSampleEvent) Type() uint32 { return TypeDetectionSample }

// IngestStoppedEvent fires when a worker's loop exits, fatal or not.
type IngestStoppedEvent struct {
	Stream    string `json:"stream"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for IngestStoppedEvent.
func (e IngestStoppedEvent) Type() uint32 { return TypeIngestStopped }
