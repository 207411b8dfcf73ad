package api

import (
	"github.com/smazurov/nvrnode/internal/streams"
	"github.com/smazurov/nvrnode/internal/version"
)

// HealthData is the health check payload.
type HealthData struct {
	Status string `json:"status" example:"ok" doc:"Service status"`
}

// HealthResponse wraps HealthData for huma.
type HealthResponse struct {
	Body HealthData
}

// VersionResponse wraps build metadata for huma.
type VersionResponse struct {
	Body version.Info
}

// StreamStatus is the runtime view of one stream.
type StreamStatus struct {
	Name             string `json:"name" doc:"Stream name"`
	URL              string `json:"url" doc:"Source URL"`
	Enabled          bool   `json:"enabled" doc:"Whether a worker should run"`
	Phase            string `json:"phase" doc:"Worker lifecycle phase"`
	Running          bool   `json:"running" doc:"Whether the worker is live"`
	Recording        bool   `json:"recording" doc:"Whether a recorder is attached"`
	RecordingPath    string `json:"recording_path,omitempty" doc:"Active recording file"`
	RecordedPackets  int64  `json:"recorded_packets,omitempty" doc:"Packets written to the active recording"`
	DetectionEnabled bool   `json:"detection_enabled" doc:"Whether detection sampling is on"`
	LastKeyframe     string `json:"last_keyframe,omitempty" doc:"RFC3339 time of the last keyframe"`
}

// StreamListResponse is the list-streams payload.
type StreamListResponse struct {
	Body struct {
		Streams []StreamStatus `json:"streams"`
	}
}

// StreamStatusResponse is the single-stream payload.
type StreamStatusResponse struct {
	Body StreamStatus
}

// StreamNameInput captures the path parameter shared by stream operations.
type StreamNameInput struct {
	Name string `path:"name" doc:"Stream name"`
}

// RecordingToggleInput toggles recording for one stream.
type RecordingToggleInput struct {
	Name string `path:"name" doc:"Stream name"`
	Body struct {
		Enabled bool `json:"enabled" doc:"Desired recording state"`
	}
}

// ActionResponse reports the result of a state-changing operation.
type ActionResponse struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

// EventsInput bounds the recent-events query.
type EventsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Maximum events to return"`
}

// EventRecord is one recent lifecycle event.
type EventRecord struct {
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// EventsResponse is the recent-events payload.
type EventsResponse struct {
	Body struct {
		Events []EventRecord `json:"events"`
	}
}

// LogsInput bounds the recent-logs query.
type LogsInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum entries to return"`
}

// LogEntry is one recent log line.
type LogEntry struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogsResponse is the recent-logs payload.
type LogsResponse struct {
	Body struct {
		Entries []LogEntry `json:"entries"`
	}
}

func statusFromSpec(spec streams.StreamSpec) StreamStatus {
	return StreamStatus{
		Name:             spec.Name,
		URL:              spec.URL,
		Enabled:          spec.Enabled,
		DetectionEnabled: spec.DetectionEnabled,
	}
}
