package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/nvrnode/internal/metrics"
	"github.com/smazurov/nvrnode/internal/streams"
)

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List streams",
		Description: "List all configured streams with their runtime status",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*StreamListResponse, error) {
		specs := s.opts.Store.GetAllStreams()
		statuses := make([]StreamStatus, 0, len(specs))
		for _, spec := range specs {
			statuses = append(statuses, s.streamStatus(spec))
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

		resp := &StreamListResponse{}
		resp.Body.Streams = statuses
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}",
		Summary:     "Stream status",
		Description: "Get runtime status for one stream",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *StreamNameInput) (*StreamStatusResponse, error) {
		spec, ok := s.opts.Store.GetStream(input.Name)
		if !ok {
			return nil, huma.Error404NotFound("stream not found: " + input.Name)
		}
		return &StreamStatusResponse{Body: s.streamStatus(spec)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{name}/start",
		Summary:     "Start stream",
		Description: "Launch the ingest worker for a stream",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *StreamNameInput) (*ActionResponse, error) {
		if _, ok := s.opts.Store.GetStream(input.Name); !ok {
			return nil, huma.Error404NotFound("stream not found: " + input.Name)
		}
		if err := s.opts.Controller.StartStream(input.Name); err != nil {
			return nil, huma.Error500InternalServerError("failed to start stream", err)
		}
		resp := &ActionResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{name}/stop",
		Summary:     "Stop stream",
		Description: "Stop the ingest worker for a stream",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *StreamNameInput) (*ActionResponse, error) {
		if _, ok := s.opts.Store.GetStream(input.Name); !ok {
			return nil, huma.Error404NotFound("stream not found: " + input.Name)
		}
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.opts.Controller.StopStream(stopCtx, input.Name); err != nil {
			return nil, huma.Error500InternalServerError("failed to stop stream", err)
		}
		resp := &ActionResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-recording",
		Method:      http.MethodPost,
		Path:        "/api/streams/{name}/recording",
		Summary:     "Toggle recording",
		Description: "Enable or disable container-file recording for a stream",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *RecordingToggleInput) (*ActionResponse, error) {
		if _, ok := s.opts.Store.GetStream(input.Name); !ok {
			return nil, huma.Error404NotFound("stream not found: " + input.Name)
		}
		if err := s.opts.Controller.SetRecording(input.Name, input.Body.Enabled); err != nil {
			return nil, huma.Error500InternalServerError("failed to toggle recording", err)
		}
		resp := &ActionResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})
}

// streamStatus merges configuration, runtime state, recorder state and the
// keyframe tracker into one view.
func (s *Server) streamStatus(spec streams.StreamSpec) StreamStatus {
	status := statusFromSpec(spec)
	status.Running = s.opts.Controller.Running(spec.Name)

	if state := s.opts.States.GetByName(spec.Name); state != nil {
		status.Phase = state.Phase().String()
	} else {
		status.Phase = "stopped"
	}

	if rec := s.opts.Recorders.LookupByName(spec.Name); rec != nil {
		status.Recording = true
		status.RecordingPath = rec.Path()
		status.RecordedPackets = rec.PacketCount()
	}

	if last := metrics.LastKeyframeTime(spec.Name); !last.IsZero() {
		status.LastKeyframe = last.UTC().Format(time.RFC3339)
	}
	return status
}
