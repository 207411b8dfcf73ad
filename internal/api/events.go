package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerEventRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "recent-events",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Recent events",
		Description: "Return the most recent stream lifecycle events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *EventsInput) (*EventsResponse, error) {
		resp := &EventsResponse{}
		resp.Body.Events = []EventRecord{}

		if s.opts.Events == nil {
			return resp, nil
		}

		for _, rec := range s.opts.Events.ReadRecent(input.Limit) {
			resp.Body.Events = append(resp.Body.Events, EventRecord{
				Kind:      rec.Kind,
				Timestamp: rec.Received.UTC().Format(time.RFC3339Nano),
				Data:      rec.Event,
			})
		}
		return resp, nil
	})
}
