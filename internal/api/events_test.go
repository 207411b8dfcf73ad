package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/smazurov/nvrnode/internal/events"
)

func TestRecentEventsEndpoint(t *testing.T) {
	bus := events.New()
	recent := events.NewRecent(bus, 16)
	defer recent.Close()

	srv := testServer(t, &Options{Events: recent})

	bus.Publish(events.StreamConnectedEvent{
		Stream:    "cam1",
		URL:       "rtsp://cam.local/1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	bus.Publish(events.IngestStoppedEvent{Stream: "cam1", Reason: "stopped"})

	// Bus delivery is asynchronous; poll until both events surface.
	var body struct {
		Events []EventRecord `json:"events"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/events")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		body.Events = nil
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			t.Fatal(err)
		}
		resp.Body.Close()
		if len(body.Events) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(body.Events) != 2 {
		t.Fatalf("events = %d, want 2: %+v", len(body.Events), body.Events)
	}
	kinds := map[string]bool{}
	for _, rec := range body.Events {
		kinds[rec.Kind] = true
		if rec.Timestamp == "" {
			t.Errorf("event %q has empty timestamp", rec.Kind)
		}
	}
	if !kinds["stream-connected"] || !kinds["ingest-stopped"] {
		t.Errorf("kinds = %v, want stream-connected and ingest-stopped", kinds)
	}
}

func TestRecentEventsWithoutRecorder(t *testing.T) {
	srv := testServer(t, &Options{})

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Events []EventRecord `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Events) != 0 {
		t.Errorf("events = %d, want 0", len(body.Events))
	}
}
