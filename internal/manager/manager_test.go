package manager

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/nvrnode/internal/media"
	"github.com/smazurov/nvrnode/internal/record"
	"github.com/smazurov/nvrnode/internal/source"
	"github.com/smazurov/nvrnode/internal/streams"
)

type memStore struct {
	mu    sync.Mutex
	specs map[string]streams.StreamSpec
	saves int
}

func newMemStore(specs ...streams.StreamSpec) *memStore {
	s := &memStore{specs: make(map[string]streams.StreamSpec)}
	for _, spec := range specs {
		s.specs[spec.Name] = spec
	}
	return s
}

func (s *memStore) Load() error { return nil }

func (s *memStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *memStore) GetStream(name string) (streams.StreamSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[name]
	return spec, ok
}

func (s *memStore) GetAllStreams() map[string]streams.StreamSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]streams.StreamSpec, len(s.specs))
	for name, spec := range s.specs {
		out[name] = spec
	}
	return out
}

func (s *memStore) SetStream(spec streams.StreamSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Name] = spec
}

func (s *memStore) DeleteStream(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.specs[name]
	delete(s.specs, name)
	return ok
}

// tickingConn yields a keyframe packet every few milliseconds so workers
// iterate often enough to notice stop requests quickly.
type tickingConn struct{}

func (c *tickingConn) ReadPacket() (*media.Packet, error) {
	time.Sleep(5 * time.Millisecond)
	pkt := media.NewPacket([]byte{0x65, 0x01}, 0)
	pkt.Keyframe = true
	return pkt, nil
}

func (c *tickingConn) Streams() []media.StreamInfo {
	return []media.StreamInfo{{Index: 0, Kind: media.KindVideo, Codec: "H264"}}
}

func (c *tickingConn) Close() error { return nil }

type tickingOpener struct{}

func (o *tickingOpener) Open(ctx context.Context, url, protocol string) (source.Connection, error) {
	return &tickingConn{}, nil
}

func testManager(t *testing.T, store *memStore) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := t.TempDir()

	return New(
		Config{
			SegmentDir:   filepath.Join(base, "segments"),
			RecordingDir: filepath.Join(base, "recordings"),
			StreamsPath:  filepath.Join(base, "streams.toml"),
		},
		Deps{
			Store:     store,
			States:    streams.NewRegistry(store),
			Recorders: record.NewRegistry(record.NewPreBuffer(16), logger),
			Bus:       nil,
			Opener:    &tickingOpener{},
			Logger:    logger,
		},
	)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func enabledSpec(name string) streams.StreamSpec {
	return streams.StreamSpec{
		Name:     name,
		URL:      "rtsp://cam.local/" + name,
		Protocol: "tcp",
		Enabled:  true,
	}
}

func TestManagerStartsOnlyEnabledStreams(t *testing.T) {
	disabled := enabledSpec("cam2")
	disabled.Enabled = false
	store := newMemStore(enabledSpec("cam1"), disabled)
	m := testManager(t, store)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopAll(t, m)

	waitFor(t, "cam1 running", func() bool { return m.Running("cam1") })
	if m.Running("cam2") {
		t.Error("disabled stream cam2 is running")
	}
}

func TestManagerStopStream(t *testing.T) {
	store := newMemStore(enabledSpec("cam1"))
	m := testManager(t, store)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer stopAll(t, m)
	waitFor(t, "cam1 running", func() bool { return m.Running("cam1") })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.StopStream(ctx, "cam1"); err != nil {
		t.Fatalf("StopStream() error = %v", err)
	}

	if m.Running("cam1") {
		t.Error("cam1 still running after StopStream")
	}
	if state := m.deps.States.GetByName("cam1"); state != nil && state.Phase() != streams.PhaseStopped {
		t.Errorf("cam1 phase = %v, want stopped", state.Phase())
	}
}

func TestManagerRecordingToggle(t *testing.T) {
	store := newMemStore(enabledSpec("cam1"))
	m := testManager(t, store)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer stopAll(t, m)
	waitFor(t, "cam1 running", func() bool { return m.Running("cam1") })

	if err := m.SetRecording("cam1", true); err != nil {
		t.Fatalf("SetRecording(true) error = %v", err)
	}
	waitFor(t, "recorder attached", func() bool {
		return m.deps.Recorders.LookupByName("cam1") != nil
	})

	spec, _ := store.GetStream("cam1")
	if !spec.Record {
		t.Error("Record flag not persisted to store")
	}

	if err := m.SetRecording("cam1", false); err != nil {
		t.Fatalf("SetRecording(false) error = %v", err)
	}
	if m.deps.Recorders.LookupByName("cam1") != nil {
		t.Error("recorder still attached after disabling")
	}
}

func TestManagerReconcile(t *testing.T) {
	store := newMemStore(enabledSpec("cam1"))
	m := testManager(t, store)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer stopAll(t, m)
	waitFor(t, "cam1 running", func() bool { return m.Running("cam1") })

	// cam1 disabled, cam3 added and enabled.
	cam1 := enabledSpec("cam1")
	cam1.Enabled = false
	cam3 := enabledSpec("cam3")
	store.SetStream(cam1)
	store.SetStream(cam3)

	m.Reconcile(store.GetAllStreams())

	if m.Running("cam1") {
		t.Error("cam1 still running after being disabled")
	}
	waitFor(t, "cam3 running", func() bool { return m.Running("cam3") })
}

func TestManagerReconcileRemovesDeletedStreams(t *testing.T) {
	store := newMemStore(enabledSpec("cam1"))
	m := testManager(t, store)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer stopAll(t, m)
	waitFor(t, "cam1 running", func() bool { return m.Running("cam1") })

	store.DeleteStream("cam1")
	m.Reconcile(store.GetAllStreams())

	if m.Running("cam1") {
		t.Error("cam1 still running after removal from config")
	}
	if m.deps.States.GetByName("cam1") != nil {
		t.Error("cam1 state not removed")
	}
}

func stopAll(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.StopAll(ctx)
}
