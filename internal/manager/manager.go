// Package manager supervises the per-stream ingest workers: it starts one
// worker per enabled stream, reconciles the running set against configuration
// changes, and toggles recorders on demand.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/nvrnode/internal/config"
	"github.com/smazurov/nvrnode/internal/detect"
	"github.com/smazurov/nvrnode/internal/events"
	"github.com/smazurov/nvrnode/internal/hls"
	"github.com/smazurov/nvrnode/internal/ingest"
	"github.com/smazurov/nvrnode/internal/media"
	"github.com/smazurov/nvrnode/internal/metrics"
	"github.com/smazurov/nvrnode/internal/record"
	"github.com/smazurov/nvrnode/internal/shutdown"
	"github.com/smazurov/nvrnode/internal/source"
	"github.com/smazurov/nvrnode/internal/streams"
)

// Config holds the manager's directories and the path of the watched streams
// file.
type Config struct {
	SegmentDir   string
	RecordingDir string
	StreamsPath  string
}

// Deps are the manager's collaborators.
type Deps struct {
	Store     streams.Store
	States    *streams.Registry
	Recorders *record.Registry
	Detector  *detect.Service
	Coord     *shutdown.Coordinator
	Bus       *events.Bus
	Opener    source.Opener
	Logger    *slog.Logger
}

// Manager owns the worker set. All exported methods are safe for concurrent
// use.
type Manager struct {
	cfg  Config
	deps Deps

	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*ingest.Worker

	watcher *config.Watcher[map[string]streams.StreamSpec]
}

// New creates a manager. Call Start to launch workers for enabled streams.
func New(cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		workers: make(map[string]*ingest.Worker),
	}
}

// Start loads the stream configuration and launches a worker for every
// enabled stream.
func (m *Manager) Start() error {
	if err := m.deps.Store.Load(); err != nil {
		return fmt.Errorf("failed to load stream config: %w", err)
	}

	specs := m.deps.Store.GetAllStreams()
	m.logger.Info("Starting stream manager", "streams", len(specs))

	for name, spec := range specs {
		if !spec.Enabled {
			continue
		}
		if err := m.StartStream(name); err != nil {
			m.logger.Error("Failed to start stream", "stream", name, "error", err)
		}
	}
	return nil
}

// StartStream launches the ingest worker for a stream. Starting an already
// running stream is a no-op.
func (m *Manager) StartStream(name string) error {
	spec, err := m.deps.States.Config(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[name]; ok && w.Running() {
		return nil
	}

	m.deps.States.Create(name)
	m.applyDetection(spec)

	// Assigning a nil *detect.Service directly would make the interface
	// field non-nil and defeat the worker's nil-disables-detection check.
	var detector ingest.Detector
	if m.deps.Detector != nil {
		detector = m.deps.Detector
	}

	worker := ingest.NewWorker(
		ingest.Config{StreamName: name, OutputDir: m.cfg.SegmentDir},
		ingest.Deps{
			Source:    m.deps.Opener,
			NewWriter: newSegmentWriter,
			States:    m.deps.States,
			Recorders: recorderAdapter{m.deps.Recorders},
			Detector:  detector,
			Coord:     m.deps.Coord,
			Bus:       m.deps.Bus,
			Logger:    m.logger,
		},
	)
	m.workers[name] = worker
	worker.Start()

	m.logger.Info("Stream started", "stream", name, "url", spec.URL)

	if spec.Record {
		go m.startRecording(name, spec)
	}
	return nil
}

// StopStream requests a cooperative stop and waits for the worker to exit or
// the context to expire. Any active recorder is detached.
func (m *Manager) StopStream(ctx context.Context, name string) error {
	m.mu.Lock()
	worker := m.workers[name]
	delete(m.workers, name)
	m.mu.Unlock()

	if state := m.deps.States.GetByName(name); state != nil {
		state.SetPhase(streams.PhaseStopping)
	}
	m.stopRecording(name)
	if m.deps.Detector != nil {
		m.deps.Detector.Forget(name)
	}

	if worker == nil {
		return nil
	}
	worker.Stop()

	select {
	case <-worker.Done():
		metrics.DeleteStreamMetrics(name)
		m.logger.Info("Stream stopped", "stream", name)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stream %q did not stop: %w", name, ctx.Err())
	}
}

// SetRecording toggles recording for a stream and persists the choice.
func (m *Manager) SetRecording(name string, enabled bool) error {
	spec, err := m.deps.States.Config(name)
	if err != nil {
		return err
	}

	spec.Record = enabled
	m.deps.Store.SetStream(spec)
	if err := m.deps.Store.Save(); err != nil {
		m.logger.Warn("Failed to persist recording toggle", "stream", name, "error", err)
	}

	if enabled {
		return m.startRecording(name, spec)
	}
	m.stopRecording(name)
	return nil
}

// Running reports whether a stream currently has a live worker.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[name]
	return ok && w.Running()
}

// Done returns a channel closed when the stream's worker exits. A stream
// without a worker yields an already closed channel.
func (m *Manager) Done(name string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[name]; ok {
		return w.Done()
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Reconcile brings the running worker set in line with the given desired
// configuration: starts newly enabled streams, stops disabled or removed
// ones, and updates detection throttle settings in place.
func (m *Manager) Reconcile(specs map[string]streams.StreamSpec) {
	m.mu.Lock()
	current := make(map[string]bool, len(m.workers))
	for name, w := range m.workers {
		current[name] = w.Running()
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for name, spec := range specs {
		switch {
		case spec.Enabled && !current[name]:
			if err := m.StartStream(name); err != nil {
				m.logger.Error("Reconcile failed to start stream", "stream", name, "error", err)
			}
		case !spec.Enabled && current[name]:
			if err := m.StopStream(ctx, name); err != nil {
				m.logger.Warn("Reconcile failed to stop stream", "stream", name, "error", err)
			}
		case spec.Enabled && current[name]:
			m.applyDetection(spec)
			if !spec.Record {
				m.stopRecording(name)
			} else if m.deps.Recorders.LookupByName(name) == nil {
				if err := m.startRecording(name, spec); err != nil {
					m.logger.Warn("Reconcile failed to start recording", "stream", name, "error", err)
				}
			}
		}
	}

	// Streams no longer in the config get stopped and forgotten.
	for name := range current {
		if _, ok := specs[name]; !ok {
			if err := m.StopStream(ctx, name); err != nil {
				m.logger.Warn("Reconcile failed to stop removed stream", "stream", name, "error", err)
			}
			m.deps.States.Remove(name)
		}
	}
}

// WatchConfig starts watching the streams file; changes are reconciled after
// the watcher's debounce window.
func (m *Manager) WatchConfig() error {
	loader := func(path string) (map[string]streams.StreamSpec, error) {
		if err := m.deps.Store.Load(); err != nil {
			return nil, err
		}
		return m.deps.Store.GetAllStreams(), nil
	}

	m.watcher = config.NewConfigWatcher(m.cfg.StreamsPath, loader, m.logger)
	m.watcher.OnReload(func(specs map[string]streams.StreamSpec) {
		m.logger.Info("Stream config changed, reconciling", "streams", len(specs))
		m.Reconcile(specs)
	})
	return m.watcher.Start()
}

// StopAll stops the config watcher and every worker, waiting until they exit
// or the context expires. Recorders are detached last so final packets still
// land in the files.
func (m *Manager) StopAll(ctx context.Context) {
	if m.watcher != nil {
		_ = m.watcher.Stop()
	}

	m.mu.Lock()
	workers := make(map[string]*ingest.Worker, len(m.workers))
	for name, w := range m.workers {
		workers[name] = w
	}
	m.workers = make(map[string]*ingest.Worker)
	m.mu.Unlock()

	for name, w := range workers {
		if state := m.deps.States.GetByName(name); state != nil {
			state.SetPhase(streams.PhaseStopping)
		}
		w.Stop()
	}
	for name, w := range workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			m.logger.Warn("Worker did not stop in time", "stream", name)
		}
	}

	m.deps.Recorders.DetachAll()
	m.logger.Info("All streams stopped", "count", len(workers))
}

// startRecording creates and attaches a recorder for the stream.
func (m *Manager) startRecording(name string, spec streams.StreamSpec) error {
	dir := filepath.Join(m.cfg.RecordingDir, name)
	rec, err := record.NewRecorder(dir, name, spec.RecordAudio)
	if err != nil {
		m.logger.Error("Failed to create recorder", "stream", name, "error", err)
		return err
	}
	m.deps.Recorders.Attach(rec)

	if m.deps.Bus != nil {
		m.deps.Bus.Publish(events.RecordingStartedEvent{
			Stream:    name,
			Path:      rec.Path(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// stopRecording detaches the active recorder, if any.
func (m *Manager) stopRecording(name string) {
	rec := m.deps.Recorders.Detach(name)
	if rec == nil {
		return
	}
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(events.RecordingStoppedEvent{
			Stream:    name,
			Path:      rec.Path(),
			Packets:   rec.PacketCount(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// applyDetection pushes a spec's detection settings into the throttle state.
func (m *Manager) applyDetection(spec streams.StreamSpec) {
	if m.deps.Detector == nil {
		return
	}
	m.deps.Detector.SetReaderActive(spec.Name, spec.DetectionEnabled)
	m.deps.Detector.SetInterval(spec.Name, spec.DetectionInterval())
}

// newSegmentWriter adapts hls.CreateWriter to the worker's factory type.
func newSegmentWriter(outputDir, streamName string, segmentDuration time.Duration) (ingest.SegmentWriter, error) {
	w, err := hls.CreateWriter(outputDir, streamName, segmentDuration)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// recorderAdapter bridges record.Registry to the worker's interface without
// leaking a typed-nil recorder through the interface value.
type recorderAdapter struct {
	reg *record.Registry
}

func (a recorderAdapter) LookupByName(streamName string) ingest.Recorder {
	if rec := a.reg.LookupByName(streamName); rec != nil {
		return rec
	}
	return nil
}

func (a recorderAdapter) Offer(streamName string, pkt *media.Packet, info media.StreamInfo) {
	a.reg.Offer(streamName, pkt, info)
}
