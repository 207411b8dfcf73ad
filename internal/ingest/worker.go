// Package ingest implements the per-stream ingest-and-dispatch loop: one
// worker per active stream pulls packets from the network source and fans
// them out to the segment writer, the recorder and the detection pool,
// reconnecting in place on transient source failures.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smazurov/nvrnode/internal/events"
	"github.com/smazurov/nvrnode/internal/media"
	"github.com/smazurov/nvrnode/internal/metrics"
	"github.com/smazurov/nvrnode/internal/shutdown"
	"github.com/smazurov/nvrnode/internal/source"
	"github.com/smazurov/nvrnode/internal/streams"
)

const (
	// reconnectDelay is the fixed pause before each reconnect attempt.
	// Deliberately no backoff growth and no retry ceiling: a camera is
	// expected to come back eventually, or the stream is stopped
	// externally.
	reconnectDelay = time.Second

	// audioErrorLogInterval rate-limits audio write error logging.
	audioErrorLogInterval = 10 * time.Second

	// shutdownPriority is the lowest teardown priority: ingest workers
	// stop after the components they feed.
	shutdownPriority = 60
)

var errNoVideoStream = errors.New("ingest: no video stream found")

// SegmentWriter receives the live path packets. Implemented by hls.Writer.
type SegmentWriter interface {
	WritePacket(pkt *media.Packet, info media.StreamInfo) error
	// Flush forces buffered output to become visible. Called on keyframes.
	Flush() error
	Close() error
}

// WriterFactory creates the segment writer during worker startup.
type WriterFactory func(outputDir, streamName string, segmentDuration time.Duration) (SegmentWriter, error)

// Recorder receives duplicated packets for container-file recording.
type Recorder interface {
	WritePacket(pkt *media.Packet, info media.StreamInfo) error
	HasAudio() bool
}

// RecorderRegistry resolves the active recorder per packet and accepts
// pre-buffer offers. Lookup may return nil when recording is inactive.
type RecorderRegistry interface {
	LookupByName(streamName string) Recorder
	Offer(streamName string, pkt *media.Packet, info media.StreamInfo)
}

// Detector is the detection pipeline's throttle and submission surface.
type Detector interface {
	IsReaderActive(streamName string) bool
	Interval(streamName string) time.Duration
	LastSubmission(streamName string) time.Time
	UpdateLastSubmission(streamName string, t time.Time)
	MemoryConstrained() bool
	Busy() bool
	Submit(streamName string, pkt *media.Packet, info media.StreamInfo) error
}

// StateResolver resolves runtime state and configuration for a stream.
// Implemented by streams.Registry.
type StateResolver interface {
	GetByName(name string) *streams.State
	Config(name string) (streams.StreamSpec, error)
}

// Config is the immutable per-worker configuration.
type Config struct {
	StreamName string
	OutputDir  string
}

// Deps are the worker's collaborators, passed in explicitly rather than
// reached for as globals.
type Deps struct {
	Source    source.Opener
	NewWriter WriterFactory
	States    StateResolver
	Recorders RecorderRegistry
	Detector  Detector              // nil disables detection
	Coord     *shutdown.Coordinator // nil skips registration
	Bus       *events.Bus           // nil skips event publishing
	Logger    *slog.Logger

	// Clock and Sleep are swappable for tests.
	Clock func() time.Time
	Sleep func(d time.Duration)
}

// Worker runs the ingest loop for one stream on its own goroutine. The
// running flag is the only field written from outside that goroutine.
type Worker struct {
	cfg  Config
	deps Deps

	// streamName is copied at construction to decouple the worker from
	// later config mutation.
	streamName string

	running atomic.Bool
	writer  SegmentWriter
	done    chan struct{}
	logger  *slog.Logger

	lastAudioErrLog time.Time
	reconnects      int64
}

// NewWorker creates a worker. Call Start to launch the loop.
func NewWorker(cfg Config, deps Deps) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}

	return &Worker{
		cfg:        cfg,
		deps:       deps,
		streamName: cfg.StreamName,
		done:       make(chan struct{}),
		logger:     deps.Logger.With("stream", cfg.StreamName),
	}
}

// Start launches the worker goroutine. A worker runs at most once.
func (w *Worker) Start() {
	w.running.Store(true)
	go w.run()
}

// Stop requests a cooperative stop. The loop observes the flag between
// iterations and before each blocking read; an in-flight read is never
// interrupted.
func (w *Worker) Stop() {
	w.running.Store(false)
}

// Running reports whether the loop is still marked running.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Done is closed once the worker has fully exited and released its
// resources.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// run is the worker lifecycle: acquire everything, loop, tear down in
// reverse order.
func (w *Worker) run() {
	defer close(w.done)
	defer w.running.Store(false)

	logger := w.logger
	logger.Info("Starting ingest worker")

	state := w.deps.States.GetByName(w.streamName)
	if state == nil {
		logger.Error("Could not find stream state")
		return
	}

	if !w.running.Load() {
		logger.Warn("Ingest worker started but already marked as not running")
		state.SetPhase(streams.PhaseStopped)
		return
	}

	spec, err := w.deps.States.Config(w.streamName)
	if err != nil {
		logger.Error("Failed to get stream config", "error", err)
		state.SetPhase(streams.PhaseStopped)
		return
	}

	var (
		conn        source.Connection
		componentID = -1
		stopReason  = "stopped"
	)
	// Teardown in reverse acquisition order: source first, then the
	// writer, then the coordinator report.
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
		w.closeWriter()
		if componentID >= 0 {
			w.deps.Coord.ReportState(componentID, shutdown.StateStopped)
		}
		state.SetPhase(streams.PhaseStopped)
		w.publish(events.IngestStoppedEvent{
			Stream:    w.streamName,
			Reason:    stopReason,
			Timestamp: w.deps.Clock().UTC().Format(time.RFC3339),
		})
		logger.Info("Ingest worker exited", "reason", stopReason)
	}()

	writer, err := w.deps.NewWriter(w.cfg.OutputDir, w.streamName, spec.SegmentDuration())
	if err != nil {
		logger.Error("Failed to create segment writer", "error", err)
		stopReason = "startup failure"
		return
	}
	w.writer = writer

	if !w.running.Load() {
		logger.Info("Ingest worker stopping after segment writer creation")
		return
	}

	conn, infos, videoIdx, audioIdx, err := w.connect(spec)
	if err != nil {
		// Startup connect failures are fatal, including a source with
		// no video stream: that is a configuration error, not a
		// transient fault.
		logger.Error("Could not open input stream", "url", spec.URL, "error", err)
		stopReason = "startup failure"
		return
	}
	if audioIdx != -1 {
		logger.Info("Found audio stream", "audio_index", audioIdx)
	}

	if w.deps.Coord != nil {
		componentID = w.deps.Coord.Register("ingest_"+w.streamName, shutdown.KindIngest, shutdownPriority)
		if componentID >= 0 {
			logger.Info("Registered with shutdown coordinator", "id", componentID)
		} else {
			logger.Warn("Shutdown coordinator registration failed")
		}
	}

	state.SetPhase(streams.PhaseRunning)
	w.publish(events.StreamConnectedEvent{
		Stream:    w.streamName,
		URL:       spec.URL,
		HasAudio:  audioIdx != -1,
		Timestamp: w.deps.Clock().UTC().Format(time.RFC3339),
	})
	logger.Info("Ingest loop running", "video_index", videoIdx, "audio_index", audioIdx)

	for w.running.Load() {
		if w.deps.Coord != nil && w.deps.Coord.Initiated() {
			logger.Info("Ingest worker stopping due to system shutdown")
			stopReason = "system shutdown"
			w.running.Store(false)
			break
		}
		if state.IsStopping() {
			logger.Info("Ingest worker stopping due to stream state stopping")
			stopReason = "stream stopping"
			w.running.Store(false)
			break
		}
		if !state.CallbacksEnabled() {
			logger.Info("Ingest worker stopping due to callbacks disabled")
			stopReason = "callbacks disabled"
			w.running.Store(false)
			break
		}

		if conn == nil {
			w.deps.Sleep(reconnectDelay)
			if !w.running.Load() {
				break
			}

			newConn, newInfos, newVideoIdx, newAudioIdx, connectErr := w.connect(spec)
			if connectErr != nil {
				logger.Error("Could not reconnect to input stream", "error", connectErr)
				continue // keep trying
			}
			conn, infos, videoIdx, audioIdx = newConn, newInfos, newVideoIdx, newAudioIdx
			logger.Info("Reconnected to input stream", "video_index", videoIdx)
		}

		// Re-check immediately before the potentially blocking read so
		// a stop requested during dispatch never issues another read.
		if !w.running.Load() {
			logger.Debug("Stop detected before read")
			break
		}

		pkt, readErr := conn.ReadPacket()
		if readErr != nil {
			if source.IsRecoverable(readErr) {
				logger.Warn("Stream disconnected, attempting to reconnect", "error", readErr)
				_ = conn.Close()
				conn = nil
				w.reconnects++
				metrics.IncReconnects(w.streamName)
				w.publish(events.StreamReconnectingEvent{
					Stream:    w.streamName,
					Attempt:   w.reconnects,
					Timestamp: w.deps.Clock().UTC().Format(time.RFC3339),
				})
				continue
			}
			logger.Error("Error reading packet", "error", readErr)
			stopReason = "fatal read error"
			break
		}

		w.dispatch(pkt, infos, videoIdx, audioIdx, spec)
	}
}

// connect opens the source and locates the video and audio stream indices.
// A source without video is closed and rejected.
func (w *Worker) connect(spec streams.StreamSpec) (source.Connection, []media.StreamInfo, int, int, error) {
	conn, err := w.deps.Source.Open(context.Background(), spec.URL, spec.Protocol)
	if err != nil {
		return nil, nil, -1, -1, err
	}

	infos := conn.Streams()
	videoIdx := source.VideoStreamIndex(infos)
	if videoIdx == -1 {
		_ = conn.Close()
		return nil, nil, -1, -1, errNoVideoStream
	}
	audioIdx := source.AudioStreamIndex(infos)

	return conn, infos, videoIdx, audioIdx, nil
}

// closeWriter clears the writer handle before closing it, so a second
// teardown observes nothing to close instead of racing on the same handle.
func (w *Worker) closeWriter() {
	writer := w.writer
	w.writer = nil
	if writer != nil {
		_ = writer.Close()
	}
}

func (w *Worker) publish(ev events.Event) {
	if w.deps.Bus != nil {
		w.deps.Bus.Publish(ev)
	}
}
