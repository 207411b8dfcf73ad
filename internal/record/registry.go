package record

import (
	"log/slog"
	"sync"

	"github.com/smazurov/nvrnode/internal/media"
)

// Registry owns the active recorder per stream. Workers look recorders up
// per packet; the manager attaches and detaches them as recording is toggled.
type Registry struct {
	mu        sync.RWMutex
	recorders map[string]*Recorder
	prebuffer *PreBuffer
	logger    *slog.Logger
}

// NewRegistry creates a recorder registry. The pre-buffer may be nil when
// pre-recording context is not wanted.
func NewRegistry(prebuffer *PreBuffer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		recorders: make(map[string]*Recorder),
		prebuffer: prebuffer,
		logger:    logger,
	}
}

// LookupByName returns the active recorder for a stream, or nil when
// recording is not in progress.
func (r *Registry) LookupByName(streamName string) *Recorder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recorders[streamName]
}

// Attach makes rec the active recorder for its stream and replays the
// pre-buffered history into it, so the recording includes context from
// before the attach. A previously active recorder is closed first.
func (r *Registry) Attach(rec *Recorder) {
	name := rec.StreamName()

	r.mu.Lock()
	prev := r.recorders[name]
	r.recorders[name] = rec
	r.mu.Unlock()

	if prev != nil {
		r.logger.Warn("Replacing active recorder", "stream", name)
		_ = prev.Close()
	}

	if r.prebuffer != nil {
		buffered := r.prebuffer.Drain(name)
		for _, entry := range buffered {
			if err := rec.WritePacket(entry.Packet, entry.Info); err != nil {
				r.logger.Warn("Failed to replay pre-buffered packet", "stream", name, "error", err)
			}
			entry.Packet.Release()
		}
		if len(buffered) > 0 {
			r.logger.Info("Replayed pre-buffer into recording",
				"stream", name, "packets", len(buffered))
		}
	}

	r.logger.Info("Recording started", "stream", name, "path", rec.Path())
}

// Detach removes and closes the active recorder for a stream. Returns the
// detached recorder, or nil when none was active.
func (r *Registry) Detach(streamName string) *Recorder {
	r.mu.Lock()
	rec := r.recorders[streamName]
	delete(r.recorders, streamName)
	r.mu.Unlock()

	if rec == nil {
		return nil
	}
	if err := rec.Close(); err != nil {
		r.logger.Warn("Error closing recording", "stream", streamName, "error", err)
	}
	r.logger.Info("Recording stopped",
		"stream", streamName, "path", rec.Path(), "packets", rec.PacketCount())
	return rec
}

// DetachAll closes every active recorder.
func (r *Registry) DetachAll() {
	r.mu.Lock()
	recorders := r.recorders
	r.recorders = make(map[string]*Recorder)
	r.mu.Unlock()

	for name, rec := range recorders {
		if err := rec.Close(); err != nil {
			r.logger.Warn("Error closing recording", "stream", name, "error", err)
		}
	}
}

// Offer forwards a packet to the pre-buffer. Best effort; a nil pre-buffer
// drops the offer.
func (r *Registry) Offer(streamName string, pkt *media.Packet, info media.StreamInfo) {
	if r.prebuffer != nil {
		r.prebuffer.Offer(streamName, pkt, info)
	}
}
