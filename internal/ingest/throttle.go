package ingest

import (
	"github.com/smazurov/nvrnode/internal/media"
	"github.com/smazurov/nvrnode/internal/metrics"
)

// maybeSubmitDetection applies the detection throttle to a keyframe: at most
// one submission per configured interval, skipped entirely when a
// memory-constrained host has no spare pool capacity. Failed submissions do
// not advance the throttle clock, so the next keyframe retries.
func (w *Worker) maybeSubmitDetection(pkt *media.Packet, info media.StreamInfo) {
	det := w.deps.Detector
	now := w.deps.Clock()

	if last := det.LastSubmission(w.streamName); !last.IsZero() && now.Sub(last) < det.Interval(w.streamName) {
		return
	}

	// On constrained hosts a queued frame is a held frame; dropping is
	// cheaper than the memory it would pin.
	if det.MemoryConstrained() && det.Busy() {
		w.logger.Debug("Skipping detection, pool busy on memory-constrained host")
		return
	}

	if err := det.Submit(w.streamName, pkt, info); err != nil {
		w.logger.Debug("Detection submission dropped", "error", err)
		return
	}

	det.UpdateLastSubmission(w.streamName, now)
	metrics.IncDetectionSubmitted(w.streamName)
}
