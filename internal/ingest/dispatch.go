package ingest

import (
	"github.com/smazurov/nvrnode/internal/media"
	"github.com/smazurov/nvrnode/internal/metrics"
	"github.com/smazurov/nvrnode/internal/streams"
)

// dispatch routes one packet to the consumers for its elementary stream and
// releases the worker's handle exactly once. Consumers that need the packet
// beyond this call clone it.
func (w *Worker) dispatch(pkt *media.Packet, infos []media.StreamInfo, videoIdx, audioIdx int, spec streams.StreamSpec) {
	defer pkt.Release()

	switch {
	case pkt.StreamIndex == videoIdx:
		w.dispatchVideo(pkt, streamInfo(infos, videoIdx))
	case audioIdx != -1 && pkt.StreamIndex == audioIdx:
		w.dispatchAudio(pkt, streamInfo(infos, audioIdx), spec)
	default:
		// Packet from an elementary stream we do not consume.
	}
}

// streamInfo resolves a stream description by its declared index. Sources
// usually list streams in index order, but the Connection contract does not
// promise that an entry's Index matches its slice position.
func streamInfo(infos []media.StreamInfo, idx int) media.StreamInfo {
	for _, info := range infos {
		if info.Index == idx {
			return info
		}
	}
	return media.StreamInfo{Index: idx}
}

// dispatchVideo runs the live path first, then recording, then detection, so
// a slow recorder or detector never delays segment delivery.
func (w *Worker) dispatchVideo(pkt *media.Packet, info media.StreamInfo) {
	metrics.IncPacketsRead(w.streamName, "video")

	keyframe := pkt.Keyframe
	if keyframe {
		metrics.UpdateKeyframeTime(w.streamName)
	}

	if err := w.writer.WritePacket(pkt, info); err != nil {
		w.logger.Error("Failed to write packet to segment writer", "error", err)
		metrics.IncSegmentWriteError(w.streamName)
	} else if keyframe {
		// Flushing on every packet would defeat the buffered writer;
		// flushing on keyframes bounds live latency to one GOP.
		if err := w.writer.Flush(); err != nil {
			w.logger.Warn("Failed to flush segment writer", "error", err)
		}
	}

	// The pre-buffer sees every video packet so a recording started later
	// begins at the most recent keyframe, not mid-GOP.
	w.deps.Recorders.Offer(w.streamName, pkt, info)

	if rec := w.deps.Recorders.LookupByName(w.streamName); rec != nil {
		dup := pkt.Clone()
		if err := rec.WritePacket(dup, info); err != nil {
			if keyframe {
				w.logger.Error("Failed to write packet to recorder", "error", err)
			}
			metrics.IncRecorderWriteError(w.streamName)
		}
		dup.Release()
	}

	if keyframe && w.deps.Detector != nil && w.deps.Detector.IsReaderActive(w.streamName) {
		w.maybeSubmitDetection(pkt, info)
	}
}

// dispatchAudio forwards audio to the recorder when both the stream config
// and the recorder want it. Audio never reaches the segment writer or the
// detection pool.
func (w *Worker) dispatchAudio(pkt *media.Packet, info media.StreamInfo, spec streams.StreamSpec) {
	metrics.IncPacketsRead(w.streamName, "audio")

	if !spec.RecordAudio {
		return
	}
	rec := w.deps.Recorders.LookupByName(w.streamName)
	if rec == nil || !rec.HasAudio() {
		return
	}

	dup := pkt.Clone()
	if err := rec.WritePacket(dup, info); err != nil {
		// Audio gaps are tolerable; cap the log noise to one line per
		// interval instead of one per failed packet.
		now := w.deps.Clock()
		if now.Sub(w.lastAudioErrLog) >= audioErrorLogInterval {
			w.logger.Error("Failed to write audio packet to recorder", "error", err)
			w.lastAudioErrLog = now
		}
		metrics.IncRecorderWriteError(w.streamName)
	}
	dup.Release()
}
