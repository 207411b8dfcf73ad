// Package hls writes the segmented streaming output for one stream: a
// rolling set of segment files plus a live playlist. Segment boundaries are
// only taken on keyframes so every segment starts decodable.
package hls

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/nvrnode/internal/media"
)

const (
	// playlistWindow is the number of segments kept in the live playlist.
	playlistWindow = 6

	segmentFilePattern = "segment_%06d.nvs"
	playlistName       = "playlist.m3u8"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("hls: writer closed")

// EnsureDir creates the per-stream output directory and verifies it is
// writable.
func EnsureDir(outputDir, streamName string) (string, error) {
	dir := filepath.Join(outputDir, streamName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create segment directory: %w", err)
	}

	probe := filepath.Join(dir, ".writable")
	f, err := os.Create(probe)
	if err != nil {
		return "", fmt.Errorf("segment directory not writable: %w", err)
	}
	_ = f.Close()
	_ = os.Remove(probe)

	return dir, nil
}

// Writer produces segments and a playlist for one stream. It is owned and
// driven by a single worker goroutine; only creation and close happen
// elsewhere.
type Writer struct {
	dir        string
	streamName string
	segDur     time.Duration
	logger     *slog.Logger

	file     *os.File
	buf      *bufio.Writer
	segIndex int
	segStart time.Time
	segments []segment
	closed   bool

	now func() time.Time
}

// segment is one finished segment referenced by the playlist.
type segment struct {
	sequence int
	name     string
	duration time.Duration
}

// CreateWriter creates the output directory and an empty writer. The first
// segment file is opened lazily on the first packet.
func CreateWriter(outputDir, streamName string, segmentDuration time.Duration) (*Writer, error) {
	dir, err := EnsureDir(outputDir, streamName)
	if err != nil {
		return nil, err
	}

	if segmentDuration <= 0 {
		segmentDuration = 500 * time.Millisecond
	}

	w := &Writer{
		dir:        dir,
		streamName: streamName,
		segDur:     segmentDuration,
		logger:     slog.Default().With("stream", streamName),
		now:        time.Now,
	}

	if err := w.writePlaylist(false); err != nil {
		return nil, err
	}
	return w, nil
}

// WritePacket appends one packet to the current segment, rotating to a new
// segment first when the packet is a keyframe and the current segment has
// reached its target duration. Packets are stored as length-prefixed records
// with the stream index and RTP timestamp.
func (w *Writer) WritePacket(pkt *media.Packet, info media.StreamInfo) error {
	if w.closed {
		return ErrWriterClosed
	}

	if w.file == nil {
		if err := w.openSegment(); err != nil {
			return err
		}
	} else if pkt.Keyframe && w.now().Sub(w.segStart) >= w.segDur {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	var header [10]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(pkt.Data)))
	binary.BigEndian.PutUint16(header[4:6], uint16(info.Index))
	binary.BigEndian.PutUint32(header[6:10], pkt.Timestamp)

	if _, err := w.buf.Write(header[:]); err != nil {
		return fmt.Errorf("write segment record: %w", err)
	}
	if _, err := w.buf.Write(pkt.Data); err != nil {
		return fmt.Errorf("write segment record: %w", err)
	}
	return nil
}

// Flush forces buffered segment data to the filesystem. The worker calls
// this on keyframes to bound delivery latency.
func (w *Writer) Flush() error {
	if w.closed || w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close finalizes the current segment, marks the playlist ended and closes
// the file. Further writes fail with ErrWriterClosed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.file != nil {
		if err := w.finishSegment(); err != nil {
			firstErr = err
		}
	}
	if err := w.writePlaylist(true); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Dir returns the directory the writer produces into.
func (w *Writer) Dir() string { return w.dir }

func (w *Writer) openSegment() error {
	name := fmt.Sprintf(segmentFilePattern, w.segIndex)
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}

	w.file = f
	w.buf = bufio.NewWriter(f)
	w.segStart = w.now()
	return nil
}

// rotate finishes the current segment, updates the playlist and opens the
// next segment file.
func (w *Writer) rotate() error {
	if err := w.finishSegment(); err != nil {
		return err
	}
	w.segIndex++
	if err := w.openSegment(); err != nil {
		return err
	}
	return w.writePlaylist(false)
}

func (w *Writer) finishSegment() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		w.file = nil
		w.buf = nil
		return fmt.Errorf("flush segment: %w", err)
	}
	err := w.file.Close()

	w.segments = append(w.segments, segment{
		sequence: w.segIndex,
		name:     fmt.Sprintf(segmentFilePattern, w.segIndex),
		duration: w.now().Sub(w.segStart),
	})
	w.pruneSegments()

	w.file = nil
	w.buf = nil
	if err != nil {
		return fmt.Errorf("close segment: %w", err)
	}
	return nil
}

// pruneSegments drops segments that fell out of the playlist window and
// removes their files.
func (w *Writer) pruneSegments() {
	for len(w.segments) > playlistWindow {
		old := w.segments[0]
		w.segments = w.segments[1:]
		if err := os.Remove(filepath.Join(w.dir, old.name)); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("Failed to remove expired segment", "segment", old.name, "error", err)
		}
	}
}

func (w *Writer) writePlaylist(ended bool) error {
	content := buildPlaylist(w.segments, w.segDur, ended)

	tmp := filepath.Join(w.dir, playlistName+".tmp")
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, playlistName)); err != nil {
		return fmt.Errorf("publish playlist: %w", err)
	}
	return nil
}
