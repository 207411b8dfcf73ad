// Package record implements container-file recording: a per-stream recorder,
// the registry that owns active recorders, and the pre-buffer that keeps
// recent packets so recordings include context from before their start.
package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/nvrnode/internal/media"
)

// ErrRecorderClosed is returned by writes after Close.
var ErrRecorderClosed = errors.New("record: recorder closed")

// Recorder writes packets of one stream to a recording file. WritePacket and
// Close are safe to call from different goroutines; the worker writes while
// the manager may detach concurrently.
type Recorder struct {
	streamName string
	path       string
	hasAudio   bool

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool

	packets   atomic.Int64
	writeErrs atomic.Int64
}

// NewRecorder creates a recording file for the stream under dir. The file
// name carries the stream name and start time.
func NewRecorder(dir, streamName string, hasAudio bool) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.nvr", streamName, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	return &Recorder{
		streamName: streamName,
		path:       path,
		hasAudio:   hasAudio,
		file:       f,
		buf:        bufio.NewWriter(f),
	}, nil
}

// WritePacket appends one packet to the recording. The caller keeps
// ownership of the packet handle.
func (r *Recorder) WritePacket(pkt *media.Packet, info media.StreamInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}

	var header [10]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(pkt.Data)))
	binary.BigEndian.PutUint16(header[4:6], uint16(info.Index))
	binary.BigEndian.PutUint32(header[6:10], pkt.Timestamp)

	if _, err := r.buf.Write(header[:]); err != nil {
		r.writeErrs.Add(1)
		return fmt.Errorf("write recording record: %w", err)
	}
	if _, err := r.buf.Write(pkt.Data); err != nil {
		r.writeErrs.Add(1)
		return fmt.Errorf("write recording record: %w", err)
	}

	r.packets.Add(1)
	return nil
}

// HasAudio reports whether this recording accepts audio packets.
func (r *Recorder) HasAudio() bool { return r.hasAudio }

// StreamName returns the stream this recorder belongs to.
func (r *Recorder) StreamName() string { return r.streamName }

// Path returns the recording file path.
func (r *Recorder) Path() string { return r.path }

// PacketCount returns the number of packets written so far.
func (r *Recorder) PacketCount() int64 { return r.packets.Load() }

// WriteErrors returns the number of failed writes.
func (r *Recorder) WriteErrors() int64 { return r.writeErrs.Load() }

// Close flushes and closes the recording file. Close is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	flushErr := r.buf.Flush()
	closeErr := r.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush recording: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close recording: %w", closeErr)
	}
	return nil
}
