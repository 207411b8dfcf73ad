// Package source abstracts the network media source a stream worker reads
// from. A Connection yields encoded packets in arrival order; read failures
// are classified as recoverable (the worker reconnects) or fatal (the worker
// exits).
package source

import (
	"context"
	"errors"

	"github.com/smazurov/nvrnode/internal/media"
)

// Recoverable read errors. Anything else returned by ReadPacket is fatal to
// the stream worker.
var (
	ErrEndOfStream            = errors.New("end of stream")
	ErrTemporarilyUnavailable = errors.New("source temporarily unavailable")
)

// IsRecoverable reports whether a read error should trigger a reconnect
// instead of terminating the worker.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrEndOfStream) || errors.Is(err, ErrTemporarilyUnavailable)
}

// Connection is an open demuxing session with a media source.
type Connection interface {
	// ReadPacket blocks until the next packet arrives or the connection
	// fails. The caller owns the returned packet and must release it.
	ReadPacket() (*media.Packet, error)

	// Streams describes the elementary streams declared by the source.
	Streams() []media.StreamInfo

	Close() error
}

// Opener opens connections to media sources.
type Opener interface {
	Open(ctx context.Context, url, protocol string) (Connection, error)
}

// VideoStreamIndex returns the index of the first video stream, or -1.
func VideoStreamIndex(infos []media.StreamInfo) int {
	return firstOfKind(infos, media.KindVideo)
}

// AudioStreamIndex returns the index of the first audio stream, or -1.
func AudioStreamIndex(infos []media.StreamInfo) int {
	return firstOfKind(infos, media.KindAudio)
}

func firstOfKind(infos []media.StreamInfo, kind media.Kind) int {
	for _, info := range infos {
		if info.Kind == kind {
			return info.Index
		}
	}
	return -1
}
