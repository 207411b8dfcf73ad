// Package media defines the packet and stream types shared by the source,
// segment writer, recorder and detection layers.
package media

import (
	"sync/atomic"
	"time"
)

// Kind identifies the role of an elementary stream.
type Kind string

// Stream kinds.
const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// StreamInfo describes one elementary stream of a source connection.
type StreamInfo struct {
	Index     int
	Kind      Kind
	Codec     string
	FmtpLine  string
	ClockRate uint32
}

// Packet is a single encoded media packet. The payload is shared between
// handles via reference counting: Clone returns an independent handle to the
// same payload, and the payload is only reclaimed once every handle has been
// released. Each handle must be released exactly once.
type Packet struct {
	Data        []byte
	StreamIndex int
	Keyframe    bool
	Timestamp   uint32 // RTP ticks
	Received    time.Time

	refs     *atomic.Int32
	released atomic.Bool
}

// NewPacket creates a packet owning a copy of data with a reference count of one.
func NewPacket(data []byte, streamIndex int) *Packet {
	payload := make([]byte, len(data))
	copy(payload, data)

	refs := &atomic.Int32{}
	refs.Store(1)

	return &Packet{
		Data:        payload,
		StreamIndex: streamIndex,
		Received:    time.Now(),
		refs:        refs,
	}
}

// Clone returns a new handle sharing this packet's payload. The clone has an
// independent lifetime and must be released by its consumer.
func (p *Packet) Clone() *Packet {
	if p.released.Load() {
		panic("media: clone of released packet")
	}
	p.refs.Add(1)

	clone := &Packet{
		Data:        p.Data,
		StreamIndex: p.StreamIndex,
		Keyframe:    p.Keyframe,
		Timestamp:   p.Timestamp,
		Received:    p.Received,
		refs:        p.refs,
	}
	return clone
}

// Release drops this handle's reference. Releasing the same handle twice is a
// programming error and panics.
func (p *Packet) Release() {
	if !p.released.CompareAndSwap(false, true) {
		panic("media: packet released twice")
	}
	if p.refs.Add(-1) == 0 {
		p.Data = nil
	}
}

// Refs returns the number of live handles sharing this payload.
func (p *Packet) Refs() int32 {
	return p.refs.Load()
}

// Released reports whether this handle has been released.
func (p *Packet) Released() bool {
	return p.released.Load()
}
