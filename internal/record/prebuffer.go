package record

import (
	"sync"

	"github.com/smazurov/nvrnode/internal/media"
)

// BufferedPacket is one pre-buffered packet with the stream info it was
// received under. The holder owns the packet handle.
type BufferedPacket struct {
	Packet *media.Packet
	Info   media.StreamInfo
}

// PreBuffer keeps a fixed-size ring of recent packets per stream so a
// recording started later still includes the moments before it. Offered
// packets are cloned; the ring owns its clones and releases evicted ones.
type PreBuffer struct {
	capacity int
	mu       sync.Mutex
	rings    map[string]*ring
}

// ring is a circular buffer of buffered packets, oldest first.
type ring struct {
	entries []BufferedPacket
	head    int
	size    int
}

// NewPreBuffer creates a pre-buffer holding up to capacity packets per
// stream.
func NewPreBuffer(capacity int) *PreBuffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &PreBuffer{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Offer clones the packet into the stream's ring, evicting and releasing the
// oldest entry when full.
func (b *PreBuffer) Offer(streamName string, pkt *media.Packet, info media.StreamInfo) {
	clone := pkt.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.rings[streamName]
	if r == nil {
		r = &ring{entries: make([]BufferedPacket, b.capacity)}
		b.rings[streamName] = r
	}

	if r.size == len(r.entries) {
		evicted := r.entries[r.head]
		evicted.Packet.Release()
	} else {
		r.size++
	}
	r.entries[r.head] = BufferedPacket{Packet: clone, Info: info}
	r.head = (r.head + 1) % len(r.entries)
}

// Drain removes and returns the stream's buffered packets in arrival order.
// Ownership of the returned handles moves to the caller.
func (b *PreBuffer) Drain(streamName string) []BufferedPacket {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.rings[streamName]
	if r == nil || r.size == 0 {
		return nil
	}

	result := make([]BufferedPacket, r.size)
	if r.size < len(r.entries) {
		copy(result, r.entries[:r.size])
	} else {
		copy(result, r.entries[r.head:])
		copy(result[len(r.entries)-r.head:], r.entries[:r.head])
	}

	delete(b.rings, streamName)
	return result
}

// Clear releases and drops the stream's buffered packets.
func (b *PreBuffer) Clear(streamName string) {
	for _, entry := range b.Drain(streamName) {
		entry.Packet.Release()
	}
}

// Len returns the number of packets currently buffered for a stream.
func (b *PreBuffer) Len(streamName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r := b.rings[streamName]; r != nil {
		return r.size
	}
	return 0
}
