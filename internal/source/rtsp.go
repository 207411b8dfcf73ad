package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"
	"github.com/pion/rtp"

	"github.com/smazurov/nvrnode/internal/media"
)

const defaultQueueSize = 256

// RTSPOpener opens RTSP sources using the go2rtc client.
type RTSPOpener struct {
	Logger *slog.Logger
	// QueueSize bounds the packet queue between the receive goroutine and
	// ReadPacket. Zero means the default.
	QueueSize int
}

// Open dials and describes the RTSP source, selects the first video and
// audio medias, and starts receiving. The protocol argument is recorded for
// diagnostics; the go2rtc client negotiates interleaved TCP transport.
func (o *RTSPOpener) Open(ctx context.Context, url, protocol string) (Connection, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := rtsp.NewClient(url)
	if err := client.Dial(); err != nil {
		return nil, fmt.Errorf("rtsp dial: %w", err)
	}
	if err := client.Describe(); err != nil {
		_ = client.Stop()
		return nil, fmt.Errorf("rtsp describe: %w", err)
	}

	queueSize := o.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	conn := &rtspConn{
		client: client,
		queue:  make(chan *media.Packet, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	var haveVideo, haveAudio bool
	for _, m := range client.GetMedias() {
		if m.Direction != core.DirectionRecvonly || len(m.Codecs) == 0 {
			continue
		}

		var kind media.Kind
		switch m.Kind {
		case core.KindVideo:
			if haveVideo {
				continue
			}
			haveVideo = true
			kind = media.KindVideo
		case core.KindAudio:
			if haveAudio {
				continue
			}
			haveAudio = true
			kind = media.KindAudio
		default:
			continue
		}

		codec := m.Codecs[0]
		track, err := client.GetTrack(m, codec)
		if err != nil {
			logger.Warn("Failed to set up track", "kind", m.Kind, "codec", codec.Name, "error", err)
			continue
		}

		info := media.StreamInfo{
			Index:     len(conn.infos),
			Kind:      kind,
			Codec:     codec.Name,
			FmtpLine:  codec.FmtpLine,
			ClockRate: codec.ClockRate,
		}
		conn.infos = append(conn.infos, info)
		conn.addTrack(m, codec, track, info)
	}

	logger.Debug("RTSP source described",
		"url", url, "protocol", protocol, "streams", len(conn.infos))

	go conn.receive()

	return conn, nil
}

// rtspConn adapts a go2rtc RTSP producer to the Connection contract. Track
// handlers push packets into a bounded queue; when the queue is full the
// newest packet is dropped so a slow consumer cannot grow memory unbounded.
type rtspConn struct {
	client    *rtsp.Conn
	infos     []media.StreamInfo
	queue     chan *media.Packet
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
	logger    *slog.Logger
}

func (c *rtspConn) addTrack(m *core.Media, codec *core.Codec, track *core.Receiver, info media.StreamInfo) {
	isH264Video := info.Kind == media.KindVideo && codec.Name == core.CodecH264

	sender := core.NewSender(m, codec)
	sender.Handler = func(packet *rtp.Packet) {
		pkt := media.NewPacket(packet.Payload, info.Index)
		pkt.Timestamp = packet.Timestamp
		if isH264Video {
			pkt.Keyframe = media.H264Keyframe(packet.Payload)
		}

		select {
		case c.queue <- pkt:
		default:
			pkt.Release()
			c.dropped.Add(1)
		}
	}
	sender.HandleRTP(track)
}

// receive drives the client until it disconnects, then signals end of stream.
func (c *rtspConn) receive() {
	if err := c.client.Start(); err != nil {
		c.logger.Debug("RTSP client stopped", "error", err)
	}
	close(c.done)
}

func (c *rtspConn) ReadPacket() (*media.Packet, error) {
	select {
	case pkt := <-c.queue:
		return pkt, nil
	case <-c.done:
		// Drain packets that arrived before the disconnect
		select {
		case pkt := <-c.queue:
			return pkt, nil
		default:
		}
		return nil, ErrEndOfStream
	}
}

func (c *rtspConn) Streams() []media.StreamInfo {
	return c.infos
}

func (c *rtspConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.client.Stop()
		<-c.done

		for {
			select {
			case pkt := <-c.queue:
				pkt.Release()
			default:
				if n := c.dropped.Load(); n > 0 {
					c.logger.Debug("Dropped packets on full queue", "count", n)
				}
				return
			}
		}
	})
	return err
}
