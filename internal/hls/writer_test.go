package hls

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/nvrnode/internal/media"
)

func videoPacket(t *testing.T, keyframe bool, ts uint32) *media.Packet {
	t.Helper()
	pkt := media.NewPacket([]byte{0x65, 0x01, 0x02, 0x03}, 0)
	pkt.Keyframe = keyframe
	pkt.Timestamp = ts
	return pkt
}

var videoInfo = media.StreamInfo{Index: 0, Kind: media.KindVideo, Codec: "H264", ClockRate: 90000}

func TestCreateWriterWritesInitialPlaylist(t *testing.T) {
	dir := t.TempDir()

	w, err := CreateWriter(dir, "cam1", time.Second)
	if err != nil {
		t.Fatalf("CreateWriter() = %v", err)
	}
	defer w.Close()

	data, err := os.ReadFile(filepath.Join(dir, "cam1", "playlist.m3u8"))
	if err != nil {
		t.Fatalf("playlist not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "#EXTM3U") {
		t.Errorf("playlist content = %q", data)
	}
}

func TestWritePacketRecordFormat(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWriter(dir, "cam1", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	pkt := videoPacket(t, true, 90000)
	defer pkt.Release()

	if err := w.WritePacket(pkt, videoInfo); err != nil {
		t.Fatalf("WritePacket() = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cam1", "segment_000000.nvs"))
	if err != nil {
		t.Fatalf("segment not written: %v", err)
	}
	if len(data) != 10+4 {
		t.Fatalf("segment length = %d, want 14", len(data))
	}
	if got := binary.BigEndian.Uint32(data[0:4]); got != 4 {
		t.Errorf("record length = %d, want 4", got)
	}
	if got := binary.BigEndian.Uint32(data[6:10]); got != 90000 {
		t.Errorf("record timestamp = %d, want 90000", got)
	}
}

func TestRotateOnKeyframeAfterSegmentDuration(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWriter(dir, "cam1", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }

	first := videoPacket(t, true, 0)
	if err := w.WritePacket(first, videoInfo); err != nil {
		t.Fatal(err)
	}
	first.Release()

	// Keyframe before the target duration must not rotate
	now = now.Add(500 * time.Millisecond)
	early := videoPacket(t, true, 45000)
	if err := w.WritePacket(early, videoInfo); err != nil {
		t.Fatal(err)
	}
	early.Release()
	if w.segIndex != 0 {
		t.Fatalf("segIndex = %d after early keyframe, want 0", w.segIndex)
	}

	// Non-keyframe after the target duration must not rotate either
	now = now.Add(time.Second)
	inter := videoPacket(t, false, 135000)
	if err := w.WritePacket(inter, videoInfo); err != nil {
		t.Fatal(err)
	}
	inter.Release()
	if w.segIndex != 0 {
		t.Fatalf("segIndex = %d after non-keyframe, want 0", w.segIndex)
	}

	// Keyframe past the target duration rotates
	key := videoPacket(t, true, 180000)
	if err := w.WritePacket(key, videoInfo); err != nil {
		t.Fatal(err)
	}
	key.Release()
	if w.segIndex != 1 {
		t.Fatalf("segIndex = %d after rotating keyframe, want 1", w.segIndex)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cam1", "playlist.m3u8"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "segment_000000.nvs") {
		t.Errorf("playlist missing finished segment:\n%s", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}

func TestPruneKeepsPlaylistWindow(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWriter(dir, "cam1", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }

	for i := 0; i < playlistWindow+3; i++ {
		pkt := videoPacket(t, true, uint32(i*90000))
		if err := w.WritePacket(pkt, videoInfo); err != nil {
			t.Fatal(err)
		}
		pkt.Release()
		now = now.Add(2 * time.Second)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if len(w.segments) > playlistWindow {
		t.Errorf("retained %d segments, want <= %d", len(w.segments), playlistWindow)
	}
	if _, err := os.Stat(filepath.Join(dir, "cam1", "segment_000000.nvs")); !os.IsNotExist(err) {
		t.Error("oldest segment file was not pruned")
	}
}

func TestCloseIsIdempotentAndEndsPlaylist(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWriter(dir, "cam1", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	pkt := videoPacket(t, true, 0)
	if err := w.WritePacket(pkt, videoInfo); err != nil {
		t.Fatal(err)
	}
	pkt.Release()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cam1", "playlist.m3u8"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "#EXT-X-ENDLIST") {
		t.Error("playlist not marked ended after Close")
	}

	late := videoPacket(t, false, 0)
	defer late.Release()
	if err := w.WritePacket(late, videoInfo); err != ErrWriterClosed {
		t.Errorf("WritePacket after Close = %v, want ErrWriterClosed", err)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()

	got, err := EnsureDir(dir, "cam1")
	if err != nil {
		t.Fatalf("EnsureDir() = %v", err)
	}
	if got != filepath.Join(dir, "cam1") {
		t.Errorf("EnsureDir() = %q", got)
	}

	info, err := os.Stat(got)
	if err != nil || !info.IsDir() {
		t.Errorf("output directory missing: %v", err)
	}
}
