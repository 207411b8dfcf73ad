package detect

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/nvrnode/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func keyframe(t *testing.T) *media.Packet {
	t.Helper()
	pkt := media.NewPacket([]byte{0x65, 0x88}, 0)
	pkt.Keyframe = true
	return pkt
}

var testInfo = media.StreamInfo{Index: 0, Kind: media.KindVideo, Codec: "H264"}

func TestSubmitProcessesAndReleases(t *testing.T) {
	processed := make(chan Job, 1)
	svc := NewService(Config{Workers: 1}, ProcessorFunc(func(_ context.Context, job Job) error {
		processed <- job
		return nil
	}), testLogger())
	svc.Start()
	defer svc.Stop()

	pkt := keyframe(t)
	if err := svc.Submit("cam1", pkt, testInfo); err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	select {
	case job := <-processed:
		if job.StreamName != "cam1" {
			t.Errorf("job.StreamName = %q", job.StreamName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never processed")
	}

	// The pool's clone is released after processing; only ours remains.
	deadline := time.Now().Add(2 * time.Second)
	for pkt.Refs() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Refs() = %d, want 1 after pool release", pkt.Refs())
		}
		time.Sleep(time.Millisecond)
	}
	pkt.Release()
}

func TestSubmitSaturatedPoolFails(t *testing.T) {
	block := make(chan struct{})
	svc := NewService(Config{Workers: 1, QueueSize: 1}, ProcessorFunc(func(_ context.Context, _ Job) error {
		<-block
		return nil
	}), testLogger())
	svc.Start()
	defer func() {
		close(block)
		svc.Stop()
	}()

	first := keyframe(t)
	if err := svc.Submit("cam1", first, testInfo); err != nil {
		t.Fatalf("first Submit() = %v", err)
	}

	// Wait for the worker to pick up the first job, then fill the queue.
	deadline := time.Now().Add(2 * time.Second)
	for svc.active.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never became active")
		}
		time.Sleep(time.Millisecond)
	}

	second := keyframe(t)
	if err := svc.Submit("cam1", second, testInfo); err != nil {
		t.Fatalf("second Submit() = %v", err)
	}

	third := keyframe(t)
	if err := svc.Submit("cam1", third, testInfo); err != ErrPoolSaturated {
		t.Errorf("Submit() on saturated pool = %v, want ErrPoolSaturated", err)
	}
	if got := third.Refs(); got != 1 {
		t.Errorf("rejected submission leaked a clone, Refs() = %d", got)
	}

	if !svc.Busy() {
		t.Error("Busy() = false with active worker and full queue")
	}

	first.Release()
	second.Release()
	third.Release()
}

func TestMemoryConstrained(t *testing.T) {
	tests := []struct {
		name      string
		forced    bool
		available uint64
		measured  bool
		want      bool
	}{
		{"forced by config", true, 64 << 30, true, true},
		{"plenty of memory", false, 64 << 30, true, false},
		{"below threshold", false, 512 << 20, true, true},
		{"measurement unavailable", false, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Config{MemoryConstrained: tt.forced}, nil, testLogger())
			svc.availableMemory = func() (uint64, bool) { return tt.available, tt.measured }

			if got := svc.MemoryConstrained(); got != tt.want {
				t.Errorf("MemoryConstrained() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThrottleState(t *testing.T) {
	svc := NewService(Config{DefaultInterval: 7 * time.Second}, nil, testLogger())

	if svc.IsReaderActive("cam1") {
		t.Error("reader active on fresh service")
	}
	svc.SetReaderActive("cam1", true)
	if !svc.IsReaderActive("cam1") {
		t.Error("reader not active after SetReaderActive")
	}

	if got := svc.Interval("cam1"); got != 7*time.Second {
		t.Errorf("Interval() = %v, want default 7s", got)
	}
	svc.SetInterval("cam1", 3*time.Second)
	if got := svc.Interval("cam1"); got != 3*time.Second {
		t.Errorf("Interval() = %v, want 3s", got)
	}

	if !svc.LastSubmission("cam1").IsZero() {
		t.Error("LastSubmission() non-zero before any submission")
	}
	now := time.Now()
	svc.UpdateLastSubmission("cam1", now)
	if got := svc.LastSubmission("cam1"); !got.Equal(now) {
		t.Errorf("LastSubmission() = %v, want %v", got, now)
	}

	svc.Forget("cam1")
	if svc.IsReaderActive("cam1") || !svc.LastSubmission("cam1").IsZero() {
		t.Error("state survived Forget")
	}
}

func TestStopReleasesQueuedJobs(t *testing.T) {
	var started atomic.Bool
	block := make(chan struct{})
	svc := NewService(Config{Workers: 1, QueueSize: 2}, ProcessorFunc(func(ctx context.Context, _ Job) error {
		started.Store(true)
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}), testLogger())
	svc.Start()

	running := keyframe(t)
	queued := keyframe(t)
	if err := svc.Submit("cam1", running, testInfo); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !started.Load() {
		if time.Now().After(deadline) {
			t.Fatal("worker never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := svc.Submit("cam1", queued, testInfo); err != nil {
		t.Fatal(err)
	}

	close(block)
	svc.Stop()

	if got := running.Refs(); got != 1 {
		t.Errorf("running job clone leaked, Refs() = %d", got)
	}
	if got := queued.Refs(); got != 1 {
		t.Errorf("queued job clone leaked, Refs() = %d", got)
	}
	running.Release()
	queued.Release()
}
