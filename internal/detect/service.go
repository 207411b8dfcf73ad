// Package detect runs object detection jobs on sampled keyframes, decoupled
// from the ingest loops by a fixed worker pool. The service also keeps the
// per-stream throttle state (reader flags, intervals, last submission) that
// ingest workers consult before submitting.
package detect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/nvrnode/internal/media"
)

// memoryConstrainedThreshold is the available-memory floor below which the
// host is treated as memory constrained.
const memoryConstrainedThreshold = 1 << 30 // 1 GiB

// Submission errors.
var (
	ErrPoolSaturated = errors.New("detect: worker pool saturated")
	ErrStopped       = errors.New("detect: service stopped")
)

// Job is one detection task handed to the pool. The pool owns the packet
// handle and releases it after processing.
type Job struct {
	StreamName string
	Packet     *media.Packet
	Info       media.StreamInfo
	Submitted  time.Time
}

// Processor performs the actual inference for a job. Implementations live
// outside this package; errors are logged, never propagated to ingest.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job Job) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job Job) error { return f(ctx, job) }

// Config configures the detection service.
type Config struct {
	// Workers is the pool size. Zero means 2.
	Workers int

	// QueueSize bounds pending jobs. Zero means Workers.
	QueueSize int

	// MemoryConstrained forces constrained-host behavior regardless of
	// measured memory.
	MemoryConstrained bool

	// DefaultInterval applies to streams without a configured interval.
	DefaultInterval time.Duration
}

// Service owns the worker pool and the per-stream throttle state.
type Service struct {
	cfg       Config
	processor Processor
	logger    *slog.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int32

	mu        sync.RWMutex
	readers   map[string]bool
	intervals map[string]time.Duration
	lastSub   map[string]time.Time

	// availableMemory is swappable for tests.
	availableMemory func() (uint64, bool)
}

// NewService creates a detection service. Call Start before submitting.
func NewService(cfg Config, processor Processor, logger *slog.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:             cfg,
		processor:       processor,
		logger:          logger,
		jobs:            make(chan Job, cfg.QueueSize),
		ctx:             ctx,
		cancel:          cancel,
		readers:         make(map[string]bool),
		intervals:       make(map[string]time.Duration),
		lastSub:         make(map[string]time.Time),
		availableMemory: availableMemory,
	}
}

// Start launches the worker pool.
func (s *Service) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("Detection pool started",
		"workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)
}

// Stop drains the pool and releases queued jobs.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()

	for {
		select {
		case job := <-s.jobs:
			job.Packet.Release()
		default:
			s.logger.Info("Detection pool stopped")
			return
		}
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			s.active.Add(1)
			if err := s.processor.Process(s.ctx, job); err != nil {
				s.logger.Warn("Detection job failed",
					"stream", job.StreamName, "worker", id, "error", err)
			}
			job.Packet.Release()
			s.active.Add(-1)
		}
	}
}

// Submit queues a keyframe for detection. The packet is cloned; the caller
// keeps ownership of its handle. Never blocks: a full queue fails with
// ErrPoolSaturated.
func (s *Service) Submit(streamName string, pkt *media.Packet, info media.StreamInfo) error {
	select {
	case <-s.ctx.Done():
		return ErrStopped
	default:
	}

	job := Job{
		StreamName: streamName,
		Packet:     pkt.Clone(),
		Info:       info,
		Submitted:  time.Now(),
	}

	select {
	case s.jobs <- job:
		return nil
	default:
		job.Packet.Release()
		return ErrPoolSaturated
	}
}

// Busy reports whether the pool has no spare capacity: every worker active
// or the queue full.
func (s *Service) Busy() bool {
	return int(s.active.Load()) >= s.cfg.Workers || len(s.jobs) == cap(s.jobs)
}

// MemoryConstrained reports whether detection should degrade to
// drop-when-busy: either forced by configuration or the host has less than
// 1 GiB of available memory.
func (s *Service) MemoryConstrained() bool {
	if s.cfg.MemoryConstrained {
		return true
	}
	if avail, ok := s.availableMemory(); ok {
		return avail < memoryConstrainedThreshold
	}
	return false
}

// SetReaderActive marks a stream's detection reader active or inactive.
func (s *Service) SetReaderActive(streamName string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.readers[streamName] = true
	} else {
		delete(s.readers, streamName)
	}
}

// IsReaderActive reports whether detection is wanted for a stream.
func (s *Service) IsReaderActive(streamName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readers[streamName]
}

// SetInterval sets the minimum spacing between submissions for a stream.
func (s *Service) SetInterval(streamName string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval > 0 {
		s.intervals[streamName] = interval
	} else {
		delete(s.intervals, streamName)
	}
}

// Interval returns the submission spacing for a stream, falling back to the
// configured default.
func (s *Service) Interval(streamName string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if interval, ok := s.intervals[streamName]; ok {
		return interval
	}
	return s.cfg.DefaultInterval
}

// LastSubmission returns when a stream last submitted a job; the zero time
// when it never has.
func (s *Service) LastSubmission(streamName string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSub[streamName]
}

// UpdateLastSubmission records a successful submission time.
func (s *Service) UpdateLastSubmission(streamName string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSub[streamName] = t
}

// Forget drops all throttle state for a stream.
func (s *Service) Forget(streamName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.readers, streamName)
	delete(s.intervals, streamName)
	delete(s.lastSub, streamName)
}
