package streams

import (
	"errors"
	"testing"
	"time"
)

// memStore is a minimal in-memory Store for registry tests.
type memStore struct {
	specs map[string]StreamSpec
}

func (m *memStore) Load() error { return nil }
func (m *memStore) Save() error { return nil }
func (m *memStore) GetStream(name string) (StreamSpec, bool) {
	spec, ok := m.specs[name]
	return spec, ok
}
func (m *memStore) GetAllStreams() map[string]StreamSpec { return m.specs }
func (m *memStore) SetStream(spec StreamSpec)            { m.specs[spec.Name] = spec }
func (m *memStore) DeleteStream(name string) bool {
	_, ok := m.specs[name]
	delete(m.specs, name)
	return ok
}

func TestStatePhaseTransitions(t *testing.T) {
	s := NewState("cam1")

	if s.Phase() != PhaseStarting {
		t.Errorf("initial phase = %v, want starting", s.Phase())
	}
	if s.IsStopping() {
		t.Error("IsStopping() = true for a starting stream")
	}

	s.SetPhase(PhaseRunning)
	if s.IsStopping() {
		t.Error("IsStopping() = true for a running stream")
	}

	s.SetPhase(PhaseStopping)
	if !s.IsStopping() {
		t.Error("IsStopping() = false after SetPhase(stopping)")
	}

	s.SetPhase(PhaseStopped)
	if !s.IsStopping() {
		t.Error("IsStopping() = false after SetPhase(stopped)")
	}
}

func TestStateCallbacks(t *testing.T) {
	s := NewState("cam1")

	if !s.CallbacksEnabled() {
		t.Error("callbacks disabled on a fresh state")
	}
	s.EnableCallbacks(false)
	if s.CallbacksEnabled() {
		t.Error("callbacks still enabled after disable")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(&memStore{specs: map[string]StreamSpec{}})

	if r.GetByName("cam1") != nil {
		t.Error("GetByName on empty registry returned a state")
	}

	created := r.Create("cam1")
	if got := r.GetByName("cam1"); got != created {
		t.Error("GetByName returned a different state than Create")
	}

	// Create on an existing entry resets it rather than replacing it
	created.SetPhase(PhaseStopped)
	created.EnableCallbacks(false)
	again := r.Create("cam1")
	if again != created {
		t.Error("Create replaced an existing state")
	}
	if again.Phase() != PhaseStarting || !again.CallbacksEnabled() {
		t.Error("Create did not reset the existing state")
	}

	r.Remove("cam1")
	if r.GetByName("cam1") != nil {
		t.Error("GetByName returned a state after Remove")
	}
}

func TestRegistryConfig(t *testing.T) {
	store := &memStore{specs: map[string]StreamSpec{
		"cam1": {Name: "cam1", URL: "rtsp://cam.local/1"},
	}}
	r := NewRegistry(store)

	spec, err := r.Config("cam1")
	if err != nil {
		t.Fatalf("Config(cam1) = %v", err)
	}
	if spec.URL != "rtsp://cam.local/1" {
		t.Errorf("spec.URL = %q", spec.URL)
	}

	if _, err := r.Config("missing"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("Config(missing) = %v, want ErrStreamNotFound", err)
	}
}

func TestSpecDefaults(t *testing.T) {
	var spec StreamSpec

	if got := spec.SegmentDuration(); got != DefaultSegmentDuration {
		t.Errorf("SegmentDuration() = %v, want %v", got, DefaultSegmentDuration)
	}
	if got := spec.DetectionInterval(); got != DefaultDetectionInterval {
		t.Errorf("DetectionInterval() = %v, want %v", got, DefaultDetectionInterval)
	}

	spec.SegmentDurationMS = 2000
	spec.DetectionIntervalSec = 3
	if got := spec.SegmentDuration(); got != 2*time.Second {
		t.Errorf("SegmentDuration() = %v, want 2s", got)
	}
	if got := spec.DetectionInterval(); got != 3*time.Second {
		t.Errorf("DetectionInterval() = %v, want 3s", got)
	}
}
