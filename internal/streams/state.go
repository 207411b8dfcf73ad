package streams

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStreamNotFound is returned when a stream name has no configuration.
var ErrStreamNotFound = errors.New("stream not found")

// Phase is the lifecycle phase of a stream's runtime state.
type Phase int32

// Stream phases.
const (
	PhaseStarting Phase = iota
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// State is the runtime state of one stream, polled by its ingest worker each
// iteration. All accessors are safe for concurrent use.
type State struct {
	name      string
	phase     atomic.Int32
	callbacks atomic.Bool
}

// NewState creates a state in the starting phase with callbacks enabled.
func NewState(name string) *State {
	s := &State{name: name}
	s.callbacks.Store(true)
	return s
}

// Name returns the stream name.
func (s *State) Name() string { return s.name }

// SetPhase records a lifecycle transition.
func (s *State) SetPhase(p Phase) { s.phase.Store(int32(p)) }

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase { return Phase(s.phase.Load()) }

// IsStopping reports whether the stream has begun (or finished) stopping.
func (s *State) IsStopping() bool {
	p := s.Phase()
	return p == PhaseStopping || p == PhaseStopped
}

// EnableCallbacks toggles packet callbacks for the stream. Workers treat
// disabled callbacks as a stop condition.
func (s *State) EnableCallbacks(enabled bool) { s.callbacks.Store(enabled) }

// CallbacksEnabled reports whether packet callbacks are enabled.
func (s *State) CallbacksEnabled() bool { return s.callbacks.Load() }

// Registry tracks runtime state per stream and resolves configuration from
// the backing store. Workers look their state up once at startup.
type Registry struct {
	store  Store
	mu     sync.RWMutex
	states map[string]*State
}

// NewRegistry creates a registry over the given configuration store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:  store,
		states: make(map[string]*State),
	}
}

// GetByName returns the runtime state for a stream, or nil when the stream
// was never created.
func (r *Registry) GetByName(name string) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[name]
}

// Create returns the runtime state for a stream, creating it if needed. An
// existing state is reset to the starting phase with callbacks enabled.
func (r *Registry) Create(name string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[name]; ok {
		state.SetPhase(PhaseStarting)
		state.EnableCallbacks(true)
		return state
	}

	state := NewState(name)
	r.states[name] = state
	return state
}

// Remove drops the runtime state for a stream.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, name)
}

// Names returns all stream names with runtime state.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	return names
}

// Config resolves the persisted configuration for a stream.
func (r *Registry) Config(name string) (StreamSpec, error) {
	spec, ok := r.store.GetStream(name)
	if !ok {
		return StreamSpec{}, ErrStreamNotFound
	}
	return spec, nil
}
