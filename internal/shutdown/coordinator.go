// Package shutdown coordinates ordered teardown across components. Each
// long-lived component registers with a priority; shutdown proceeds from the
// highest priority down, and the coordinator can wait for components to
// report themselves stopped. Registration is an ordering and observability
// aid: components keep running and stopping on their own even when it fails.
package shutdown

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ComponentKind labels what a registered component is.
type ComponentKind string

// Component kinds.
const (
	KindIngest   ComponentKind = "ingest"
	KindRecorder ComponentKind = "recorder"
	KindDetector ComponentKind = "detector"
	KindServer   ComponentKind = "server"
)

// ComponentState is the reported lifecycle state of a component.
type ComponentState int32

// Component states.
const (
	StateRunning ComponentState = iota
	StateStopping
	StateStopped
)

func (s ComponentState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// pollInterval is how often WaitStopped re-checks component states.
const pollInterval = 50 * time.Millisecond

type component struct {
	name     string
	kind     ComponentKind
	priority int
	state    ComponentState
}

// Coordinator tracks component registrations and the process-wide shutdown
// flag. All methods are safe for concurrent use.
type Coordinator struct {
	mu         sync.Mutex
	components []component
	initiated  atomic.Bool
	logger     *slog.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger}
}

// Register adds a component and returns its id, or -1 when registration is
// refused because shutdown has already been initiated. Lower priorities are
// torn down later.
func (c *Coordinator) Register(name string, kind ComponentKind, priority int) int {
	if c.initiated.Load() {
		c.logger.Warn("Registration refused, shutdown already initiated",
			"component", name)
		return -1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := len(c.components)
	c.components = append(c.components, component{
		name:     name,
		kind:     kind,
		priority: priority,
		state:    StateRunning,
	})
	c.logger.Debug("Component registered",
		"component", name, "kind", kind, "id", id, "priority", priority)
	return id
}

// ReportState records a component's state transition. Unknown ids are
// ignored so a failed registration (-1) needs no special casing by callers.
func (c *Coordinator) ReportState(id int, state ComponentState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= len(c.components) {
		return
	}
	c.components[id].state = state
	c.logger.Debug("Component state updated",
		"component", c.components[id].name, "state", state.String())
}

// Initiate flips the process-wide shutdown flag. Idempotent.
func (c *Coordinator) Initiate() {
	if c.initiated.CompareAndSwap(false, true) {
		c.logger.Info("Shutdown initiated")
	}
}

// Initiated reports whether a process-wide shutdown has begun. Workers poll
// this each loop iteration.
func (c *Coordinator) Initiated() bool {
	return c.initiated.Load()
}

// WaitStopped blocks until every registered component with priority at or
// above the ceiling reports stopped, or the context is done. Returns the
// names of components still pending on timeout.
func (c *Coordinator) WaitStopped(ctx context.Context, priorityCeiling int) []string {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		pending := c.pending(priorityCeiling)
		if len(pending) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("Shutdown wait expired", "pending", pending)
			return pending
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) pending(priorityCeiling int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []string
	for _, comp := range c.components {
		if comp.priority >= priorityCeiling && comp.state != StateStopped {
			pending = append(pending, comp.name)
		}
	}
	sort.Strings(pending)
	return pending
}
