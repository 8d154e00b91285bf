package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"shipd/pkg/bus"
	"shipd/services/pipeline"
)

// Coordinator consumes trigger events from the bus and turns each matching
// event into exactly one pipeline run. A ref with an active run refuses new
// triggers until that run finishes; distinct refs run concurrently.
type Coordinator struct {
	engine *pipeline.Engine
	bus    *bus.Bus
	def    *pipeline.Definition
	logger *log.Logger

	// runCtx bounds run lifetimes to the coordinator, not to the bus
	// message that delivered the trigger.
	runCtx context.Context

	activeMu   sync.RWMutex
	activeRefs map[string]*refSlot

	subsMu sync.Mutex
	subs   []io.Closer

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator bound to the provided dependencies.
func NewCoordinator(engine *pipeline.Engine, b *bus.Bus, def *pipeline.Definition, logger *log.Logger) (*Coordinator, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if def == nil {
		return nil, errors.New("pipeline definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Coordinator{
		engine:     engine,
		bus:        b,
		def:        def,
		logger:     logger,
		activeRefs: make(map[string]*refSlot),
	}, nil
}

// refSlot is one ref's reservation. token identifies the trigger that claimed
// the slot; runID is filled in once the run announces itself on the bus.
type refSlot struct {
	token uuid.UUID
	runID uuid.UUID
}

// Start registers bus subscriptions and begins processing events.
func (c *Coordinator) Start(ctx context.Context) error {
	if c == nil {
		return errors.New("nil coordinator")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	c.runCtx = ctx

	specs := []struct {
		subject string
		durable string
		handler func(context.Context, []byte) error
	}{
		{bus.TriggersReceivedSubject, "runner-triggers", c.handleTrigger},
		{bus.RunsStartedSubject, "runner-runs-started", c.handleRunStarted},
		{bus.RunsFinishedSubject, "runner-runs-finished", c.handleRunFinished},
	}

	for _, spec := range specs {
		closer, err := c.bus.Subscribe(ctx, spec.subject, spec.durable, spec.handler)
		if err != nil {
			c.Close()
			return err
		}
		c.subsMu.Lock()
		c.subs = append(c.subs, closer)
		c.subsMu.Unlock()
	}

	return nil
}

// Close tears down subscriptions and waits for in-flight runs.
func (c *Coordinator) Close() error {
	if c == nil {
		return nil
	}

	c.subsMu.Lock()
	var firstErr error
	for _, sub := range c.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.subs = nil
	c.subsMu.Unlock()

	c.wg.Wait()
	return firstErr
}

func (c *Coordinator) handleTrigger(ctx context.Context, data []byte) error {
	var evt pipeline.TriggerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.Ref == "" {
		return errors.New("trigger event has no ref")
	}

	if !c.def.Matches(evt) {
		c.logger.Printf("INFO trigger %s %s/%s does not match pipeline %s", evt.Kind, evt.RefType, evt.Ref, c.def.Name)
		return nil
	}

	token, ok := c.reserveRef(evt.Ref)
	if !ok {
		c.logger.Printf("WARN ref %s already has an active run, refusing trigger", evt.Ref)
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.releaseRef(evt.Ref, token)

		runID, err := c.engine.Execute(c.runContext(), c.def, evt)
		if err != nil {
			c.logger.Printf("ERROR run %s for %s failed: %v", runID, evt.Ref, err)
			return
		}
		c.logger.Printf("INFO run %s for %s finished", runID, evt.Ref)
	}()

	return nil
}

func (c *Coordinator) handleRunStarted(ctx context.Context, data []byte) error {
	var evt runLifecycleEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.Ref == "" || evt.RunID == uuid.Nil {
		return nil
	}
	c.setActiveRun(evt.Ref, evt.RunID)
	return nil
}

func (c *Coordinator) handleRunFinished(ctx context.Context, data []byte) error {
	var evt runLifecycleEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.Ref == "" || evt.RunID == uuid.Nil {
		return nil
	}
	c.clearActiveRun(evt.Ref, evt.RunID)
	return nil
}

// runContext returns the coordinator-lifetime context runs execute under.
func (c *Coordinator) runContext() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

// reserveRef claims the ref for a new run and returns a token identifying
// the reservation. It returns false when the ref already has one.
func (c *Coordinator) reserveRef(ref string) (uuid.UUID, bool) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	if _, ok := c.activeRefs[ref]; ok {
		return uuid.Nil, false
	}
	token := uuid.New()
	c.activeRefs[ref] = &refSlot{token: token}
	return token, true
}

// releaseRef drops the reservation only if it still belongs to token. The
// finished-event consumer may have already cleared the slot and a newer
// trigger reserved the ref; a stale release must not touch that reservation.
func (c *Coordinator) releaseRef(ref string, token uuid.UUID) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	if slot, ok := c.activeRefs[ref]; ok && slot.token == token {
		delete(c.activeRefs, ref)
	}
}

func (c *Coordinator) setActiveRun(ref string, runID uuid.UUID) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	if slot, ok := c.activeRefs[ref]; ok && slot.runID == uuid.Nil {
		slot.runID = runID
	}
}

func (c *Coordinator) clearActiveRun(ref string, runID uuid.UUID) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	if slot, ok := c.activeRefs[ref]; ok && slot.runID == runID {
		delete(c.activeRefs, ref)
	}
}
