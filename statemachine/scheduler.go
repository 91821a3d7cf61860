package statemachine

import (
	"context"
	"slices"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/atomic"
)

// Scheduler runs effects on behalf of a machine. Schedule and Stop only
// queue operations; Flush performs them in the order they were queued, after
// the commit that produced them.
//
// Stopping an effect whose body has not run cancels it and its cleanup never
// runs. Stopping an effect that ran invokes its cleanup exactly once.
// Stopping twice, or stopping an unknown ID, does nothing.
type Scheduler interface {
	// Schedule registers a task and queues it to run on the next Flush.
	Schedule(name string, task Task) EffectID
	// Stop queues a stop for the effect, ordered after everything already queued.
	Stop(id EffectID)
	// Cancel withdraws an effect immediately. If it has not run it never
	// will; if it has, Cancel behaves like Stop.
	Cancel(id EffectID)
	// Flush performs the queued operations. Effect contexts inherit the
	// values of ctx but not its cancellation.
	Flush(ctx context.Context)
	// Close stops every live effect, flushes, and rejects further work.
	Close(ctx context.Context) error
}

type effectPhase int

const (
	phasePending effectPhase = iota
	phaseRunning
)

type effectEntry struct {
	name    string
	task    Task
	phase   effectPhase
	cleanup Cleanup
	cancel  context.CancelFunc
}

type opKind int

const (
	opRun opKind = iota
	opStop
)

type effectOp struct {
	kind opKind
	id   EffectID
}

// registry is the arena of live effects keyed by ID, plus the queue of
// operations waiting for the next flush.
type registry struct {
	mu      sync.Mutex
	nextID  *atomic.Uint64
	entries map[EffectID]*effectEntry
	ops     []effectOp
	closed  bool
}

func newRegistry() *registry {
	return &registry{
		nextID:  atomic.NewUint64(0),
		entries: make(map[EffectID]*effectEntry),
	}
}

func (r *registry) schedule(name string, task Task) EffectID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || task == nil {
		return 0
	}

	id := EffectID(r.nextID.Inc())
	r.entries[id] = &effectEntry{name: name, task: task}
	r.ops = append(r.ops, effectOp{kind: opRun, id: id})

	return id
}

func (r *registry) stop(id EffectID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		r.ops = append(r.ops, effectOp{kind: opStop, id: id})
	}
}

func (r *registry) cancel(id EffectID) {
	r.mu.Lock()

	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()

		return
	}

	if entry.phase == phasePending {
		delete(r.entries, id)
		r.mu.Unlock()

		return
	}

	r.ops = append(r.ops, effectOp{kind: opStop, id: id})
	r.mu.Unlock()
}

// stopAll withdraws pending effects, queues a stop for every effect that ran
// in registration order, and marks the registry closed.
func (r *registry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]EffectID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	for _, id := range ids {
		if r.entries[id].phase == phasePending {
			delete(r.entries, id)

			continue
		}

		r.ops = append(r.ops, effectOp{kind: opStop, id: id})
	}

	r.closed = true
}

func (r *registry) take() []effectOp {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := r.ops
	r.ops = nil

	return ops
}

func (r *registry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// execute performs ops in order. Task panics propagate to the caller.
func (r *registry) execute(ctx context.Context, ops []effectOp) {
	base := context.WithoutCancel(ctx)

	for _, op := range ops {
		switch op.kind {
		case opRun:
			r.run(base, op.id)
		case opStop:
			r.halt(op.id)
		}
	}
}

func (r *registry) run(base context.Context, id EffectID) {
	r.mu.Lock()

	entry, ok := r.entries[id]
	if !ok || entry.phase != phasePending {
		r.mu.Unlock()

		return
	}

	effectCtx, cancel := context.WithCancel(base)
	entry.phase = phaseRunning
	entry.cancel = cancel
	task := entry.task
	r.mu.Unlock()

	cleanup := task(effectCtx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[id]; ok && current == entry {
		entry.cleanup = cleanup

		return
	}

	// Stopped while its body was running: the body has now returned, so the
	// cleanup is due immediately.
	cancel()

	if cleanup != nil {
		r.mu.Unlock()
		cleanup()
		r.mu.Lock()
	}
}

func (r *registry) halt(id EffectID) {
	r.mu.Lock()

	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()

		return
	}

	delete(r.entries, id)

	if entry.phase == phasePending {
		r.mu.Unlock()

		return
	}

	cleanup := entry.cleanup
	cancel := entry.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if cleanup != nil {
		cleanup()
	}
}

// Queue is the default Scheduler. Flush runs every queued operation on the
// calling goroutine.
type Queue struct {
	reg *registry
}

// NewQueue creates a synchronous scheduler.
func NewQueue() *Queue {
	return &Queue{reg: newRegistry()}
}

func (q *Queue) Schedule(name string, task Task) EffectID {
	return q.reg.schedule(name, task)
}

func (q *Queue) Stop(id EffectID) {
	q.reg.stop(id)
}

func (q *Queue) Cancel(id EffectID) {
	q.reg.cancel(id)
}

func (q *Queue) Flush(ctx context.Context) {
	q.reg.execute(ctx, q.reg.take())
}

// Live returns the number of effects that have been scheduled and not yet stopped.
func (q *Queue) Live() int {
	return q.reg.live()
}

func (q *Queue) Close(ctx context.Context) error {
	q.reg.stopAll()
	q.Flush(ctx)

	return nil
}

// detachedScheduler is implemented by schedulers that run effects on
// goroutines of their own. Such a scheduler cannot be closed from one of
// those goroutines.
type detachedScheduler interface {
	Scheduler
	detached()
}

// PoolScheduler runs effects on a single-worker pond pool, off the
// dispatching goroutine. Each Flush becomes one pool task, so operations
// keep their order across flushes.
type PoolScheduler struct {
	reg     *registry
	pool    pond.Pool
	stopped *atomic.Bool
}

// NewPoolScheduler creates an asynchronous scheduler.
func NewPoolScheduler() *PoolScheduler {
	return &PoolScheduler{
		reg:     newRegistry(),
		pool:    pond.NewPool(1),
		stopped: atomic.NewBool(false),
	}
}

func (p *PoolScheduler) Schedule(name string, task Task) EffectID {
	return p.reg.schedule(name, task)
}

func (p *PoolScheduler) Stop(id EffectID) {
	p.reg.stop(id)
}

func (p *PoolScheduler) Cancel(id EffectID) {
	p.reg.cancel(id)
}

func (p *PoolScheduler) Flush(ctx context.Context) {
	if p.stopped.Load() {
		return
	}

	ops := p.reg.take()
	if len(ops) == 0 {
		return
	}

	p.pool.Submit(func() {
		p.reg.execute(ctx, ops)
	})
}

func (p *PoolScheduler) detached() {}

// Live returns the number of effects that have been scheduled and not yet stopped.
func (p *PoolScheduler) Live() int {
	return p.reg.live()
}

// Close stops every live effect and waits for the pool to drain.
func (p *PoolScheduler) Close(ctx context.Context) error {
	if p.stopped.Load() {
		return nil
	}

	p.reg.stopAll()
	p.Flush(ctx)
	p.stopped.Store(true)
	p.pool.StopAndWait()

	return nil
}
