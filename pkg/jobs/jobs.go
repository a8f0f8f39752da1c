// Package jobs runs vecdb's background maintenance work: HNSW graph
// rebuilds and deferred point-slot reclamation. Each job type gets its own
// FIFO queue and one dedicated worker goroutine, so a slow rebuild never
// blocks a queued free, or vice versa.
package jobs

import (
	"container/list"
	"sync"
)

// Type identifies a job queue.
type Type string

const (
	// TypeHnswRebuild rebuilds a collection's HNSW graph from its current
	// point set. Only ever one in flight per collection when submitted via
	// SubmitDedup (as Manager.RequestRebuild does): it is a no-op while a
	// rebuild for that collection is already queued or running.
	TypeHnswRebuild Type = "hnsw_rebuild"
	// TypeLazyFree runs a slot-reclamation pass for a collection; what the
	// pass does is up to the handler the queue was built with.
	TypeLazyFree Type = "lazy_free"
)

// Func is the work a job performs. It receives the opaque payload handed
// to Submit.
type Func func(payload interface{})

// Queue is a FIFO job queue backed by one dedicated worker goroutine.
// Producers call Submit; Queue serializes execution of submitted jobs.
type Queue struct {
	typ  Type
	work Func

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *list.List
	closed   bool
	inflight inflightSet

	wg sync.WaitGroup
}

type job struct {
	payload interface{}
	key     string // dedup key; empty means no dedup
}

// NewQueue creates a queue of the given type and starts its worker
// goroutine. fn runs once per accepted Submit, in submission order.
func NewQueue(typ Type, fn Func) *Queue {
	q := &Queue{
		typ:     typ,
		work:    fn,
		pending: list.New(),
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues payload for processing. It never blocks.
func (q *Queue) Submit(payload interface{}) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending.PushBack(job{payload: payload})
	q.mu.Unlock()
	q.cond.Signal()
}

// SubmitDedup enqueues payload under key, but only if no job with that key
// is already pending or executing. Used for single-flight HNSW rebuilds:
// a rebuild already queued for a collection absorbs further triggers until
// it runs.
func (q *Queue) SubmitDedup(key string, payload interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	for e := q.pending.Front(); e != nil; e = e.Next() {
		if e.Value.(job).key == key {
			return false
		}
	}
	if !q.inflight.CompareAndSwap(key, false, true) {
		return false
	}
	q.pending.PushBack(job{payload: payload, key: key})
	q.cond.Signal()
	return true
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for q.pending.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.pending.Len() == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		front := q.pending.Front()
		q.pending.Remove(front)
		q.mu.Unlock()

		j := front.Value.(job)
		q.work(j.payload)
		if j.key != "" {
			q.inflight.Delete(j.key)
		}
	}
}

// Len returns the number of jobs currently queued (not counting one
// in-flight execution).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Close stops accepting new jobs and waits for the worker to drain the
// queue and exit.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.wg.Wait()
}

// inflightSet is a CAS-guarded string set used to single-flight rebuilds
// per dedup key.
type inflightSet struct {
	mu  sync.Mutex
	set map[string]bool
}

// CompareAndSwap reports whether key's membership equalled old, and if so
// sets it to new atomically. Mirrors sync/atomic's CAS semantics for a set
// membership bit instead of a scalar.
func (s *inflightSet) CompareAndSwap(key string, old, new bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		s.set = make(map[string]bool)
	}
	cur := s.set[key]
	if cur != old {
		return false
	}
	if new {
		s.set[key] = true
	} else {
		delete(s.set, key)
	}
	return true
}

func (s *inflightSet) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, key)
}
