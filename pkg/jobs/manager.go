package jobs

// Manager owns the two standing background queues a collection store
// needs: HNSW rebuilds and lazy frees. One Manager is shared process-wide;
// individual collections submit work keyed by their own name.
type Manager struct {
	rebuild *Queue
	free    *Queue
}

// NewManager starts the rebuild and lazy-free worker goroutines. rebuildFn
// is invoked with the collection name whenever a rebuild is dequeued;
// freeFn similarly for lazy frees.
func NewManager(rebuildFn func(collection string), freeFn func(collection string)) *Manager {
	return &Manager{
		rebuild: NewQueue(TypeHnswRebuild, func(payload interface{}) {
			rebuildFn(payload.(string))
		}),
		free: NewQueue(TypeLazyFree, func(payload interface{}) {
			freeFn(payload.(string))
		}),
	}
}

// RequestRebuild single-flights an HNSW rebuild for collection: if one is
// already queued or running, this call is a no-op.
func (m *Manager) RequestRebuild(collection string) bool {
	return m.rebuild.SubmitDedup(collection, collection)
}

// RequestLazyFree queues a slot-reclamation pass for collection.
func (m *Manager) RequestLazyFree(collection string) {
	m.free.Submit(collection)
}

// PendingRebuilds returns the number of rebuilds currently queued.
func (m *Manager) PendingRebuilds() int {
	return m.rebuild.Len()
}

// Close stops both queues, waiting for in-flight jobs to finish.
func (m *Manager) Close() {
	m.rebuild.Close()
	m.free.Close()
}
