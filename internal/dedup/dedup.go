// Package dedup implements the idempotency-key -> in-flight-job-id mapping
// used by JobDispatcher to merge duplicate Dispatch calls.
package dedup

import "sync"

// Index is a concurrent idempotencyKey -> jobId mapping. At most one
// in-flight mapping exists per key; Register is an atomic test-and-set.
type Index struct {
	mu    sync.Mutex
	byKey map[string]string
}

// New returns an empty Index.
func New() *Index {
	return &Index{byKey: make(map[string]string)}
}

// GetInFlight returns the job id currently registered under key, if any.
func (i *Index) GetInFlight(key string) (jobID string, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	jobID, ok = i.byKey[key]
	return jobID, ok
}

// Register attempts to claim key for jobID. Returns false, and the existing
// owner, if the key is already claimed by a different job.
func (i *Index) Register(jobID, key string) (owner string, registered bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if existing, ok := i.byKey[key]; ok {
		return existing, false
	}
	i.byKey[key] = jobID
	return jobID, true
}

// Unregister removes every key currently mapped to jobID. A job may hold at
// most one key in practice, but Unregister is defensive against callers that
// registered more than once.
func (i *Index) Unregister(jobID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, v := range i.byKey {
		if v == jobID {
			delete(i.byKey, k)
		}
	}
}

// ClearAll removes every mapping. Intended for tests and for recovery after
// a process restart reloads job state from durable storage.
func (i *Index) ClearAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.byKey = make(map[string]string)
}
