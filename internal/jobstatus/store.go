// Package jobstatus implements the JobStatusStore: a mapping of jobId to
// JobStatusInfo plus secondary indexes by status, type and source. The
// in-memory Store here is the default used by the processor and exercised
// by the property tests; a SQL-backed variant in the sqlstore subpackage
// satisfies the identical Store interface for durable deployments.
package jobstatus

import (
	"sort"
	"sync"

	"github.com/rezkam/agentforge/internal/domain"
)

// Store is the interface JobProcessor, JobDispatcher and agentctl depend
// on. It is intentionally narrow: callers own the shape of the filter they
// need, this package owns only the storage.
type Store interface {
	Set(info domain.JobStatusInfo) error
	Get(jobID string) (domain.JobStatusInfo, bool, error)
	Delete(jobID string) error
	ListByStatus(status domain.JobStatus, skip, take int) ([]domain.JobStatusInfo, error)
	ListByType(jobType string, skip, take int) ([]domain.JobStatusInfo, error)
	ListBySource(source string, skip, take int) ([]domain.JobStatusInfo, error)
	Metrics() (map[domain.JobStatus]int, error)
}

// MemoryStore is the in-memory JobStatusStore. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	byJobID  map[string]domain.JobStatusInfo
	byStatus map[domain.JobStatus]map[string]struct{}
	byType   map[string]map[string]struct{}
	bySource map[string]map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byJobID:  make(map[string]domain.JobStatusInfo),
		byStatus: make(map[domain.JobStatus]map[string]struct{}),
		byType:   make(map[string]map[string]struct{}),
		bySource: make(map[string]map[string]struct{}),
	}
}

// Set writes or overwrites the status record for info.JobID, maintaining
// every secondary index.
func (s *MemoryStore) Set(info domain.JobStatusInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byJobID[info.JobID]; ok {
		s.unindexLocked(existing)
	}
	s.byJobID[info.JobID] = info
	s.indexLocked(info)
	return nil
}

// Get returns the status record for jobID.
func (s *MemoryStore) Get(jobID string) (domain.JobStatusInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.byJobID[jobID]
	return info, ok, nil
}

// Delete removes the status record for jobID, if present.
func (s *MemoryStore) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byJobID[jobID]; ok {
		s.unindexLocked(existing)
		delete(s.byJobID, jobID)
	}
	return nil
}

// ListByStatus returns a page of JobStatusInfo for the given status,
// ordered by descending StartedAt.
func (s *MemoryStore) ListByStatus(status domain.JobStatus, skip, take int) ([]domain.JobStatusInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.collectLocked(s.byStatus[status]), skip, take), nil
}

// ListByType returns a page of JobStatusInfo for the given job type,
// ordered by descending StartedAt.
func (s *MemoryStore) ListByType(jobType string, skip, take int) ([]domain.JobStatusInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.collectLocked(s.byType[jobType]), skip, take), nil
}

// ListBySource returns a page of JobStatusInfo for the given source,
// ordered by descending StartedAt.
func (s *MemoryStore) ListBySource(source string, skip, take int) ([]domain.JobStatusInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.collectLocked(s.bySource[source]), skip, take), nil
}

// Metrics returns the aggregate count of jobs per status.
func (s *MemoryStore) Metrics() (map[domain.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.JobStatus]int, len(s.byStatus))
	for status, ids := range s.byStatus {
		out[status] = len(ids)
	}
	return out, nil
}

func (s *MemoryStore) indexLocked(info domain.JobStatusInfo) {
	addTo(s.byStatus, info.Status, info.JobID)
	addTo(s.byType, info.Type, info.JobID)
	if info.Source != "" {
		addTo(s.bySource, info.Source, info.JobID)
	}
}

func (s *MemoryStore) unindexLocked(info domain.JobStatusInfo) {
	removeFrom(s.byStatus, info.Status, info.JobID)
	removeFrom(s.byType, info.Type, info.JobID)
	if info.Source != "" {
		removeFrom(s.bySource, info.Source, info.JobID)
	}
}

func (s *MemoryStore) collectLocked(ids map[string]struct{}) []domain.JobStatusInfo {
	out := make([]domain.JobStatusInfo, 0, len(ids))
	for id := range ids {
		out = append(out, s.byJobID[id])
	}
	return out
}

// addTo is generic over the index's key type so it serves both
// map[domain.JobStatus]map[string]struct{} and map[string]map[string]struct{}.
func addTo[K comparable](index map[K]map[string]struct{}, key K, jobID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[jobID] = struct{}{}
}

func removeFrom[K comparable](index map[K]map[string]struct{}, key K, jobID string) {
	if set, ok := index[key]; ok {
		delete(set, jobID)
	}
}

func paginate(items []domain.JobStatusInfo, skip, take int) []domain.JobStatusInfo {
	sort.Slice(items, func(i, j int) bool {
		ti, tj := items[i].StartedAt, items[j].StartedAt
		switch {
		case ti == nil && tj == nil:
			return items[i].JobID < items[j].JobID
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if skip >= len(items) {
		return []domain.JobStatusInfo{}
	}
	end := skip + take
	if take <= 0 || end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
