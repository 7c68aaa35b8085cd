package storage

import (
	"sort"
	"sync"
	"time"

	"can-telemetry-dashboard/internal/model"
)

// maxSamplesPerField bounds in-memory history; the oldest samples are
// evicted first. At one change per 100 ms cycle this holds several minutes
// of the busiest field.
const maxSamplesPerField = 4096

// MemoryStore is a threadsafe in-memory implementation of Store with
// bounded per-field retention.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]model.Sample // field -> ordered by time asc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]model.Sample)}
}

func (m *MemoryStore) SaveSample(s model.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := string(s.Field)
	sl := m.data[f]
	// the poller appends in time order, so the common case is a plain
	// append; an out-of-band writer pays for a positioned insert
	if n := len(sl); n == 0 || !s.Timestamp.Before(sl[n-1].Timestamp) {
		sl = append(sl, s)
	} else {
		i := sort.Search(n, func(i int) bool { return sl[i].Timestamp.After(s.Timestamp) })
		sl = append(sl, model.Sample{})
		copy(sl[i+1:], sl[i:])
		sl[i] = s
	}
	if len(sl) > maxSamplesPerField {
		sl = sl[len(sl)-maxSamplesPerField:]
	}
	m.data[f] = sl
	return nil
}

func (m *MemoryStore) ListFields() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for f := range m.data {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) QuerySamples(field string, start, end *time.Time) ([]model.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sl := m.data[field]
	if start == nil && end == nil {
		out := make([]model.Sample, len(sl))
		copy(out, sl)
		return out, nil
	}
	var out []model.Sample
	for _, s := range sl {
		if start != nil && s.Timestamp.Before(*start) {
			continue
		}
		if end != nil && s.Timestamp.After(*end) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
