package series

import (
	"strings"
	"sync"
	"time"
)

// ChannelStatus records the outcome of a channel's most recent refresh.
// A channel with Valid=false keeps serving its last good series; the
// flag tells clients the data is stale.
type ChannelStatus struct {
	Valid       bool      `json:"valid"`
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

// Store defines the interface for storing field series
type Store interface {
	// Replace swaps in a freshly built series for the given key
	Replace(key string, s *FieldSeries)

	// Get returns the series for the given key, or nil if it doesn't exist
	Get(key string) (*FieldSeries, bool)

	// Delete removes the series for the given key
	Delete(key string) bool

	// DeleteChannel removes every series belonging to a channel
	DeleteChannel(channelID int) int

	// Keys returns all series keys
	Keys() []string

	// SetChannelStatus records the outcome of a channel refresh
	SetChannelStatus(channelID int, status ChannelStatus)

	// GetChannelStatus returns the refresh status for a channel
	GetChannelStatus(channelID int) (ChannelStatus, bool)
}

// MemStore is an in-memory implementation of Store
type MemStore struct {
	mu       sync.RWMutex
	series   map[string]*FieldSeries
	statuses map[int]ChannelStatus
	health   *HealthMetrics
}

// NewMemStore creates a new in-memory store
func NewMemStore() *MemStore {
	return NewMemStoreWithHealth(NewHealthMetrics())
}

// NewMemStoreWithHealth creates a new in-memory store with shared health metrics
func NewMemStoreWithHealth(health *HealthMetrics) *MemStore {
	return &MemStore{
		series:   make(map[string]*FieldSeries),
		statuses: make(map[int]ChannelStatus),
		health:   health,
	}
}

// Replace swaps in a freshly built series for the given key. The old
// series is discarded wholesale; partial merges never occur.
func (m *MemStore) Replace(key string, s *FieldSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.series[key]; !exists {
		m.health.IncrementSeriesCount()
	}
	m.series[key] = s
	m.health.RecordPointsStored(int64(s.Len()))
}

// Get returns the series for the given key, or nil if it doesn't exist
func (m *MemStore) Get(key string) (*FieldSeries, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.series[key]
	return s, exists
}

// Delete removes the series for the given key
func (m *MemStore) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.series[key]; exists {
		delete(m.series, key)
		m.health.DecrementSeriesCount()
		return true
	}
	return false
}

// DeleteChannel removes every series belonging to a channel and its
// status entry, returning the number of series removed
func (m *MemStore) DeleteChannel(channelID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := ChannelPrefix(channelID)
	removed := 0
	for key := range m.series {
		if strings.HasPrefix(key, prefix) {
			delete(m.series, key)
			m.health.DecrementSeriesCount()
			removed++
		}
	}
	delete(m.statuses, channelID)
	return removed
}

// Keys returns all series keys
func (m *MemStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.series))
	for key := range m.series {
		keys = append(keys, key)
	}
	return keys
}

// SetChannelStatus records the outcome of a channel refresh
func (m *MemStore) SetChannelStatus(channelID int, status ChannelStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[channelID] = status
}

// GetChannelStatus returns the refresh status for a channel
func (m *MemStore) GetChannelStatus(channelID int) (ChannelStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.statuses[channelID]
	return status, exists
}

// GetHealth returns the health metrics for the store
func (m *MemStore) GetHealth() *HealthMetrics {
	return m.health
}

// GetHealthSnapshot returns a snapshot of current health metrics
func (m *MemStore) GetHealthSnapshot() HealthSnapshot {
	return m.health.GetSnapshot()
}
