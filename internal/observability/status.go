package observability

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the engine counters.
type Snapshot struct {
	Active        int       `json:"active"`
	Started       int64     `json:"started"`
	Completed     int64     `json:"completed"`
	Failed        int64     `json:"failed"`
	LastQuery     string    `json:"last_query,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Uptime        string    `json:"uptime"`
}

// Status tracks query execution across the process.
type Status struct {
	mu            sync.RWMutex
	active        map[string]string
	started       int64
	completed     int64
	failed        int64
	lastQuery     string
	lastHeartbeat time.Time
}

func NewStatus() *Status {
	return &Status{
		active:        make(map[string]string),
		lastHeartbeat: time.Now(),
	}
}

// Begin marks queryID as running.
func (s *Status) Begin(queryID, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[queryID] = query
	s.started++
	s.lastQuery = query
}

// End marks queryID as finished, successfully or not.
func (s *Status) End(queryID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[queryID]; !ok {
		return
	}
	delete(s.active, queryID)
	if err != nil {
		s.failed++
	} else {
		s.completed++
	}
}

// Heartbeat updates the last heartbeat time.
func (s *Status) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Active:        len(s.active),
		Started:       s.started,
		Completed:     s.completed,
		Failed:        s.failed,
		LastQuery:     s.lastQuery,
		LastHeartbeat: s.lastHeartbeat,
		Uptime:        time.Since(startTime).Round(time.Second).String(),
	}
}
