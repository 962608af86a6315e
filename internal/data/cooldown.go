package data

import (
	"sync"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// cooldownMap is the in-process last-order table. Entries are evicted by Sweep.
type cooldownMap struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldownRepo creates an empty cool-down table
func NewCooldownRepo() repo.CooldownRepo {
	return &cooldownMap{last: make(map[string]time.Time)}
}

func (m *cooldownMap) Last(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.last[userID]
	return t, ok
}

func (m *cooldownMap) Touch(userID string, t time.Time) {
	m.mu.Lock()
	m.last[userID] = t
	m.mu.Unlock()
}

func (m *cooldownMap) Sweep(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.last {
		if t.Before(before) {
			delete(m.last, id)
			n++
		}
	}
	return n
}

func (m *cooldownMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}
