package middleware

import (
	"sync"
	"time"
)

type clientInfo struct {
	last  time.Time
	count int
}

// memoryWindow is the fixed-window counter used when Redis is not configured.
type memoryWindow struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
	now     func() time.Time
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{clients: make(map[string]*clientInfo), now: time.Now}
}

// incr counts a hit for key and returns the count in the current window.
func (m *memoryWindow) incr(key string, window time.Duration) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ci, ok := m.clients[key]
	if !ok || now.Sub(ci.last) > window {
		m.clients[key] = &clientInfo{last: now, count: 1}
		if len(m.clients) > 10000 {
			m.sweep(now, window)
		}
		return 1
	}
	ci.count++
	return int64(ci.count)
}

// чистим старые окна, чтобы map не рос бесконечно
func (m *memoryWindow) sweep(now time.Time, window time.Duration) {
	for k, ci := range m.clients {
		if now.Sub(ci.last) > window {
			delete(m.clients, k)
		}
	}
}
