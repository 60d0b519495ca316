package storage

import (
	"sync"
	"time"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the outcome of the last write to a result store.
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthManager manages storage health status in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]Health
	now    func() time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]Health),
		now:    time.Now,
	}
}

// Record stores the outcome of a write to the named store.
func (hm *HealthManager) Record(store string, err error, message string) {
	h := Health{LastCheck: hm.now(), Status: StatusHealthy, Message: message}
	if err != nil {
		h.Status = StatusUnhealthy
		h.Error = err.Error()
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[store] = h
}

// GetHealth retrieves the health status for a specific storage backend
func (hm *HealthManager) GetHealth(store string) (Health, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	h, exists := hm.health[store]
	return h, exists
}

// GetAllHealth retrieves all storage health statuses
func (hm *HealthManager) GetAllHealth() map[string]Health {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]Health, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether the last write to store succeeded within maxAge.
func (hm *HealthManager) IsHealthy(store string, maxAge time.Duration) bool {
	h, exists := hm.GetHealth(store)
	if !exists {
		return false
	}

	if hm.now().Sub(h.LastCheck) > maxAge {
		return false
	}

	return h.Status == StatusHealthy
}
