package remote

import (
	"sync"
	"time"

	"iscpctl/internal/device"
)

// Shared guards a Registry for callers that use it from several goroutines.
// Discovery holds the write lock for its whole duration, so lookups wait
// until the new list is in place.
type Shared struct {
	mu  sync.RWMutex
	reg *Registry
}

// NewShared wraps r.
func NewShared(r *Registry) *Shared {
	return &Shared{reg: r}
}

// Discover runs Registry.Discover under the write lock.
func (s *Shared) Discover(timeout time.Duration) ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reg.Discover(timeout); err != nil {
		return nil, err
	}
	return s.reg.Devices(), nil
}

// Device returns the device at index.
func (s *Shared) Device(index int) (device.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.Device(index)
}

// Devices returns a copy of the device list.
func (s *Shared) Devices() []device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.Devices()
}

// Serialize renders the current list as TOML.
func (s *Shared) Serialize() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.Serialize()
}

// SaveTo persists the current list. Saves are serialised with each other
// and with discovery.
func (s *Shared) SaveTo(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.SaveTo(path)
}

// Replace swaps in a different registry.
func (s *Shared) Replace(r *Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = r
}
