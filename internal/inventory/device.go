// Package inventory keeps the devices and links currently known to the
// system and notifies listeners about every change.
package inventory

import (
	"sort"
	"sync"
	"time"

	"github.com/norncorp/mimir/internal/model"
)

// DeviceStore holds the known devices
type DeviceStore struct {
	mu        sync.RWMutex
	devices   map[model.DeviceID]model.Device
	listeners []func(model.DeviceEvent)
	now       func() time.Time
}

// NewDeviceStore creates an empty DeviceStore
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		devices: make(map[model.DeviceID]model.Device),
		now:     time.Now,
	}
}

// OnEvent registers a callback invoked after every change
func (s *DeviceStore) OnEvent(fn func(model.DeviceEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Upsert adds a device or updates a known one. It reports whether anything
// changed.
func (s *DeviceStore) Upsert(device model.Device) bool {
	s.mu.Lock()
	old, exists := s.devices[device.ID]
	if exists && old == device {
		s.mu.Unlock()
		return false
	}
	s.devices[device.ID] = device
	listeners := s.listeners
	s.mu.Unlock()

	event := model.DeviceEvent{Type: model.DeviceAdded, Device: device, At: s.now()}
	if exists {
		event.Type = model.DeviceUpdated
		if old.Available != device.Available {
			event.Type = model.DeviceAvailabilityChanged
		}
	}
	notify(listeners, event)
	return true
}

// SetAvailable changes the availability of a known device
func (s *DeviceStore) SetAvailable(id model.DeviceID, available bool) bool {
	s.mu.RLock()
	device, ok := s.devices[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	device.Available = available
	return s.Upsert(device)
}

// Remove forgets a device. It reports whether the device was known.
func (s *DeviceStore) Remove(id model.DeviceID) bool {
	s.mu.Lock()
	device, ok := s.devices[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.devices, id)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, model.DeviceEvent{Type: model.DeviceRemoved, Device: device, At: s.now()})
	return true
}

// Device returns a device by identifier
func (s *DeviceStore) Device(id model.DeviceID) (model.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	return d, ok
}

// Devices returns every known device, sorted by identifier
func (s *DeviceStore) Devices() []model.Device {
	s.mu.RLock()
	result := make([]model.Device, 0, len(s.devices))
	for _, d := range s.devices {
		result = append(result, d)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func notify[E any](listeners []func(E), event E) {
	for _, fn := range listeners {
		fn(event)
	}
}
