package inventory

import (
	"sort"
	"sync"
	"time"

	"github.com/norncorp/mimir/internal/model"
)

// LinkStore holds the known links
type LinkStore struct {
	mu        sync.RWMutex
	links     map[model.LinkKey]model.Link
	listeners []func(model.LinkEvent)
	now       func() time.Time
}

// NewLinkStore creates an empty LinkStore
func NewLinkStore() *LinkStore {
	return &LinkStore{
		links: make(map[model.LinkKey]model.Link),
		now:   time.Now,
	}
}

// OnEvent registers a callback invoked after every change
func (s *LinkStore) OnEvent(fn func(model.LinkEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Upsert adds a link or updates the type and state of a known one. It
// reports whether anything changed.
func (s *LinkStore) Upsert(link model.Link) bool {
	s.mu.Lock()
	old, exists := s.links[link.Key()]
	if exists && old == link {
		s.mu.Unlock()
		return false
	}
	s.links[link.Key()] = link
	listeners := s.listeners
	s.mu.Unlock()

	event := model.LinkEvent{Type: model.LinkAdded, Link: link, At: s.now()}
	if exists {
		event.Type = model.LinkUpdated
	}
	notify(listeners, event)
	return true
}

// Remove forgets a link. It reports whether the link was known.
func (s *LinkStore) Remove(key model.LinkKey) bool {
	s.mu.Lock()
	link, ok := s.links[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.links, key)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, model.LinkEvent{Type: model.LinkRemoved, Link: link, At: s.now()})
	return true
}

// RemoveDevice forgets every link with an end on the device and returns how
// many were removed.
func (s *LinkStore) RemoveDevice(device model.DeviceID) int {
	removed := 0
	for _, l := range s.Links() {
		if l.Src.Device == device || l.Dst.Device == device {
			if s.Remove(l.Key()) {
				removed++
			}
		}
	}
	return removed
}

// ReplaceEgress makes links the complete set of links leaving device: links
// from the device that are not listed are removed, the others are upserted.
func (s *LinkStore) ReplaceEgress(device model.DeviceID, links []model.Link) {
	keep := make(map[model.LinkKey]struct{}, len(links))
	for _, l := range links {
		keep[l.Key()] = struct{}{}
	}

	for _, l := range s.Links() {
		if l.Src.Device != device {
			continue
		}
		if _, ok := keep[l.Key()]; !ok {
			s.Remove(l.Key())
		}
	}

	for _, l := range links {
		if l.Src.Device == device {
			s.Upsert(l)
		}
	}
}

// Links returns every known link, ordered by source then destination
func (s *LinkStore) Links() []model.Link {
	return s.filter(func(model.Link) bool { return true })
}

// ActiveLinks returns the links in the active state
func (s *LinkStore) ActiveLinks() []model.Link {
	return s.filter(model.Link.IsActive)
}

func (s *LinkStore) filter(keep func(model.Link) bool) []model.Link {
	s.mu.RLock()
	result := make([]model.Link, 0, len(s.links))
	for _, l := range s.links {
		if keep(l) {
			result = append(result, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Src != result[j].Src {
			return result[i].Src.Less(result[j].Src)
		}
		return result[i].Dst.Less(result[j].Dst)
	})
	return result
}
