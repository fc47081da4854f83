package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
)

// Storage is the authoritative in-memory copy of every event. Each event
// has its own lock so mutations of one event are serialized while other
// events proceed independently. Callers only ever see copies.
type Storage struct {
	mu      sync.RWMutex
	saveMu  sync.Mutex
	events  map[string]*entry
	order   []string
	current string
	file    string
}

type entry struct {
	mu    sync.Mutex
	event models.Event
}

// NewStorage creates a new storage instance. When filePath is set the
// cache is warmed from it and Save writes back to it.
func NewStorage(filePath string) (*Storage, error) {
	s := &Storage{
		events: make(map[string]*entry),
		file:   filePath,
	}

	if filePath == "" {
		return s, nil
	}

	// Load existing data if file exists
	if _, err := os.Stat(filePath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("failed to load storage: %w", err)
		}
	}

	return s, nil
}

// Events returns a copy of every event in order.
func (s *Storage) Events() models.EventSet {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.events[id])
	}
	s.mu.RUnlock()

	events := make(models.EventSet, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		events = append(events, e.event.Clone())
		e.mu.Unlock()
	}
	return events
}

// Event returns a copy of one event.
func (s *Storage) Event(id string) (models.Event, error) {
	e, err := s.entry(id)
	if err != nil {
		return models.Event{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.event.Clone(), nil
}

// Update runs fn against a copy of the event under the event's lock and
// commits the copy only if fn succeeds.
func (s *Storage) Update(id string, fn func(*models.Event) error) (models.Event, error) {
	e, err := s.entry(id)
	if err != nil {
		return models.Event{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	draft := e.event.Clone()
	if err := fn(&draft); err != nil {
		return models.Event{}, err
	}
	e.event = draft
	return draft.Clone(), nil
}

// Put inserts an event or replaces it wholesale.
func (s *Storage) Put(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.events[event.ID]; ok {
		e.mu.Lock()
		e.event = event.Clone()
		e.mu.Unlock()
		return
	}
	s.events[event.ID] = &entry{event: event.Clone()}
	s.order = append(s.order, event.ID)
	if s.current == "" {
		s.current = event.ID
	}
}

// Retain drops every event not listed in ids and orders the rest as ids.
func (s *Storage) Retain(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.events[id]; ok && !keep[id] {
			keep[id] = true
			order = append(order, id)
		}
	}
	for id := range s.events {
		if !keep[id] {
			delete(s.events, id)
		}
	}
	s.order = order
	if !keep[s.current] {
		s.current = ""
		if len(order) > 0 {
			s.current = order[0]
		}
	}
}

// SetCurrent marks the event being viewed.
func (s *Storage) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return errs.NotFound("storage.SetCurrent", "event %s not found", id)
	}
	s.current = id
	return nil
}

// Current returns the event being viewed.
func (s *Storage) Current() (models.Event, error) {
	s.mu.RLock()
	id := s.current
	s.mu.RUnlock()

	if id == "" {
		return models.Event{}, errs.NotFound("storage.Current", "no current event")
	}
	return s.Event(id)
}

func (s *Storage) entry(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, errs.NotFound("storage", "event %s not found", id)
	}
	return e, nil
}

// Save saves the events to file
func (s *Storage) Save() error {
	if s.file == "" {
		return nil
	}

	// Snapshot under the save lock so the last writer also holds the
	// newest state.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := json.MarshalIndent(s.Events(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, s.file)
}

// Load loads events from file
func (s *Storage) Load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var events models.EventSet
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, e := range events {
		s.Put(e)
	}
	return nil
}
