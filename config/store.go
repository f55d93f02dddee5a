package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"yaami/protocols"
)

var (
	ErrProfileNotFound = errors.New("connection not found")
	ErrKindImmutable   = errors.New("connection type cannot be changed")
	ErrAmbiguousName   = errors.New("connection name is ambiguous")
)

// Profile is a saved connection. Config is the backend-specific bundle,
// decoded by protocols.New.
type Profile struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      protocols.Kind  `json:"type"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"createdAt"`
	LastUsed  time.Time       `json:"lastUsed"`
}

// Store keeps connection profiles in a JSON file.
type Store struct {
	path     string
	profiles []Profile
	mu       sync.RWMutex

	now   func() time.Time
	newID func() string
}

func NewStore(path string) *Store {
	return &Store{
		path:  path,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the profiles from disk. A missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.profiles = nil
		return nil
	}
	if err != nil {
		return err
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.profiles = profiles
	return nil
}

// save writes the profiles through a temp file so a crash never leaves a
// truncated store, then refreshes the metadata. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.profiles, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	// profiles hold credentials
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	return s.writeMetadata()
}

// List returns a copy of all profiles in insertion order.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Profile(nil), s.profiles...)
}

// Get finds a profile by id, or else by its unique name.
func (s *Store) Get(ref string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.ID == ref {
			return p, nil
		}
	}

	var found []Profile
	for _, p := range s.profiles {
		if p.Name == ref {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return Profile{}, fmt.Errorf("%w: %s", ErrAmbiguousName, ref)
	}
}

// Put creates p when its ID is empty, otherwise replaces the stored profile
// with the same ID. The backend kind of an existing profile never changes.
// The store is written to disk before Put returns.
func (s *Store) Put(p Profile) (Profile, error) {
	if p.Name == "" {
		return Profile{}, errors.New("connection name is required")
	}
	if _, err := protocols.ParseKind(string(p.Kind)); err != nil {
		return Profile{}, err
	}
	if _, err := protocols.New(p.Kind, p.Config); err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if p.ID == "" {
		p.ID = s.newID()
		p.CreatedAt = ts
		p.LastUsed = ts
		s.profiles = append(s.profiles, p)
		return p, s.save()
	}

	for i, existing := range s.profiles {
		if existing.ID != p.ID {
			continue
		}
		if existing.Kind != p.Kind {
			return Profile{}, fmt.Errorf("%w: %s is %s", ErrKindImmutable, existing.Name, existing.Kind)
		}
		p.CreatedAt = existing.CreatedAt
		p.LastUsed = ts
		s.profiles[i] = p
		return p, s.save()
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, p.ID)
}

// Delete removes the profile with the given id and persists the store.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.profiles {
		if p.ID == id {
			s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
			return s.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}
