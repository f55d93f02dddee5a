package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"yaami/protocols"
)

// Version is the application version recorded in the metadata file. It is
// set at build time with -ldflags "-X yaami/config.Version=...".
var Version = "dev"

var ErrDuplicateID = errors.New("duplicate connection id")

// Metadata describes the installation. It lives next to the connection
// store and is refreshed whenever the store is written.
type Metadata struct {
	Version          string    `json:"version"`
	FirstInstall     time.Time `json:"firstInstall"`
	LastOpened       time.Time `json:"lastOpened"`
	TotalConnections int       `json:"totalConnections"`
}

// Backup is the portable form of the connection store.
type Backup struct {
	Connections []Profile `json:"connections"`
	Metadata    Metadata  `json:"metadata"`
}

func (s *Store) metadataPath() string {
	return filepath.Join(filepath.Dir(s.Path()), "metadata.json")
}

// Metadata returns the stored metadata. Before the first write it describes
// a fresh installation.
func (s *Store) Metadata() (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMetadata()
}

func (s *Store) readMetadata() (Metadata, error) {
	data, err := os.ReadFile(s.metadataPath())
	if errors.Is(err, os.ErrNotExist) {
		ts := s.now().UTC()
		return Metadata{Version: Version, FirstInstall: ts, LastOpened: ts, TotalConnections: len(s.profiles)}, nil
	}
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", s.metadataPath(), err)
	}
	return m, nil
}

// writeMetadata refreshes the metadata file. Callers hold s.mu.
func (s *Store) writeMetadata() error {
	m, err := s.readMetadata()
	if err != nil {
		// a damaged file is replaced
		m = Metadata{FirstInstall: s.now().UTC()}
	}
	m.Version = Version
	m.LastOpened = s.now().UTC()
	m.TotalConnections = len(s.profiles)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.metadataPath(), data, 0644)
}

// Export returns every profile, credentials included, with the metadata.
func (s *Store) Export() (Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.readMetadata()
	if err != nil {
		return Backup{}, err
	}
	return Backup{Connections: append([]Profile(nil), s.profiles...), Metadata: m}, nil
}

// Import loads the connections of b. With merge, a profile whose id is
// already stored replaces it (its kind must match) and the others are
// appended; without merge the store is replaced. Ids must be unique within
// b; missing ids are generated. Nothing is written unless every profile is
// valid. Import returns the number of profiles taken from b.
func (s *Store) Import(b Backup, merge bool) (int, error) {
	seen := make(map[string]bool, len(b.Connections))
	for i, p := range b.Connections {
		if p.Name == "" {
			return 0, fmt.Errorf("connection %d: name is required", i)
		}
		if _, err := protocols.ParseKind(string(p.Kind)); err != nil {
			return 0, fmt.Errorf("connection %s: %w", p.Name, err)
		}
		if _, err := protocols.New(p.Kind, p.Config); err != nil {
			return 0, fmt.Errorf("connection %s: %w", p.Name, err)
		}
		if p.ID == "" {
			continue
		}
		if seen[p.ID] {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var profiles []Profile
	index := make(map[string]int)
	if merge {
		profiles = append(profiles, s.profiles...)
		for i, p := range profiles {
			index[p.ID] = i
		}
	}

	ts := s.now().UTC()
	for _, p := range b.Connections {
		if p.ID == "" {
			p.ID = s.newID()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = ts
		}
		if p.LastUsed.IsZero() {
			p.LastUsed = p.CreatedAt
		}

		i, ok := index[p.ID]
		if !ok {
			index[p.ID] = len(profiles)
			profiles = append(profiles, p)
			continue
		}
		if existing := profiles[i]; existing.Kind != p.Kind {
			return 0, fmt.Errorf("%w: %s is %s", ErrKindImmutable, existing.Name, existing.Kind)
		}
		profiles[i] = p
	}

	s.profiles = profiles
	return len(b.Connections), s.save()
}
