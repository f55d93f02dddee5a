package core

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"yaami/protocols"
)

// Record is one remote file a schedule has downloaded.
type Record struct {
	LocalPath    string    `json:"localPath,omitempty"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"modifiedAt"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// History remembers, per schedule, which remote files were already
// downloaded so later runs fetch only new or changed files.
type History struct {
	// schedule name -> remote path -> record
	Schedules map[string]map[string]Record `json:"schedules"`
	path      string
	mu        sync.RWMutex
	saveMu    sync.Mutex // one writer of the file at a time
}

func NewHistory(path string) *History {
	return &History{
		Schedules: make(map[string]map[string]Record),
		path:      path,
	}
}

// Load reads the history file. A missing file is an empty history.
func (h *History) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, h); err != nil {
		return err
	}
	if h.Schedules == nil {
		h.Schedules = make(map[string]map[string]Record)
	}
	return nil
}

// Save writes the history through a temporary file, so a concurrent reader
// or a crash never sees a partial file.
func (h *History) Save() error {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()

	h.mu.RLock()
	data, err := json.MarshalIndent(h, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return err
	}

	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, h.path)
}

// Seen reports whether e was downloaded by schedule with the same size and
// modification time.
func (h *History) Seen(schedule string, e protocols.DirectoryEntry) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.Schedules[schedule][e.Path]
	return ok && r.Size == e.Size && r.ModTime.Equal(e.ModTime)
}

// Add records that schedule downloaded e to localPath at the given time.
func (h *History) Add(schedule string, e protocols.DirectoryEntry, localPath string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Schedules[schedule] == nil {
		h.Schedules[schedule] = make(map[string]Record)
	}
	h.Schedules[schedule][e.Path] = Record{LocalPath: localPath, Size: e.Size, ModTime: e.ModTime, DownloadedAt: at}
}

// DownloadedBefore returns the records of schedule downloaded before cutoff,
// keyed by remote path.
func (h *History) DownloadedBefore(schedule string, cutoff time.Time) map[string]Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]Record)
	for remote, r := range h.Schedules[schedule] {
		if r.DownloadedAt.Before(cutoff) {
			out[remote] = r
		}
	}
	return out
}
