package core

import (
	"context"
	"fmt"
	"path"
	"sync"

	"yaami/config"
	"yaami/protocols"
)

// Browser holds the displayed listing of one connection and the entries
// selected in it. The selection refers to indices of the current listing and
// is dropped whenever the listing changes.
type Browser struct {
	service  *Service
	transfer *TransferManager
	profile  config.Profile

	mu        sync.Mutex
	path      string
	entries   []protocols.DirectoryEntry
	selection []int // indices in selection order
}

func NewBrowser(service *Service, transfer *TransferManager, profile config.Profile) *Browser {
	return &Browser{service: service, transfer: transfer, profile: profile}
}

// Path returns the directory of the current listing.
func (b *Browser) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Entries returns a copy of the current listing.
func (b *Browser) Entries() []protocols.DirectoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocols.DirectoryEntry(nil), b.entries...)
}

// SetListing replaces the listing and clears the selection.
func (b *Browser) SetListing(dir string, entries []protocols.DirectoryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = dir
	b.entries = entries
	b.selection = nil
}

// Navigate lists dir and makes it the current listing. On failure the current
// listing and selection are kept.
func (b *Browser) Navigate(ctx context.Context, dir string) error {
	entries, err := b.service.ListFiles(ctx, b.profile, dir)
	if err != nil {
		return err
	}
	b.SetListing(dir, entries)
	return nil
}

// Refresh lists the current directory again.
func (b *Browser) Refresh(ctx context.Context) error {
	return b.Navigate(ctx, b.Path())
}

// Enter navigates into the directory at index i.
func (b *Browser) Enter(ctx context.Context, i int) error {
	b.mu.Lock()
	if i < 0 || i >= len(b.entries) {
		b.mu.Unlock()
		return fmt.Errorf("no entry at index %d", i)
	}
	e := b.entries[i]
	b.mu.Unlock()

	if !e.IsDir {
		return fmt.Errorf("%s is not a directory", e.Name)
	}
	return b.Navigate(ctx, e.Path)
}

// Up navigates to the parent of the current directory.
func (b *Browser) Up(ctx context.Context) error {
	cur := b.Path()
	if b.profile.Kind == protocols.KindS3 {
		return b.Navigate(ctx, parentPrefix(cur))
	}
	return b.Navigate(ctx, path.Dir(protocols.NormalizeDir(cur)))
}

// Toggle flips the selection of the entry at index i.
func (b *Browser) Toggle(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.entries) {
		return fmt.Errorf("no entry at index %d", i)
	}
	for n, sel := range b.selection {
		if sel == i {
			b.selection = append(b.selection[:n], b.selection[n+1:]...)
			return nil
		}
	}
	b.selection = append(b.selection, i)
	return nil
}

// ToggleAll selects every file of the listing, or clears the selection when
// all files are already selected.
func (b *Browser) ToggleAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var files []int
	for i, e := range b.entries {
		if !e.IsDir {
			files = append(files, i)
		}
	}

	selected := make(map[int]bool, len(b.selection))
	for _, i := range b.selection {
		selected[i] = true
	}
	all := len(files) > 0
	for _, i := range files {
		if !selected[i] {
			all = false
			break
		}
	}

	if all {
		b.selection = nil
		return
	}
	for _, i := range files {
		if !selected[i] {
			b.selection = append(b.selection, i)
		}
	}
}

func (b *Browser) ClearSelection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection = nil
}

// Selected returns the selected entries in selection order.
func (b *Browser) Selected() []protocols.DirectoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]protocols.DirectoryEntry, 0, len(b.selection))
	for _, i := range b.selection {
		out = append(out, b.entries[i])
	}
	return out
}

// DownloadSelected downloads the selected files into destDir and clears the
// selection.
func (b *Browser) DownloadSelected(ctx context.Context, destDir string) Outcome {
	out := b.transfer.DownloadBatch(ctx, b.profile, b.Selected(), destDir)
	b.ClearSelection()
	return out
}

func parentPrefix(prefix string) string {
	p := protocols.ObjectPrefix(prefix)
	if p == "" {
		return ""
	}
	parent := path.Dir(p[:len(p)-1])
	if parent == "." {
		return ""
	}
	return parent + "/"
}
