package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"yaami/config"
	"yaami/protocols"
)

// DownloadState is the phase of an interactive single-file download.
type DownloadState int

const (
	Idle DownloadState = iota
	AwaitingDestination
	Transferring
	Succeeded
	Failed
)

func (s DownloadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDestination:
		return "awaiting destination"
	case Transferring:
		return "transferring"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("DownloadState(%d)", int(s))
}

var ErrDownloadBusy = errors.New("a download is already in progress")

// DestinationChooser asks for the local path to save entry to. An empty path
// means the user declined.
type DestinationChooser func(ctx context.Context, entry protocols.DirectoryEntry) (string, error)

// Download drives one interactive file download at a time.
type Download struct {
	service *Service
	choose  DestinationChooser

	mu        sync.Mutex
	state     DownloadState
	localPath string
	err       error
}

func NewDownload(service *Service, choose DestinationChooser) *Download {
	return &Download{service: service, choose: choose}
}

func (d *Download) State() DownloadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the failure of the last download, if it failed.
func (d *Download) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// LocalPath returns the destination of the last download.
func (d *Download) LocalPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.localPath
}

func (d *Download) set(s DownloadState, localPath string, err error) {
	d.mu.Lock()
	d.state = s
	d.localPath = localPath
	d.err = err
	d.mu.Unlock()
}

// Start asks for a destination and downloads entry there. Declining the
// destination returns to Idle without error. A transfer cannot be cancelled
// once it runs.
func (d *Download) Start(ctx context.Context, p config.Profile, entry protocols.DirectoryEntry) error {
	if entry.IsDir {
		return fmt.Errorf("%s is a directory", entry.Name)
	}

	d.mu.Lock()
	if d.state == AwaitingDestination || d.state == Transferring {
		d.mu.Unlock()
		return ErrDownloadBusy
	}
	d.state = AwaitingDestination
	d.localPath = ""
	d.err = nil
	d.mu.Unlock()

	dest, err := d.choose(ctx, entry)
	if err != nil {
		d.set(Idle, "", nil)
		return err
	}
	if dest == "" {
		d.set(Idle, "", nil)
		return nil
	}

	d.set(Transferring, dest, nil)
	// the transfer runs on a context that is never cancelled
	if err := d.service.DownloadFile(context.WithoutCancel(ctx), p, entry.Path, dest); err != nil {
		d.set(Failed, dest, err)
		return err
	}
	d.set(Succeeded, dest, nil)
	return nil
}

// Reset returns a finished download to Idle.
func (d *Download) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Succeeded || d.state == Failed {
		d.state = Idle
		d.localPath = ""
		d.err = nil
	}
}
