package core

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"yaami/config"
	"yaami/protocols"
)

// fakeBackend is the remote side shared by every session the opener builds.
type fakeBackend struct {
	mu sync.Mutex

	kind     protocols.Kind
	files    map[string][]byte
	listings map[string][]protocols.DirectoryEntry

	openErr       error
	connectErr    error
	disconnectErr error
	probeErr      error
	itemErr       map[string]error // download failures by remote path

	opens, connects, disconnects int
	calls                        []string
	raws                         []json.RawMessage
}

func newFakeBackend(kind protocols.Kind) *fakeBackend {
	return &fakeBackend{
		kind:     kind,
		files:    map[string][]byte{},
		listings: map[string][]protocols.DirectoryEntry{},
		itemErr:  map[string]error{},
	}
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *fakeBackend) opener() Opener {
	return func(kind protocols.Kind, raw json.RawMessage) (protocols.FileSystem, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.raws = append(b.raws, raw)
		if b.openErr != nil {
			return nil, b.openErr
		}
		b.opens++
		return &fakeSession{b: b}, nil
	}
}

func (b *fakeBackend) counts() (opens, connects, disconnects int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens, b.connects, b.disconnects
}

func (b *fakeBackend) profile() config.Profile {
	return config.Profile{ID: "p1", Name: "fake", Kind: b.kind, Config: json.RawMessage(`{}`)}
}

type fakeSession struct {
	b         *fakeBackend
	connected bool
}

func (s *fakeSession) Kind() protocols.Kind { return s.b.kind }

func (s *fakeSession) Connect(context.Context) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.connects++
	if s.b.connectErr != nil {
		return &protocols.Error{Kind: protocols.ErrConnection, Backend: s.b.kind, Op: "dial", Err: s.b.connectErr}
	}
	s.connected = true
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.disconnects++
	s.connected = false
	if s.b.disconnectErr != nil {
		return &protocols.Error{Kind: protocols.ErrCleanup, Backend: s.b.kind, Op: "disconnect", Err: s.b.disconnectErr}
	}
	return nil
}

func (s *fakeSession) List(_ context.Context, dir string) ([]protocols.DirectoryEntry, error) {
	s.b.record("list " + dir)
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	entries, ok := s.b.listings[dir]
	if !ok {
		return nil, &protocols.Error{Kind: protocols.ErrList, Backend: s.b.kind, Op: "list", Path: dir, Err: fs.ErrNotExist}
	}
	return append([]protocols.DirectoryEntry(nil), entries...), nil
}

func (s *fakeSession) Download(_ context.Context, remotePath, localPath string) error {
	s.b.record("download " + remotePath)
	s.b.mu.Lock()
	err := s.b.itemErr[remotePath]
	data, ok := s.b.files[remotePath]
	s.b.mu.Unlock()

	if err == nil && !ok {
		err = fs.ErrNotExist
	}
	if err != nil {
		return &protocols.Error{Kind: protocols.ErrTransfer, Backend: s.b.kind, Op: "download", Path: remotePath, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0644)
}

func (s *fakeSession) Upload(_ context.Context, localPath, remotePath string) error {
	s.b.record("upload " + remotePath)
	data, err := os.ReadFile(localPath)
	if err != nil {
		return &protocols.Error{Kind: protocols.ErrTransfer, Backend: s.b.kind, Op: "upload", Path: remotePath, Err: err}
	}
	s.b.mu.Lock()
	s.b.files[remotePath] = data
	s.b.mu.Unlock()
	return nil
}

func (s *fakeSession) Remove(_ context.Context, remotePath string) error {
	s.b.record("delete " + remotePath)
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.files[remotePath]; !ok {
		return &protocols.Error{Kind: protocols.ErrTransfer, Backend: s.b.kind, Op: "delete", Path: remotePath, Err: fs.ErrNotExist}
	}
	delete(s.b.files, remotePath)
	return nil
}

func (s *fakeSession) MkdirAll(_ context.Context, dir string) error {
	s.b.record("mkdir " + dir)
	return nil
}

// probingSession adds the Prober extension.
type probingSession struct {
	*fakeSession
}

func (s probingSession) Probe(context.Context) error {
	s.b.record("probe")
	if s.b.probeErr != nil {
		return &protocols.Error{Kind: protocols.ErrConnection, Backend: s.b.kind, Op: "list buckets", Err: s.b.probeErr}
	}
	return nil
}

func (s probingSession) ListBuckets(context.Context) ([]string, error) {
	s.b.record("buckets")
	return []string{"alpha", "beta"}, nil
}

func (b *fakeBackend) probingOpener() Opener {
	open := b.opener()
	return func(kind protocols.Kind, raw json.RawMessage) (protocols.FileSystem, error) {
		fsys, err := open(kind, raw)
		if err != nil {
			return nil, err
		}
		return probingSession{fsys.(*fakeSession)}, nil
	}
}

var errBoom = errors.New("boom")

func newTestService(b *fakeBackend) (*Service, *TransferManager) {
	svc := NewService(NewSessionManager(b.opener()))
	return svc, NewTransferManager(svc)
}
