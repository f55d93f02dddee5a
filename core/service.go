package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"yaami/config"
	"yaami/protocols"
)

// Result is the outcome of a connection test.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type bucketLister interface {
	ListBuckets(ctx context.Context) ([]string, error)
}

// Service exposes one scoped session per call for every backend operation.
type Service struct {
	sessions *SessionManager
}

func NewService(sessions *SessionManager) *Service {
	return &Service{sessions: sessions}
}

// TestConnection connects and disconnects. Backends whose Connect is local
// are probed instead.
func (s *Service) TestConnection(ctx context.Context, p config.Profile) Result {
	err := s.sessions.WithSession(ctx, p, "test", func(ctx context.Context, fsys protocols.FileSystem) error {
		if prober, ok := fsys.(protocols.Prober); ok {
			return prober.Probe(ctx)
		}
		return nil
	})
	if err != nil {
		return Result{Success: false, Message: Message(err)}
	}
	return Result{Success: true, Message: "Connection successful"}
}

func (s *Service) ListFiles(ctx context.Context, p config.Profile, dir string) ([]protocols.DirectoryEntry, error) {
	var entries []protocols.DirectoryEntry
	err := s.sessions.WithSession(ctx, p, "list", func(ctx context.Context, fsys protocols.FileSystem) error {
		var err error
		entries, err = fsys.List(ctx, dir)
		return err
	})
	return entries, err
}

// ListObjects lists prefix in bucket. An empty bucket keeps the profile's.
func (s *Service) ListObjects(ctx context.Context, p config.Profile, bucket, prefix string) ([]protocols.DirectoryEntry, error) {
	if p.Kind != protocols.KindS3 {
		return nil, fmt.Errorf("%s: buckets are only available on %s connections", p.Name, protocols.KindS3)
	}
	if bucket != "" {
		raw, err := withBucket(p.Config, bucket)
		if err != nil {
			return nil, err
		}
		p.Config = raw
	}
	return s.ListFiles(ctx, p, prefix)
}

func (s *Service) ListBuckets(ctx context.Context, p config.Profile) ([]string, error) {
	var names []string
	err := s.sessions.WithSession(ctx, p, "list buckets", func(ctx context.Context, fsys protocols.FileSystem) error {
		bl, ok := fsys.(bucketLister)
		if !ok {
			return fmt.Errorf("%s: buckets are only available on %s connections", p.Name, protocols.KindS3)
		}
		var err error
		names, err = bl.ListBuckets(ctx)
		return err
	})
	return names, err
}

func (s *Service) DownloadFile(ctx context.Context, p config.Profile, remotePath, localPath string) error {
	return s.sessions.WithSession(ctx, p, "download", func(ctx context.Context, fsys protocols.FileSystem) error {
		return fsys.Download(ctx, remotePath, localPath)
	})
}

func (s *Service) UploadFile(ctx context.Context, p config.Profile, localPath, remotePath string) error {
	return s.sessions.WithSession(ctx, p, "upload", func(ctx context.Context, fsys protocols.FileSystem) error {
		return fsys.Upload(ctx, localPath, remotePath)
	})
}

func (s *Service) DeleteFile(ctx context.Context, p config.Profile, remotePath string) error {
	return s.sessions.WithSession(ctx, p, "delete", func(ctx context.Context, fsys protocols.FileSystem) error {
		return fsys.Remove(ctx, remotePath)
	})
}

func (s *Service) CreateDirectory(ctx context.Context, p config.Profile, dir string) error {
	return s.sessions.WithSession(ctx, p, "mkdir", func(ctx context.Context, fsys protocols.FileSystem) error {
		return fsys.MkdirAll(ctx, dir)
	})
}

// Message renders err for display, prefixed with its contract kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pe *protocols.Error
	if errors.As(err, &pe) && pe.Kind != nil {
		return fmt.Sprintf("%v: %v", pe.Kind, err)
	}
	return err.Error()
}

func withBucket(raw json.RawMessage, bucket string) (json.RawMessage, error) {
	fields := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("parse s3 config: %w", err)
		}
	}
	fields["bucket"] = bucket
	return json.Marshal(fields)
}
