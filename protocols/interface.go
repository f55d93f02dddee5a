package protocols

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies a backend protocol.
type Kind string

const (
	KindS3   Kind = "s3"
	KindFTP  Kind = "ftp"
	KindSFTP Kind = "sftp"
	KindSMB  Kind = "smb"
)

// Kinds lists every supported backend in display order.
var Kinds = []Kind{KindS3, KindFTP, KindSFTP, KindSMB}

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend type: %s", s)
}

// DirectoryEntry is one child of a listed directory or prefix.
// Size and ModTime carry no remote meaning for synthetic object-store directories.
type DirectoryEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"` // backend-native path or object key
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modifiedAt"`
	IsDir   bool      `json:"isDirectory"`
}

// FileSystem is the contract every remote backend implements.
//
// An instance is a single session: Connect establishes it, Disconnect tears it
// down. Instances are not safe for concurrent use and must not be reused
// across unrelated operations.
type FileSystem interface {
	Kind() Kind

	// Connect establishes and authenticates the session. Failures are
	// reported as ErrConnection.
	Connect(ctx context.Context) error

	// Disconnect releases the session. It is safe to call on a session that
	// never connected or is already broken. Failures are reported as
	// ErrCleanup and are meant to be logged, not propagated.
	Disconnect() error

	// List returns the immediate children of dir (non-recursive).
	List(ctx context.Context, dir string) ([]DirectoryEntry, error)

	// Download streams remotePath into localPath, overwriting it.
	Download(ctx context.Context, remotePath, localPath string) error

	// Upload streams localPath into remotePath, overwriting it.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Remove deletes a single remote file.
	Remove(ctx context.Context, remotePath string) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(ctx context.Context, dir string) error
}

// Prober is implemented by backends whose Connect performs no network I/O.
// Probe verifies reachability and credentials for an explicit connection test.
type Prober interface {
	Probe(ctx context.Context) error
}
