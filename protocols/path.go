package protocols

import (
	"path"
	"strings"
	"time"
)

// objectDelimiter groups object keys into synthetic directories.
const objectDelimiter = "/"

// JoinPath joins a directory and an entry name into a clean absolute
// slash-separated path. JoinPath("/a/", "b") is "/a/b".
func JoinPath(dir, name string) string {
	return path.Join("/", dir, name)
}

// NormalizeDir cleans a directory path for hierarchical backends.
// The empty path is the root.
func NormalizeDir(dir string) string {
	return path.Join("/", dir)
}

// dirEntry builds the entry for name listed inside dir. It reports false for
// names that do not denote a child of dir (empty, "." or "..").
func dirEntry(dir, name string, size int64, modTime time.Time, isDir bool) (DirectoryEntry, bool) {
	if name == "" || name == "." || name == ".." {
		return DirectoryEntry{}, false
	}
	p := JoinPath(dir, name)
	if p == NormalizeDir(dir) {
		return DirectoryEntry{}, false
	}
	if isDir {
		size = 0
	}
	return DirectoryEntry{
		Name:    name,
		Path:    p,
		Size:    size,
		ModTime: modTime,
		IsDir:   isDir,
	}, true
}

// ObjectPrefix converts a browsing path into an object-store key prefix.
// The root maps to "", every other prefix ends with the delimiter.
func ObjectPrefix(dir string) string {
	p := strings.TrimLeft(dir, objectDelimiter)
	if p == "" {
		return ""
	}
	if !strings.HasSuffix(p, objectDelimiter) {
		p += objectDelimiter
	}
	return p
}

// ObjectName returns the display name of an object key: its last non-empty
// segment.
func ObjectName(key string) string {
	parts := strings.Split(key, objectDelimiter)
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return key
}

// Object is a single key returned by an object-store listing.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectListing is one delimiter-grouped page of an object-store listing.
type ObjectListing struct {
	Prefix         string
	CommonPrefixes []string
	Objects        []Object
}

// FromObjectListing turns a delimiter-grouped listing into directory entries:
// common prefixes become zero-size directories stamped with now, keys become
// files. The key equal to the queried prefix is the directory marker itself
// and is dropped.
func FromObjectListing(l ObjectListing, now time.Time) []DirectoryEntry {
	entries := make([]DirectoryEntry, 0, len(l.CommonPrefixes)+len(l.Objects))
	for _, cp := range l.CommonPrefixes {
		if cp == "" || cp == l.Prefix {
			continue
		}
		entries = append(entries, DirectoryEntry{
			Name:    ObjectName(cp),
			Path:    cp,
			ModTime: now,
			IsDir:   true,
		})
	}
	for _, obj := range l.Objects {
		if obj.Key == "" || obj.Key == l.Prefix {
			continue
		}
		entries = append(entries, DirectoryEntry{
			Name:    ObjectName(obj.Key),
			Path:    obj.Key,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	return entries
}
