package protocols

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dirShare serves a share out of a local directory.
type dirShare struct {
	root string
	ops  []string
}

func (d *dirShare) abs(name string) string { return filepath.Join(d.root, filepath.FromSlash(name)) }

func (d *dirShare) ReadDir(dir string) ([]os.FileInfo, error) {
	d.ops = append(d.ops, "readdir "+dir)
	entries, err := os.ReadDir(d.abs(dir))
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *dirShare) Open(name string) (io.ReadCloser, error) {
	d.ops = append(d.ops, "open "+name)
	return os.Open(d.abs(name))
}

func (d *dirShare) Create(name string) (io.WriteCloser, error) {
	d.ops = append(d.ops, "create "+name)
	return os.Create(d.abs(name))
}

func (d *dirShare) Remove(name string) error {
	d.ops = append(d.ops, "remove "+name)
	return os.Remove(d.abs(name))
}

func (d *dirShare) MkdirAll(dir string, perm os.FileMode) error {
	d.ops = append(d.ops, "mkdir "+dir)
	return os.MkdirAll(d.abs(dir), perm)
}

func useDirShare(t *testing.T) (*dirShare, *int) {
	t.Helper()
	orig := mountSMB
	t.Cleanup(func() { mountSMB = orig })

	share := &dirShare{root: t.TempDir()}
	var unmounts int
	mountSMB = func(context.Context, SMBConfig) (smbShare, io.Closer, error) {
		return share, closerFunc(func() error {
			unmounts++
			return nil
		}), nil
	}
	return share, &unmounts
}

func connectDirShare(t *testing.T) (*SMBFileSystem, *dirShare) {
	t.Helper()
	share, _ := useDirShare(t)
	s, err := NewSMB(SMBConfig{Host: "nas", Share: "media", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	return s, share
}

func TestSharePath(t *testing.T) {
	assert.Equal(t, ".", sharePath("/"))
	assert.Equal(t, ".", sharePath(""))
	assert.Equal(t, "movies", sharePath("/movies/"))
	assert.Equal(t, "movies/a.mkv", sharePath("/movies/a.mkv"))
}

func TestSMB_ConnectFailure(t *testing.T) {
	orig := mountSMB
	t.Cleanup(func() { mountSMB = orig })
	mountSMB = func(context.Context, SMBConfig) (smbShare, io.Closer, error) {
		return nil, nil, errors.New("authenticate: response error: The attempted logon is invalid")
	}

	s, err := NewSMB(SMBConfig{Host: "nas", Share: "media", Username: "u", Password: "p"})
	require.NoError(t, err)

	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.Contains(t, err.Error(), `u@\\nas\media`)
	assert.NoError(t, s.Disconnect())
}

func TestSMB_DisconnectUnmountsOnce(t *testing.T) {
	_, unmounts := useDirShare(t)
	s, err := NewSMB(SMBConfig{Host: "nas", Share: "media", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())
	assert.Equal(t, 1, *unmounts)

	_, err = s.List(context.Background(), "/")
	assert.True(t, IsList(err))
}

func TestSMB_ListRoot(t *testing.T) {
	s, share := connectDirShare(t)
	require.NoError(t, os.Mkdir(filepath.Join(share.root, "movies"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(share.root, "notes.txt"), []byte("hi"), 0644))

	entries, err := s.List(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, DirectoryEntry{Name: "movies", Path: "/movies", IsDir: true, ModTime: entries[0].ModTime}, entries[0])
	assert.Equal(t, "/notes.txt", entries[1].Path)
	assert.Equal(t, int64(2), entries[1].Size)
	assert.Equal(t, "readdir .", share.ops[0])
}

func TestSMB_RoundTripAndDelete(t *testing.T) {
	s, share := connectDirShare(t)
	ctx := context.Background()

	require.NoError(t, s.MkdirAll(ctx, "/backup/2024"))
	require.NoError(t, s.MkdirAll(ctx, "/"))

	dir := t.TempDir()
	src := filepath.Join(dir, "db.dump")
	require.NoError(t, os.WriteFile(src, []byte("dump"), 0644))
	require.NoError(t, s.Upload(ctx, src, "/backup/2024/db.dump"))

	stored, err := os.ReadFile(filepath.Join(share.root, "backup", "2024", "db.dump"))
	require.NoError(t, err)
	assert.Equal(t, "dump", string(stored))

	dst := filepath.Join(dir, "restore", "db.dump")
	require.NoError(t, s.Download(ctx, "/backup/2024/db.dump", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "dump", string(got))

	require.NoError(t, s.Remove(ctx, "/backup/2024/db.dump"))
	err = s.Remove(ctx, "/backup/2024/db.dump")
	require.Error(t, err)
	assert.True(t, IsTransfer(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
