package protocols

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// useMemSFTP points dialSFTP at an in-memory SFTP server for the duration of
// the test.
func useMemSFTP(t *testing.T) (configs *[]*ssh.ClientConfig, closed *int) {
	t.Helper()
	orig := dialSFTP
	t.Cleanup(func() { dialSFTP = orig })

	var cfgs []*ssh.ClientConfig
	var closes int
	dialSFTP = func(_ context.Context, _ string, cfg *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
		cfgs = append(cfgs, cfg)

		cr, sw := io.Pipe()
		sr, cw := io.Pipe()
		server := sftp.NewRequestServer(struct {
			io.Reader
			io.WriteCloser
		}{sr, sw}, sftp.InMemHandler())
		// the client's read loop only ends once the server side is closed
		go func() {
			_ = server.Serve()
			_ = sw.Close()
		}()

		client, err := sftp.NewClientPipe(cr, cw)
		if err != nil {
			return nil, nil, err
		}
		return client, closerFunc(func() error {
			closes++
			_ = server.Close()
			return nil
		}), nil
	}
	return &cfgs, &closes
}

func connectMemSFTP(t *testing.T) *SFTPFileSystem {
	t.Helper()
	s, err := NewSFTP(SFTPConfig{Host: "sftp.example.com", Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Disconnect() })
	return s
}

func TestSFTP_ConnectBuildsClientConfig(t *testing.T) {
	cfgs, closes := useMemSFTP(t)

	s, err := NewSFTP(SFTPConfig{Host: "sftp.example.com", Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))

	require.Len(t, *cfgs, 1)
	cfg := (*cfgs)[0]
	assert.Equal(t, "alice", cfg.User)
	assert.Len(t, cfg.Auth, 2) // password and keyboard-interactive
	assert.Equal(t, dialTimeout, cfg.Timeout)

	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())
	assert.Equal(t, 1, *closes)
}

func TestSFTP_ConnectRejectsBadKey(t *testing.T) {
	useMemSFTP(t)

	s, err := NewSFTP(SFTPConfig{Host: "h", Username: "alice", PrivateKey: "not a key"})
	require.NoError(t, err)

	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.Contains(t, err.Error(), "authenticate alice@h:22")
}

func TestSFTP_ConnectDialFailure(t *testing.T) {
	orig := dialSFTP
	t.Cleanup(func() { dialSFTP = orig })
	dialSFTP = func(context.Context, string, *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
		return nil, nil, errors.New("ssh: handshake failed: unable to authenticate")
	}

	s, err := NewSFTP(SFTPConfig{Host: "h", Username: "alice", Password: "bad"})
	require.NoError(t, err)

	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.Contains(t, err.Error(), "unable to authenticate")
	assert.NoError(t, s.Disconnect())
}

func TestSFTP_RoundTripAndList(t *testing.T) {
	useMemSFTP(t)
	s := connectMemSFTP(t)
	ctx := context.Background()

	require.NoError(t, s.MkdirAll(ctx, "/data/in"))

	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0644))
	require.NoError(t, s.Upload(ctx, src, "/data/report.csv"))

	entries, err := s.List(ctx, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]DirectoryEntry{}
	for _, e := range entries {
		byName[e.Name] = e
		assert.NotEqual(t, "/data", e.Path)
	}
	assert.True(t, byName["in"].IsDir)
	assert.Equal(t, "/data/in", byName["in"].Path)
	assert.Zero(t, byName["in"].Size)
	assert.False(t, byName["report.csv"].IsDir)
	assert.Equal(t, int64(8), byName["report.csv"].Size)

	dst := filepath.Join(dir, "nested", "copy.csv")
	require.NoError(t, s.Download(ctx, "/data/report.csv", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))
}

func TestSFTP_DeleteMissingFile(t *testing.T) {
	useMemSFTP(t)
	s := connectMemSFTP(t)

	err := s.Remove(context.Background(), "/ghost.txt")
	require.Error(t, err)
	assert.True(t, IsTransfer(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSFTP_DownloadMissingLeavesNoFile(t *testing.T) {
	useMemSFTP(t)
	s := connectMemSFTP(t)

	dst := filepath.Join(t.TempDir(), "x")
	err := s.Download(context.Background(), "/nope", dst)
	require.Error(t, err)
	assert.True(t, IsTransfer(err))

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSFTP_ListMissingDirectory(t *testing.T) {
	useMemSFTP(t)
	s := connectMemSFTP(t)

	_, err := s.List(context.Background(), "/missing")
	require.Error(t, err)
	assert.True(t, IsList(err))
}
