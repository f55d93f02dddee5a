package protocols

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

const (
	defaultFTPPort = 21
	dialTimeout    = 30 * time.Second
)

// FTPConfig is the connection bundle of an FTP profile.
type FTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user"`
	Password string `json:"password"`
	Secure   bool   `json:"secure,omitempty"` // explicit FTPS (AUTH TLS)
}

func (c *FTPConfig) validate() error {
	if c.Port == 0 {
		c.Port = defaultFTPPort
	}
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.User == "":
		return errors.New("user is required")
	}
	return nil
}

func (c *FTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ftpConn is the subset of *ftp.ServerConn the adapter drives.
type ftpConn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Delete(path string) error
	MakeDir(path string) error
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(p string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

var dialFTP = func(ctx context.Context, addr string, opts ...ftp.DialOption) (ftpConn, error) {
	opts = append(opts, ftp.DialWithContext(ctx))
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// FTPFileSystem is an FTP session.
type FTPFileSystem struct {
	cfg  FTPConfig
	conn ftpConn
}

// NewFTP validates cfg and returns an unconnected session.
func NewFTP(cfg FTPConfig) (*FTPFileSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ftp config: %w", err)
	}
	return &FTPFileSystem{cfg: cfg}, nil
}

// NewFTPFromJSON decodes an FTP profile bundle.
func NewFTPFromJSON(raw json.RawMessage) (*FTPFileSystem, error) {
	var cfg FTPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse ftp config: %w", err)
	}
	return NewFTP(cfg)
}

func (f *FTPFileSystem) Kind() Kind { return KindFTP }

func (f *FTPFileSystem) Connect(ctx context.Context) error {
	addr := f.cfg.addr()
	opts := []ftp.DialOption{ftp.DialWithTimeout(dialTimeout)}
	if f.cfg.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: f.cfg.Host}))
	}

	c, err := dialFTP(ctx, addr, opts...)
	if err != nil {
		return connectionError(KindFTP, "dial", addr, err)
	}

	if err := c.Login(f.cfg.User, f.cfg.Password); err != nil {
		_ = c.Quit()
		return connectionError(KindFTP, "authenticate", f.cfg.User+"@"+addr, err)
	}
	f.conn = c
	return nil
}

func (f *FTPFileSystem) Disconnect() error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	return cleanupError(KindFTP, err)
}

func (f *FTPFileSystem) List(_ context.Context, dir string) ([]DirectoryEntry, error) {
	dir = NormalizeDir(dir)
	if f.conn == nil {
		return nil, listError(KindFTP, dir, errNotConnected)
	}

	entries, err := f.conn.List(dir)
	if err != nil {
		return nil, listError(KindFTP, dir, err)
	}

	files := make([]DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		e, ok := dirEntry(dir, entry.Name, int64(entry.Size), entry.Time, entry.Type == ftp.EntryTypeFolder)
		if !ok {
			continue
		}
		files = append(files, e)
	}
	return files, nil
}

func (f *FTPFileSystem) Download(_ context.Context, remotePath, localPath string) error {
	if f.conn == nil {
		return transferError(KindFTP, "download", remotePath, errNotConnected)
	}

	r, err := f.conn.Retr(remotePath)
	if err != nil {
		return transferError(KindFTP, "download", remotePath, err)
	}
	_, err = writeLocal(localPath, r)
	// the data connection must be closed before the control connection is reused
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return transferError(KindFTP, "download", remotePath, err)
	}
	return nil
}

func (f *FTPFileSystem) Upload(_ context.Context, localPath, remotePath string) error {
	if f.conn == nil {
		return transferError(KindFTP, "upload", remotePath, errNotConnected)
	}

	src, _, err := openLocal(localPath)
	if err != nil {
		return transferError(KindFTP, "upload", remotePath, err)
	}
	defer src.Close()

	if err := f.conn.Stor(remotePath, src); err != nil {
		return transferError(KindFTP, "upload", remotePath, err)
	}
	return nil
}

func (f *FTPFileSystem) Remove(_ context.Context, remotePath string) error {
	if f.conn == nil {
		return transferError(KindFTP, "delete", remotePath, errNotConnected)
	}
	if err := f.conn.Delete(remotePath); err != nil {
		return transferError(KindFTP, "delete", remotePath, err)
	}
	return nil
}

// MkdirAll issues MKD for every missing level from the root down. FTP has no
// recursive create, so errors on intermediate levels are ignored and only the
// leaf is checked.
func (f *FTPFileSystem) MkdirAll(_ context.Context, dir string) error {
	dir = NormalizeDir(dir)
	if f.conn == nil {
		return transferError(KindFTP, "mkdir", dir, errNotConnected)
	}

	var dirs []string
	for curr := dir; curr != "/" && curr != "."; curr = path.Dir(curr) {
		dirs = append(dirs, curr)
	}
	if len(dirs) == 0 {
		return nil
	}

	for i := len(dirs) - 1; i > 0; i-- {
		_ = f.conn.MakeDir(dirs[i])
	}
	if err := f.conn.MakeDir(dir); err != nil {
		if _, lerr := f.conn.List(dir); lerr == nil {
			return nil
		}
		return transferError(KindFTP, "mkdir", dir, err)
	}
	return nil
}
