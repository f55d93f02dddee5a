package protocols

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hirochachacha/go-smb2"
)

const (
	defaultSMBPort   = 445
	defaultSMBDomain = "WORKGROUP"
)

// SMBConfig is the connection bundle of an SMB profile.
type SMBConfig struct {
	Host     string `json:"host"` // an smb:// prefix is accepted and stripped
	Share    string `json:"share"`
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain,omitempty"`
	Port     int    `json:"port,omitempty"`
}

func (c *SMBConfig) validate() error {
	c.Host = strings.TrimRight(trimScheme(c.Host, "smb://"), "/")
	if c.Port == 0 {
		c.Port = defaultSMBPort
	}
	if c.Domain == "" {
		c.Domain = defaultSMBDomain
	}
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.Share == "":
		return errors.New("share is required")
	case c.Username == "":
		return errors.New("username is required")
	case c.Password == "":
		return errors.New("password is required")
	}
	return nil
}

func (c *SMBConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// unc returns the \\host\share name of the configured share.
func (c *SMBConfig) unc() string {
	return `\\` + c.Host + `\` + c.Share
}

func trimScheme(s, scheme string) string {
	if len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme) {
		return s[len(scheme):]
	}
	return s
}

// smbShare is the subset of a mounted share the adapter drives.
type smbShare interface {
	ReadDir(dir string) ([]os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Remove(name string) error
	MkdirAll(dir string, perm os.FileMode) error
}

// smbMount owns the TCP connection, the authenticated session and the tree
// connect of one mounted share.
type smbMount struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

func (m *smbMount) ReadDir(dir string) ([]os.FileInfo, error) { return m.share.ReadDir(dir) }
func (m *smbMount) Remove(name string) error                  { return m.share.Remove(name) }

func (m *smbMount) MkdirAll(dir string, perm os.FileMode) error {
	return m.share.MkdirAll(dir, perm)
}

func (m *smbMount) Open(name string) (io.ReadCloser, error) {
	f, err := m.share.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (m *smbMount) Create(name string) (io.WriteCloser, error) {
	f, err := m.share.Create(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (m *smbMount) Close() error {
	var errs []error
	if m.share != nil {
		errs = append(errs, m.share.Umount())
	}
	if m.session != nil {
		errs = append(errs, m.session.Logoff())
	}
	if err := m.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var mountSMB = func(ctx context.Context, cfg SMBConfig) (smbShare, io.Closer, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, nil, err
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.Username,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}
	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}

	share, err := session.Mount(cfg.unc())
	if err != nil {
		_ = session.Logoff()
		conn.Close()
		return nil, nil, fmt.Errorf("mount %s: %w", cfg.unc(), err)
	}

	m := &smbMount{conn: conn, session: session, share: share.WithContext(ctx)}
	return m, m, nil
}

// SMBFileSystem is a session on one SMB share.
type SMBFileSystem struct {
	cfg   SMBConfig
	share smbShare
	mount io.Closer
}

// NewSMB validates cfg, applies defaults and returns an unconnected session.
func NewSMB(cfg SMBConfig) (*SMBFileSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("smb config: %w", err)
	}
	return &SMBFileSystem{cfg: cfg}, nil
}

// NewSMBFromJSON decodes an SMB profile bundle.
func NewSMBFromJSON(raw json.RawMessage) (*SMBFileSystem, error) {
	var cfg SMBConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse smb config: %w", err)
	}
	return NewSMB(cfg)
}

func (s *SMBFileSystem) Kind() Kind { return KindSMB }

func (s *SMBFileSystem) Connect(ctx context.Context) error {
	share, mount, err := mountSMB(ctx, s.cfg)
	if err != nil {
		return connectionError(KindSMB, "connect", s.cfg.Username+"@"+s.cfg.unc(), err)
	}
	s.share = share
	s.mount = mount
	return nil
}

func (s *SMBFileSystem) Disconnect() error {
	s.share = nil
	if s.mount == nil {
		return nil
	}
	err := s.mount.Close()
	s.mount = nil
	return cleanupError(KindSMB, err)
}

func (s *SMBFileSystem) List(_ context.Context, dir string) ([]DirectoryEntry, error) {
	dir = NormalizeDir(dir)
	if s.share == nil {
		return nil, listError(KindSMB, dir, errNotConnected)
	}

	infos, err := s.share.ReadDir(sharePath(dir))
	if err != nil {
		return nil, listError(KindSMB, dir, err)
	}

	files := make([]DirectoryEntry, 0, len(infos))
	for _, info := range infos {
		e, ok := dirEntry(dir, info.Name(), info.Size(), info.ModTime(), info.IsDir())
		if !ok {
			continue
		}
		files = append(files, e)
	}
	return files, nil
}

func (s *SMBFileSystem) Download(_ context.Context, remotePath, localPath string) error {
	if s.share == nil {
		return transferError(KindSMB, "download", remotePath, errNotConnected)
	}

	src, err := s.share.Open(sharePath(remotePath))
	if err != nil {
		return transferError(KindSMB, "download", remotePath, err)
	}
	defer src.Close()

	if _, err := writeLocal(localPath, src); err != nil {
		return transferError(KindSMB, "download", remotePath, err)
	}
	return nil
}

func (s *SMBFileSystem) Upload(_ context.Context, localPath, remotePath string) error {
	if s.share == nil {
		return transferError(KindSMB, "upload", remotePath, errNotConnected)
	}

	src, _, err := openLocal(localPath)
	if err != nil {
		return transferError(KindSMB, "upload", remotePath, err)
	}
	defer src.Close()

	dst, err := s.share.Create(sharePath(remotePath))
	if err != nil {
		return transferError(KindSMB, "upload", remotePath, err)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return transferError(KindSMB, "upload", remotePath, err)
	}
	return nil
}

// Remove deletes remotePath. The native status (missing file, sharing
// violation on an open file) is kept as the cause.
func (s *SMBFileSystem) Remove(_ context.Context, remotePath string) error {
	if s.share == nil {
		return transferError(KindSMB, "delete", remotePath, errNotConnected)
	}
	if err := s.share.Remove(sharePath(remotePath)); err != nil {
		return transferError(KindSMB, "delete", remotePath, err)
	}
	return nil
}

func (s *SMBFileSystem) MkdirAll(_ context.Context, dir string) error {
	dir = NormalizeDir(dir)
	if s.share == nil {
		return transferError(KindSMB, "mkdir", dir, errNotConnected)
	}
	if dir == "/" {
		return nil
	}
	if err := s.share.MkdirAll(sharePath(dir), 0755); err != nil {
		return transferError(KindSMB, "mkdir", dir, err)
	}
	return nil
}

// sharePath converts an absolute browsing path into the share-relative form
// SMB expects. The share root is ".".
func sharePath(p string) string {
	rel := strings.TrimPrefix(NormalizeDir(p), "/")
	if rel == "" {
		return "."
	}
	return rel
}
