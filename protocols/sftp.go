package protocols

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const defaultSFTPPort = 22

// SFTPConfig is the connection bundle of an SFTP profile. At least one of
// Password and PrivateKey must be set.
type SFTPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"` // PEM encoded
}

func (c *SFTPConfig) validate() error {
	if c.Port == 0 {
		c.Port = defaultSFTPPort
	}
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.Username == "":
		return errors.New("username is required")
	case c.Password == "" && c.PrivateKey == "":
		return errors.New("password or privateKey is required")
	}
	return nil
}

func (c *SFTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *SFTPConfig) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if c.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(c.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		password := c.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	return methods, nil
}

// dialSFTP opens the SSH transport and starts the SFTP subsystem on it. The
// returned closer releases the transport.
var dialSFTP = func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	sshConn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, nil, fmt.Errorf("start sftp subsystem: %w", err)
	}
	return client, sshConn, nil
}

// SFTPFileSystem is an SFTP session over SSH.
type SFTPFileSystem struct {
	cfg     SFTPConfig
	client  *sftp.Client
	sshConn io.Closer
}

// NewSFTP validates cfg and returns an unconnected session.
func NewSFTP(cfg SFTPConfig) (*SFTPFileSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sftp config: %w", err)
	}
	return &SFTPFileSystem{cfg: cfg}, nil
}

// NewSFTPFromJSON decodes an SFTP profile bundle.
func NewSFTPFromJSON(raw json.RawMessage) (*SFTPFileSystem, error) {
	var cfg SFTPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse sftp config: %w", err)
	}
	return NewSFTP(cfg)
}

func (s *SFTPFileSystem) Kind() Kind { return KindSFTP }

func (s *SFTPFileSystem) Connect(ctx context.Context) error {
	addr := s.cfg.addr()
	auth, err := s.cfg.authMethods()
	if err != nil {
		return connectionError(KindSFTP, "authenticate", s.cfg.Username+"@"+addr, err)
	}

	config := &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	client, closer, err := dialSFTP(ctx, addr, config)
	if err != nil {
		return connectionError(KindSFTP, "dial", s.cfg.Username+"@"+addr, err)
	}
	s.client = client
	s.sshConn = closer
	return nil
}

func (s *SFTPFileSystem) Disconnect() error {
	var errs []error
	if s.client != nil {
		if err := s.client.Close(); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, err)
		}
		s.client = nil
	}
	if s.sshConn != nil {
		if err := s.sshConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		s.sshConn = nil
	}
	return cleanupError(KindSFTP, errors.Join(errs...))
}

func (s *SFTPFileSystem) List(_ context.Context, dir string) ([]DirectoryEntry, error) {
	dir = NormalizeDir(dir)
	if s.client == nil {
		return nil, listError(KindSFTP, dir, errNotConnected)
	}

	entries, err := s.client.ReadDir(dir)
	if err != nil {
		return nil, listError(KindSFTP, dir, err)
	}

	files := make([]DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		e, ok := dirEntry(dir, entry.Name(), entry.Size(), entry.ModTime(), entry.IsDir())
		if !ok {
			continue
		}
		files = append(files, e)
	}
	return files, nil
}

func (s *SFTPFileSystem) Download(_ context.Context, remotePath, localPath string) error {
	if s.client == nil {
		return transferError(KindSFTP, "download", remotePath, errNotConnected)
	}

	src, err := s.client.Open(remotePath)
	if err != nil {
		return transferError(KindSFTP, "download", remotePath, err)
	}
	defer src.Close()

	if _, err := writeLocal(localPath, src); err != nil {
		return transferError(KindSFTP, "download", remotePath, err)
	}
	return nil
}

func (s *SFTPFileSystem) Upload(_ context.Context, localPath, remotePath string) error {
	if s.client == nil {
		return transferError(KindSFTP, "upload", remotePath, errNotConnected)
	}

	src, _, err := openLocal(localPath)
	if err != nil {
		return transferError(KindSFTP, "upload", remotePath, err)
	}
	defer src.Close()

	dst, err := s.client.Create(remotePath)
	if err != nil {
		return transferError(KindSFTP, "upload", remotePath, err)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return transferError(KindSFTP, "upload", remotePath, err)
	}
	return nil
}

// Remove deletes remotePath. A missing path yields a transfer error wrapping
// fs.ErrNotExist.
func (s *SFTPFileSystem) Remove(_ context.Context, remotePath string) error {
	if s.client == nil {
		return transferError(KindSFTP, "delete", remotePath, errNotConnected)
	}
	if err := s.client.Remove(remotePath); err != nil {
		return transferError(KindSFTP, "delete", remotePath, err)
	}
	return nil
}

func (s *SFTPFileSystem) MkdirAll(_ context.Context, dir string) error {
	dir = NormalizeDir(dir)
	if s.client == nil {
		return transferError(KindSFTP, "mkdir", dir, errNotConnected)
	}
	if err := s.client.MkdirAll(dir); err != nil {
		return transferError(KindSFTP, "mkdir", dir, err)
	}
	return nil
}
