package protocols

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AppliesDefaults(t *testing.T) {
	ftpFS, err := New(KindFTP, json.RawMessage(`{"host":"ftp.example.com","user":"bob","password":"pw"}`))
	require.NoError(t, err)
	assert.Equal(t, KindFTP, ftpFS.Kind())
	assert.Equal(t, 21, ftpFS.(*FTPFileSystem).cfg.Port)

	sftpFS, err := New(KindSFTP, json.RawMessage(`{"host":"h","username":"u","password":"p"}`))
	require.NoError(t, err)
	assert.Equal(t, 22, sftpFS.(*SFTPFileSystem).cfg.Port)

	smbFS, err := New(KindSMB, json.RawMessage(`{"host":"smb://nas/","share":"media","username":"u","password":"p"}`))
	require.NoError(t, err)
	cfg := smbFS.(*SMBFileSystem).cfg
	assert.Equal(t, 445, cfg.Port)
	assert.Equal(t, "WORKGROUP", cfg.Domain)
	assert.Equal(t, "nas", cfg.Host)
	assert.Equal(t, `\\nas\media`, cfg.unc())

	s3FS, err := New(KindS3, json.RawMessage(`{"accessKeyId":"a","secretAccessKey":"s","region":"eu-west-1"}`))
	require.NoError(t, err)
	assert.Equal(t, KindS3, s3FS.Kind())
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		kind Kind
		raw  string
	}{
		{KindFTP, `{"user":"u","password":"p"}`},
		{KindFTP, `{"host":"h"}`},
		{KindSFTP, `{"host":"h","username":"u"}`},
		{KindSFTP, `{"username":"u","password":"p"}`},
		{KindSMB, `{"host":"h","username":"u","password":"p"}`},
		{KindSMB, `{"host":"h","share":"s","username":"u"}`},
		{KindS3, `{"accessKeyId":"a","secretAccessKey":"s"}`},
		{KindS3, `{"region":"r"}`},
		{KindFTP, `not json`},
		{Kind("gopher"), `{}`},
	}
	for _, tt := range tests {
		_, err := New(tt.kind, json.RawMessage(tt.raw))
		assert.Error(t, err, "%s %s", tt.kind, tt.raw)
	}
}

func TestNew_ReturnsFreshInstances(t *testing.T) {
	raw := json.RawMessage(`{"host":"h","user":"u","password":"p"}`)
	a, err := New(KindFTP, raw)
	require.NoError(t, err)
	b, err := New(KindFTP, raw)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
