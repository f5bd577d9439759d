package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	classifier, err := cfg.GetClassifier()
	require.NoError(t, err)
	assert.True(t, classifier.Enabled)
	assert.Equal(t, "file", classifier.Command)
	assert.Equal(t, 10*time.Second, classifier.Timeout)

	scan := cfg.GetScan()
	assert.Empty(t, scan.TempDir)
	assert.Equal(t, int64(25*1024*1024), scan.MaxAttachmentSize)

	server := cfg.GetServer()
	assert.Equal(t, "postfix", server.FilterType)
	assert.Equal(t, "0.0.0.0:10025", server.ListenAddress)
	assert.False(t, server.BlockSpoofed)
	assert.Equal(t, "X-Attachment-Spoofed", server.SpoofedHeader)
	assert.Equal(t, "X-Attachment-Report", server.ReportHeader)
	assert.Equal(t, 10026, server.PostfixPort)
	assert.True(t, server.PostfixEnabled)

	assert.Empty(t, cfg.GetContentTypeMappings())
	assert.Equal(t, "info", cfg.GetString("logging.level"))
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
content_type_mappings:
  pem:
    - text/plain
    - application/x-x509-ca-cert
  log: text/plain
classifier:
  timeout: 2s
server:
  filter_type: cli
  block_spoofed: true
`), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	mappings := cfg.GetContentTypeMappings()
	assert.Equal(t, []interface{}{"text/plain", "application/x-x509-ca-cert"}, mappings["pem"])
	assert.Equal(t, "text/plain", mappings["log"])

	classifier, err := cfg.GetClassifier()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, classifier.Timeout)

	server := cfg.GetServer()
	assert.Equal(t, "cli", server.FilterType)
	assert.True(t, server.BlockSpoofed)
	assert.Equal(t, 10026, server.PostfixPort, "unset keys keep their defaults")
}

func TestNewFromFileMissing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInvalidClassifierTimeout(t *testing.T) {
	v := NewEmptyViper()
	v.Set("classifier.timeout", "soon")

	_, err := NewFromViper(v).GetClassifier()
	assert.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("SPOOF_FILTER_SERVER_BLOCK_SPOOFED", "true")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.GetServer().BlockSpoofed)
	assert.Equal(t, "debug", cfg.GetString("logging.level"))
}
