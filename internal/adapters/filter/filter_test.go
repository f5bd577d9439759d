package filter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"net/mail"
	"os"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/adapters/classifier"
	"github.com/mikey/attachment-spoof-filter/internal/adapters/sniffer"
	"github.com/mikey/attachment-spoof-filter/internal/config"
	"github.com/mikey/attachment-spoof-filter/internal/core"
	"github.com/mikey/attachment-spoof-filter/internal/mapping"
	"github.com/mikey/attachment-spoof-filter/internal/utils"
)

const plainText = "hello world, this is only plain text\n"

func newTestService(mappings map[string][]string) *core.AttachmentService {
	detector := core.NewContentTypeDetector(sniffer.NewMimetypeSniffer(nil), classifier.NoopClassifier{}, nil)
	return core.NewAttachmentService(detector, mapping.NewTable(mappings, nil), nil)
}

// buildMessage returns a message with a text body, a disguised attachment
// with an encoded filename and a genuine text attachment, nested one
// multipart level deep
func buildMessage(t *testing.T) []byte {
	t.Helper()
	encodedName := mime.BEncoding.Encode("UTF-8", "résumé.jpg")
	payload := base64.StdEncoding.EncodeToString([]byte(plainText))

	lines := []string{
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: =?UTF-8?Q?Caf=C3=A9_report?=",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Body text",
		"--inner",
		`Content-Type: image/jpeg; name="` + encodedName + `"`,
		"Content-Transfer-Encoding: base64",
		`Content-Disposition: attachment; filename="` + encodedName + `"`,
		"",
		payload,
		"--inner--",
		"--outer",
		`Content-Type: text/plain; name="C:\\Users\\me\\notes.txt"`,
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"plain notes caf=C3=A9",
		"--outer--",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func TestExtractNestedAttachments(t *testing.T) {
	tempDir := t.TempDir()
	msg, err := mail.ReadMessage(bytes.NewReader(buildMessage(t)))
	require.NoError(t, err)

	extracted, err := newAttachmentExtractor(tempDir, 0, zap.NewNop()).Extract(msg)
	require.NoError(t, err)
	defer extracted.Cleanup()

	require.Len(t, extracted.attachments, 2)

	disguised := extracted.attachments[0]
	assert.Equal(t, "résumé.jpg", disguised.Filename)
	assert.Equal(t, "image/jpeg", disguised.ContentType)
	assert.Equal(t, int64(len(plainText)), disguised.Size)
	assert.True(t, strings.HasSuffix(disguised.File.Name(), ".jpg"))
	data, err := os.ReadFile(disguised.File.Name())
	require.NoError(t, err)
	assert.Equal(t, plainText, string(data))

	notes := extracted.attachments[1]
	assert.Equal(t, "notes.txt", notes.Filename)
	data, err = os.ReadFile(notes.File.Name())
	require.NoError(t, err)
	assert.Equal(t, "plain notes café", string(data))

	extracted.Cleanup()
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractTruncatesLargeAttachments(t *testing.T) {
	msg, err := mail.ReadMessage(bytes.NewReader(buildMessage(t)))
	require.NoError(t, err)

	extracted, err := newAttachmentExtractor(t.TempDir(), 5, zap.NewNop()).Extract(msg)
	require.NoError(t, err)
	defer extracted.Cleanup()

	require.Len(t, extracted.attachments, 2)
	assert.Equal(t, int64(5), extracted.attachments[0].Size)
}

func TestAttachmentFilename(t *testing.T) {
	header := mail.Header{"Content-Disposition": {`attachment; filename="../../etc/passwd"`}}
	assert.Equal(t, "passwd", attachmentFilename(header, nil))

	header = mail.Header{"Content-Disposition": {"inline"}}
	assert.Empty(t, attachmentFilename(header, map[string]string{}))
	assert.Equal(t, "a.pdf", attachmentFilename(header, map[string]string{"name": "a.pdf"}))
}

func TestScannerCleansUp(t *testing.T) {
	tempDir := t.TempDir()
	scanner := newMessageScanner(newTestService(nil), tempDir, 0, zap.NewNop())

	result, msg, err := scanner.Scan(context.Background(), buildMessage(t))
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.True(t, result.Spoofed)
	assert.Equal(t, "résumé.jpg declared image/jpeg but is text/plain", result.Explanation)
	require.Len(t, result.Reports, 2)
	assert.False(t, result.Reports[1].Verdict.Spoofed)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScannerHonoursMappings(t *testing.T) {
	scanner := newMessageScanner(newTestService(map[string][]string{"jpg": {"text/plain"}}), t.TempDir(), 0, zap.NewNop())

	result, _, err := scanner.Scan(context.Background(), buildMessage(t))
	require.NoError(t, err)
	assert.False(t, result.Spoofed)
	assert.Equal(t, "2 attachment(s) match their declared types", result.Explanation)
}

func newTestPostfixFilter(t *testing.T, block bool) *PostfixFilter {
	t.Helper()
	return NewPostfixFilter(
		newTestService(nil),
		utils.NewTextProcessor(nil),
		zap.NewNop(),
		config.ServerConfig{BlockSpoofed: block},
		config.ScanConfig{TempDir: t.TempDir()},
	)
}

func TestPostfixFilterAddsHeaders(t *testing.T) {
	f := newTestPostfixFilter(t, false)
	raw := buildMessage(t)

	modified, err := f.filterMessage(context.Background(), "sender@example.com", raw)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(modified))
	require.NoError(t, err)
	assert.Equal(t, "true", msg.Header.Get("X-Attachment-Spoofed"))
	assert.Equal(t, "résumé.jpg declared image/jpeg but is text/plain", msg.Header.Get("X-Attachment-Report"))
	assert.Empty(t, msg.Header.Get("X-Attachment-Scan-Error"))
	assert.True(t, bytes.HasSuffix(modified, raw))
}

func TestPostfixFilterRejectsSpoofed(t *testing.T) {
	f := newTestPostfixFilter(t, true)

	modified, err := f.filterMessage(context.Background(), "sender@example.com", buildMessage(t))
	assert.Nil(t, modified)

	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 550, smtpErr.Code)
	assert.Equal(t, smtp.EnhancedCode{5, 7, 1}, smtpErr.EnhancedCode)
}

func TestPostfixFilterPassesUnparsableMessages(t *testing.T) {
	f := newTestPostfixFilter(t, true)
	raw := []byte("this is not a message\r\n\r\n")

	modified, err := f.filterMessage(context.Background(), "sender@example.com", raw)
	require.NoError(t, err)

	text := string(modified)
	assert.Contains(t, text, "X-Attachment-Spoofed: false\r\n")
	assert.Contains(t, text, "X-Attachment-Report: scan failed\r\n")
	assert.Contains(t, text, "X-Attachment-Scan-Error: failed to parse message")
}

func TestPostfixFilterProcessMessage(t *testing.T) {
	f := newTestPostfixFilter(t, true)

	result, err := f.ProcessMessage(context.Background(), buildMessage(t))
	require.NoError(t, err)
	assert.True(t, result.Spoofed)
}

func TestCliFilterPrintsReport(t *testing.T) {
	f, err := NewCliFilter(newTestService(nil), zap.NewNop(), config.ScanConfig{TempDir: t.TempDir()}, true)
	require.NoError(t, err)

	var out bytes.Buffer
	f.SetOutput(&out)

	result, err := f.ProcessMessage(context.Background(), buildMessage(t))
	require.NoError(t, err)
	assert.True(t, result.Spoofed)

	text := out.String()
	assert.Contains(t, text, "Subject: Café report")
	assert.Contains(t, text, "Attachments: 2")
	assert.Contains(t, text, "résumé.jpg\n  Declared: image/jpeg\n  Detected: text/plain\n  Mapped: (none)\n")
	assert.Contains(t, text, "Spoofed: true")
	assert.NoError(t, f.Start())
	assert.NoError(t, f.Stop())
}

func TestPostfixFilterReplacesForgedHeaders(t *testing.T) {
	f := newTestPostfixFilter(t, false)
	forged := append([]byte(
		"X-Attachment-Spoofed: false\r\n"+
			"x-attachment-report: all\r\n"+
			" clean\r\n"+
			"X-Attachment-Scan-Error: none\r\n"), buildMessage(t)...)

	modified, err := f.filterMessage(context.Background(), "sender@example.com", forged)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(modified))
	require.NoError(t, err)
	assert.Equal(t, []string{"true"}, msg.Header["X-Attachment-Spoofed"])
	assert.Equal(t, []string{"résumé.jpg declared image/jpeg but is text/plain"}, msg.Header["X-Attachment-Report"])
	assert.Empty(t, msg.Header["X-Attachment-Scan-Error"])
	assert.NotContains(t, string(modified), " clean\r\n")
	assert.Equal(t, "sender@example.com", msg.Header.Get("From"))
}

func TestStripHeaders(t *testing.T) {
	raw := []byte("X-Drop: a\nKeep: b\n  folded\nX-Drop: c\n  folded too\n\nX-Drop: body line\n")

	assert.Equal(t, "Keep: b\n  folded\n\nX-Drop: body line\n", string(stripHeaders(raw, "x-drop")))
	assert.Equal(t, string(raw), string(stripHeaders(raw, "Other")))
}

func TestPostfixFilterUnscannedAttachments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocking := newTestPostfixFilter(t, true)
	modified, err := blocking.filterMessage(ctx, "sender@example.com", buildMessage(t))
	assert.Nil(t, modified)
	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 451, smtpErr.Code)

	marking := newTestPostfixFilter(t, false)
	modified, err = marking.filterMessage(ctx, "sender@example.com", buildMessage(t))
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(modified))
	require.NoError(t, err)
	assert.Equal(t, "false", msg.Header.Get("X-Attachment-Spoofed"))
	assert.Equal(t, "2 attachment(s) not scanned", msg.Header.Get("X-Attachment-Scan-Error"))
}
