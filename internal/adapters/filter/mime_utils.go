package filter

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/mikey/attachment-spoof-filter/internal/core"
)

// maxMultipartDepth bounds recursion into nested multipart bodies
const maxMultipartDepth = 10

var simpleExtension = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// headerGetter is satisfied by both mail.Header and textproto.MIMEHeader
type headerGetter interface {
	Get(key string) string
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeEncodedHeader decodes RFC 2047 encoded words in a header value
func decodeEncodedHeader(value string) (string, error) {
	return wordDecoder.DecodeHeader(value)
}

// attachmentExtractor writes every attachment of a message to its own
// temporary file
type attachmentExtractor struct {
	tempDir string
	maxSize int64
	logger  *zap.Logger
}

func newAttachmentExtractor(tempDir string, maxSize int64, logger *zap.Logger) *attachmentExtractor {
	return &attachmentExtractor{
		tempDir: tempDir,
		maxSize: maxSize,
		logger:  logger,
	}
}

// extractedAttachments owns the temporary files backing the attachments
type extractedAttachments struct {
	attachments []*core.Attachment
	paths       []string
}

// Cleanup removes the temporary files
func (e *extractedAttachments) Cleanup() {
	for _, path := range e.paths {
		_ = os.Remove(path)
	}
	e.paths = nil
}

// Extract walks the message and returns its attachments. The caller must
// call Cleanup on the result, also when an error is returned.
func (x *attachmentExtractor) Extract(msg *mail.Message) (*extractedAttachments, error) {
	out := &extractedAttachments{}
	err := x.walk(msg.Header, msg.Body, 0, out)
	return out, err
}

func (x *attachmentExtractor) walk(header headerGetter, body io.Reader, depth int, out *extractedAttachments) error {
	contentType := header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil
		}
		if depth >= maxMultipartDepth {
			x.logger.Warn("Multipart nesting too deep, skipping", zap.Int("depth", depth))
			return nil
		}

		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read multipart body: %w", err)
			}
			if err := x.walk(part.Header, part, depth+1, out); err != nil {
				part.Close()
				return err
			}
			part.Close()
		}
	}

	filename := attachmentFilename(header, params)
	if filename == "" {
		return nil
	}

	attachment, path, err := x.store(filename, mediaType, decodeTransfer(header, body))
	if path != "" {
		out.paths = append(out.paths, path)
	}
	if err != nil {
		return err
	}
	out.attachments = append(out.attachments, attachment)
	return nil
}

// store copies the decoded part into a temporary file that keeps the
// extension of the original filename, which the sniffer uses as a hint
func (x *attachmentExtractor) store(filename, declared string, r io.Reader) (*core.Attachment, string, error) {
	pattern := "attachment-*"
	if ext := filepath.Ext(filename); simpleExtension.MatchString(ext) {
		pattern += strings.ToLower(ext)
	}

	f, err := os.CreateTemp(x.tempDir, pattern)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	src := r
	if x.maxSize > 0 {
		src = io.LimitReader(r, x.maxSize)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		return nil, f.Name(), fmt.Errorf("failed to write attachment %q: %w", filename, err)
	}
	if x.maxSize > 0 && size == x.maxSize {
		x.logger.Debug("Attachment truncated for scanning",
			zap.String("filename", filename),
			zap.Int64("max_size", x.maxSize))
	}

	return &core.Attachment{
		File:        f,
		Filename:    filename,
		ContentType: declared,
		Size:        size,
	}, f.Name(), nil
}

// attachmentFilename returns the decoded file name of a part, from
// Content-Disposition first and the Content-Type name parameter second
func attachmentFilename(header headerGetter, contentTypeParams map[string]string) string {
	var name string
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = contentTypeParams["name"]
	}
	if name == "" {
		return ""
	}

	decoded, err := decodeEncodedHeader(name)
	if err != nil {
		decoded = name
	}
	// Clients on Windows send full paths
	decoded = strings.ReplaceAll(decoded, "\\", "/")
	return strings.TrimSpace(filepath.Base(decoded))
}

func decodeTransfer(header headerGetter, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}
