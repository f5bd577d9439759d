package sniffer

import (
	"errors"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/h2non/filetype"
	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/core"
)

// MimetypeSniffer implements core.TypeSniffer with signature detection from
// mimetype and an extension lookup for the name hint
type MimetypeSniffer struct {
	logger *zap.Logger
}

// NewMimetypeSniffer creates a new sniffer
func NewMimetypeSniffer(logger *zap.Logger) *MimetypeSniffer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MimetypeSniffer{logger: logger}
}

// Sniff returns the content type of the file at path. The signature wins
// over the name unless the name points to a more specific type of the same
// family, e.g. a zip signature named report.docx.
func (s *MimetypeSniffer) Sniff(path, name string) (string, error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", classifyError(err, path)
	}

	fromMagic := baseType(detected.String())
	fromName := typeFromName(name)

	s.logger.Debug("Sniffed content type",
		zap.String("path", path),
		zap.String("magic", fromMagic),
		zap.String("name", fromName))

	if fromMagic == "" || fromMagic == core.SensibleDefault {
		if fromName != "" {
			return fromName, nil
		}
		return core.SensibleDefault, nil
	}

	if fromName != "" && fromName != fromMagic && descendsFrom(fromName, fromMagic) {
		return fromName, nil
	}
	return fromMagic, nil
}

// typeFromName looks the extension of name up, first in filetype's table
// and then in the system MIME table
func typeFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}

	if t := filetype.GetType(strings.TrimPrefix(ext, ".")); t.MIME.Value != "" {
		return t.MIME.Value
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return baseType(contentType)
	}
	return ""
}

// descendsFrom reports whether child sits below parent in mimetype's tree
func descendsFrom(child, parent string) bool {
	node := mimetype.Lookup(child)
	if node == nil {
		return false
	}
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Is(core.SensibleDefault) {
			return false
		}
		if p.Is(parent) {
			return true
		}
	}
	return false
}

// baseType strips parameters such as charset
func baseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func classifyError(err error, path string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return platformerrors.WrapWithContext(err, platformerrors.CodeNotFound, "file not found",
			map[string]interface{}{"path": path})
	case errors.Is(err, fs.ErrPermission):
		return platformerrors.WrapWithContext(err, platformerrors.CodeForbidden, "file not readable",
			map[string]interface{}{"path": path})
	default:
		return platformerrors.WrapWithContext(err, platformerrors.CodeInternal, "failed to sniff file",
			map[string]interface{}{"path": path})
	}
}
