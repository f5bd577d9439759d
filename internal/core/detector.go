package core

import (
	"errors"
	"io/fs"
	"os"

	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// detectionStep returns a content type and whether it is the final answer
type detectionStep func(path string) (string, bool)

// ContentTypeDetector determines the content type of a file on disk.
//
// The strategy, cheapest and most authoritative first:
//
//  1. blank path: SensibleDefault
//  2. zero-byte file: EmptyType
//  3. signature and name sniffing
//  4. the raw answer of the file classifier, or SensibleDefault
type ContentTypeDetector struct {
	sniffer    TypeSniffer
	classifier RawClassifier
	logger     *zap.Logger
}

// NewContentTypeDetector creates a new content type detector
func NewContentTypeDetector(sniffer TypeSniffer, classifier RawClassifier, logger *zap.Logger) *ContentTypeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentTypeDetector{
		sniffer:    sniffer,
		classifier: classifier,
		logger:     logger,
	}
}

// Detect returns the content type of the file at path. It never returns an
// empty string.
func (d *ContentTypeDetector) Detect(path string) string {
	steps := []detectionStep{
		d.blankName,
		d.emptyFile,
		d.fromSniffer,
		d.fromClassifier,
	}

	for _, step := range steps {
		if contentType, ok := step(path); ok && contentType != "" {
			return contentType
		}
	}

	return SensibleDefault
}

func (d *ContentTypeDetector) blankName(path string) (string, bool) {
	if path == "" {
		return SensibleDefault, true
	}
	return "", false
}

func (d *ContentTypeDetector) emptyFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if info.Size() == 0 {
		return EmptyType, true
	}
	return "", false
}

func (d *ContentTypeDetector) fromSniffer(path string) (string, bool) {
	if d.sniffer == nil {
		return "", false
	}

	contentType, err := d.sniffer.Sniff(path, path)
	if err != nil {
		if isUnreadable(err) {
			// The classifier cannot read it either
			d.logger.Warn("Error while determining content type",
				zap.String("path", path),
				zap.Error(err))
			return SensibleDefault, true
		}
		d.logger.Debug("Sniffer failed, falling back to file classifier",
			zap.String("path", path),
			zap.Error(err))
		return "", false
	}

	if contentType == SensibleDefault {
		return "", false
	}
	return contentType, true
}

func (d *ContentTypeDetector) fromClassifier(path string) (string, bool) {
	if d.classifier == nil {
		return SensibleDefault, true
	}

	contentType, err := d.classifier.Classify(path)
	if err != nil {
		d.logger.Warn("Error while determining content type",
			zap.String("path", path),
			zap.Error(err))
		return SensibleDefault, true
	}
	if contentType == "" {
		return SensibleDefault, true
	}
	return contentType, true
}

// isUnreadable reports whether err means the file vanished or cannot be read
func isUnreadable(err error) bool {
	switch platformerrors.GetCode(err) {
	case platformerrors.CodeNotFound, platformerrors.CodeForbidden:
		return true
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
