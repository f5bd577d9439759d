package core

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// MediaTypeSpoofDetector decides whether a declared content type disguises
// what a file really is. An instance serves a single check.
type MediaTypeSpoofDetector struct {
	detector    TypeDetector
	mappings    MappingTable
	logger      *zap.Logger
	file        File
	name        string
	contentType string

	detected            bool
	detectedContentType string
}

// NewMediaTypeSpoofDetector creates a detector for one file, its original
// name and the content type the client declared for it
func NewMediaTypeSpoofDetector(
	detector TypeDetector,
	mappings MappingTable,
	logger *zap.Logger,
	file File,
	name string,
	contentType string,
) *MediaTypeSpoofDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaTypeSpoofDetector{
		detector:    detector,
		mappings:    mappings,
		logger:      logger,
		file:        file,
		name:        name,
		contentType: contentType,
	}
}

// Spoofed reports whether the declared content type looks spoofed
func (s *MediaTypeSpoofDetector) Spoofed() bool {
	return s.Check().Spoofed
}

// Check runs the spoof check and returns the verdict with the types it
// considered
func (s *MediaTypeSpoofDetector) Check() SpoofVerdict {
	if s.hasName() && s.mediaTypeMismatch() && s.mappingOverrideMismatch() {
		verdict := SpoofVerdict{
			Spoofed:  true,
			Supplied: s.contentType,
			Detected: s.detectedType(),
			Mapped:   s.mappedContentType(),
		}
		s.logger.Warn("Content type spoof detected, add a content type mapping to allow this combination",
			zap.String("filename", filepath.Base(s.name)),
			zap.String("supplied_content_type", verdict.Supplied),
			zap.String("detected_content_type", verdict.Detected),
			zap.String("mapped_content_type", verdict.Mapped))
		return verdict
	}

	verdict := SpoofVerdict{
		Supplied: s.contentType,
		Mapped:   s.mappedContentType(),
	}
	if s.detected {
		verdict.Detected = s.detectedContentType
	}
	return verdict
}

func (s *MediaTypeSpoofDetector) hasName() bool {
	return strings.TrimSpace(s.name) != ""
}

func (s *MediaTypeSpoofDetector) mediaTypeMismatch() bool {
	supplied := MediaType(s.contentType)
	return supplied != "" && supplied != MediaType(s.detectedType())
}

// mappingOverrideMismatch holds unless a mapping registered for the
// extension names the detected type. An extension with no mapping does not
// exonerate a mismatch.
func (s *MediaTypeSpoofDetector) mappingOverrideMismatch() bool {
	mapped, ok := s.lookupMapping()
	if !ok {
		return true
	}
	detected := s.detectedType()
	for _, contentType := range mapped {
		if contentType == detected {
			return false
		}
	}
	return true
}

// detectedType runs the type detector on first use only
func (s *MediaTypeSpoofDetector) detectedType() string {
	if !s.detected {
		path := ""
		if s.file != nil {
			path = s.file.Name()
		}
		s.detectedContentType = s.detector.Detect(path)
		s.detected = true
	}
	return s.detectedContentType
}

func (s *MediaTypeSpoofDetector) lookupMapping() ([]string, bool) {
	if s.mappings == nil {
		return nil, false
	}
	return s.mappings.Lookup(s.filenameExtension())
}

func (s *MediaTypeSpoofDetector) mappedContentType() string {
	mapped, _ := s.lookupMapping()
	return strings.Join(mapped, ",")
}

// filenameExtension returns the lowercase extension without its dot. Leading
// dots belong to the name, so ".jpg" has no extension.
func (s *MediaTypeSpoofDetector) filenameExtension() string {
	base := strings.TrimLeft(filepath.Base(strings.ToLower(s.name)), ".")
	return strings.TrimPrefix(filepath.Ext(base), ".")
}
