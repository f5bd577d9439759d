package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AttachmentService is the core service for attachment type checks
type AttachmentService struct {
	detector TypeDetector
	mappings MappingTable
	logger   *zap.Logger
}

// NewAttachmentService creates a new attachment service
func NewAttachmentService(detector TypeDetector, mappings MappingTable, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{
		detector: detector,
		mappings: mappings,
		logger:   logger,
	}
}

// DetectContentType returns the content type of the file at path
func (s *AttachmentService) DetectContentType(path string) string {
	return s.detector.Detect(path)
}

// IsSpoofed reports whether declaredContentType disguises the file
func (s *AttachmentService) IsSpoofed(file File, originalName, declaredContentType string) bool {
	return s.newSpoofDetector(file, originalName, declaredContentType).Spoofed()
}

// Inspect checks a single attachment
func (s *AttachmentService) Inspect(a *Attachment) *AttachmentReport {
	spoof := s.newSpoofDetector(a.File, a.Filename, a.ContentType)
	verdict := spoof.Check()
	if verdict.Detected == "" {
		// Not needed for the verdict, still worth reporting
		verdict.Detected = spoof.detectedType()
	}

	return &AttachmentReport{
		Filename: a.Filename,
		Size:     a.Size,
		Verdict:  verdict,
		Scanned:  true,
	}
}

// ScanAttachments inspects every attachment in order. Attachments left when
// ctx is done are reported as not scanned.
func (s *AttachmentService) ScanAttachments(ctx context.Context, attachments []*Attachment) *ScanResult {
	result := &ScanResult{
		Reports: make([]*AttachmentReport, 0, len(attachments)),
	}

	var spoofed []string
	skipped := 0
	for _, a := range attachments {
		if ctx.Err() != nil {
			result.Reports = append(result.Reports, &AttachmentReport{
				Filename: a.Filename,
				Size:     a.Size,
				Verdict:  SpoofVerdict{Supplied: a.ContentType},
			})
			skipped++
			continue
		}

		report := s.Inspect(a)
		result.Reports = append(result.Reports, report)
		if report.Verdict.Spoofed {
			spoofed = append(spoofed, fmt.Sprintf("%s declared %s but is %s",
				report.Filename, report.Verdict.Supplied, report.Verdict.Detected))
		}
	}

	result.Spoofed = len(spoofed) > 0
	switch {
	case len(attachments) == 0:
		result.Explanation = "No attachments"
	case result.Spoofed:
		result.Explanation = strings.Join(spoofed, "; ")
	default:
		result.Explanation = fmt.Sprintf("%d attachment(s) match their declared types", len(attachments)-skipped)
	}
	if skipped > 0 {
		result.Explanation += fmt.Sprintf(" (%d not scanned)", skipped)
	}

	s.logger.Debug("Scanned attachments",
		zap.Int("count", len(attachments)),
		zap.Bool("spoofed", result.Spoofed))

	return result
}

func (s *AttachmentService) newSpoofDetector(file File, name, contentType string) *MediaTypeSpoofDetector {
	return NewMediaTypeSpoofDetector(s.detector, s.mappings, s.logger, file, name, contentType)
}
