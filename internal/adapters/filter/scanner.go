package filter

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"

	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/core"
)

// messageScanner parses a raw message and checks each of its attachments
type messageScanner struct {
	service   *core.AttachmentService
	extractor *attachmentExtractor
	logger    *zap.Logger
}

func newMessageScanner(service *core.AttachmentService, tempDir string, maxAttachmentSize int64, logger *zap.Logger) *messageScanner {
	return &messageScanner{
		service:   service,
		extractor: newAttachmentExtractor(tempDir, maxAttachmentSize, logger),
		logger:    logger,
	}
}

// Scan returns the verdict for every attachment of raw along with the
// parsed message
func (s *messageScanner) Scan(ctx context.Context, raw []byte) (*core.ScanResult, *mail.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse message: %w", err)
	}

	extracted, err := s.extractor.Extract(msg)
	defer extracted.Cleanup()
	if err != nil {
		return nil, msg, fmt.Errorf("failed to extract attachments: %w", err)
	}

	result := s.service.ScanAttachments(ctx, extracted.attachments)
	return result, msg, nil
}
