package ports

import (
	"context"

	"github.com/mikey/attachment-spoof-filter/internal/core"
)

// MessageFilter defines the interface for attachment filtering
type MessageFilter interface {
	// ProcessMessage scans the attachments of a raw RFC 5322 message
	ProcessMessage(ctx context.Context, raw []byte) (*core.ScanResult, error)

	// Start starts the filter service
	Start() error

	// Stop stops the filter service
	Stop() error
}
