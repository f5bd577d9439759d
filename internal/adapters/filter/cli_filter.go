package filter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/config"
	"github.com/mikey/attachment-spoof-filter/internal/core"
)

// CliFilter implements a command-line interface for attachment scanning
type CliFilter struct {
	scanner *messageScanner
	logger  *zap.Logger
	verbose bool
	out     io.Writer
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.AttachmentService, logger *zap.Logger, scanCfg config.ScanConfig, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		scanner: newMessageScanner(service, scanCfg.TempDir, scanCfg.MaxAttachmentSize, logger),
		logger:  logger,
		verbose: verbose,
		out:     os.Stdout,
	}, nil
}

// SetOutput redirects the printed report
func (f *CliFilter) SetOutput(w io.Writer) {
	f.out = w
}

// ProcessMessage scans a message and prints the results
func (f *CliFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.ScanResult, error) {
	startTime := time.Now()
	result, msg, err := f.scanner.Scan(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to scan message", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}
	duration := time.Since(startTime)

	fmt.Fprintf(f.out, "\n=== Message Summary ===\n")
	fmt.Fprintf(f.out, "From: %s\n", msg.Header.Get("From"))
	fmt.Fprintf(f.out, "To: %s\n", msg.Header.Get("To"))
	subject, err := decodeEncodedHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}
	fmt.Fprintf(f.out, "Subject: %s\n", subject)
	fmt.Fprintf(f.out, "Attachments: %d\n", len(result.Reports))

	fmt.Fprintf(f.out, "\n=== Attachments ===\n")
	for _, report := range result.Reports {
		fmt.Fprintf(f.out, "%s\n", report.Filename)
		fmt.Fprintf(f.out, "  Declared: %s\n", valueOrNone(report.Verdict.Supplied))
		fmt.Fprintf(f.out, "  Detected: %s\n", valueOrNone(report.Verdict.Detected))
		if f.verbose {
			fmt.Fprintf(f.out, "  Mapped: %s\n", valueOrNone(report.Verdict.Mapped))
			fmt.Fprintf(f.out, "  Size: %d bytes\n", report.Size)
		}
		if !report.Scanned {
			fmt.Fprintf(f.out, "  Spoofed: not scanned\n")
			continue
		}
		fmt.Fprintf(f.out, "  Spoofed: %t\n", report.Verdict.Spoofed)
	}

	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Spoofed: %t\n", result.Spoofed)
	fmt.Fprintf(f.out, "Explanation: %s\n", result.Explanation)
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return result, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
