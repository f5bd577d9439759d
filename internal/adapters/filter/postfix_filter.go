package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/config"
	"github.com/mikey/attachment-spoof-filter/internal/core"
	"github.com/mikey/attachment-spoof-filter/internal/utils"
)

const (
	// maxReportLength bounds the report header value
	maxReportLength = 900

	scanErrorHeader = "X-Attachment-Scan-Error"
)

// PostfixFilter implements a Postfix content filter that stamps every
// message with the verdict of its attachment scan
type PostfixFilter struct {
	scanner       *messageScanner
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	cfg           config.ServerConfig
	server        *smtp.Server
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service *core.AttachmentService,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
	serverCfg config.ServerConfig,
	scanCfg config.ScanConfig,
) *PostfixFilter {
	if serverCfg.SpoofedHeader == "" {
		serverCfg.SpoofedHeader = "X-Attachment-Spoofed"
	}
	if serverCfg.ReportHeader == "" {
		serverCfg.ReportHeader = "X-Attachment-Report"
	}

	return &PostfixFilter{
		scanner:       newMessageScanner(service, scanCfg.TempDir, scanCfg.MaxAttachmentSize, logger),
		textProcessor: textProcessor,
		logger:        logger,
		cfg:           serverCfg,
	}
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.cfg.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.cfg.MaxMessageBytes
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}

	f.logger.Info("Postfix filter starting", zap.String("address", f.cfg.ListenAddress))

	go func() {
		if err := f.server.Serve(ln); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessMessage scans a message without forwarding it
func (f *PostfixFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.ScanResult, error) {
	result, _, err := f.scanner.Scan(ctx, raw)
	return result, err
}

// filterMessage scans raw and returns the message to re-inject, or an SMTP
// error when the message must be rejected
func (f *PostfixFilter) filterMessage(ctx context.Context, sender string, raw []byte) ([]byte, error) {
	result, _, scanErr := f.scanner.Scan(ctx, raw)
	if scanErr != nil {
		f.logger.Error("Failed to scan attachments",
			zap.Error(scanErr),
			zap.String("sender", sender))
		// Let the message through marked as clean, the error header tells why
		result = &core.ScanResult{Explanation: "scan failed"}
	}

	if result.Spoofed && f.cfg.BlockSpoofed {
		f.logger.Info("Rejecting message with spoofed attachment",
			zap.String("sender", sender),
			zap.String("reason", result.Explanation))
		return nil, &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Rejected: attachment content type does not match its content",
		}
	}

	if skipped := unscanned(result); skipped > 0 && scanErr == nil {
		if f.cfg.BlockSpoofed {
			f.logger.Warn("Deferring message with unscanned attachments",
				zap.String("sender", sender),
				zap.Int("unscanned", skipped))
			return nil, &smtp.SMTPError{
				Code:         451,
				EnhancedCode: smtp.EnhancedCode{4, 3, 0},
				Message:      "Attachment scan incomplete, try again later",
			}
		}
		scanErr = fmt.Errorf("%d attachment(s) not scanned", skipped)
	}

	var modified bytes.Buffer
	fmt.Fprintf(&modified, "%s: %t\r\n", f.cfg.SpoofedHeader, result.Spoofed)
	fmt.Fprintf(&modified, "%s: %s\r\n", f.cfg.ReportHeader,
		f.textProcessor.HeaderValue(result.Explanation, maxReportLength))
	if scanErr != nil {
		fmt.Fprintf(&modified, "%s: %s\r\n", scanErrorHeader,
			f.textProcessor.HeaderValue(scanErr.Error(), maxReportLength))
	}
	// Copies supplied by the sender must not survive next to ours
	modified.Write(stripHeaders(raw, f.cfg.SpoofedHeader, f.cfg.ReportHeader, scanErrorHeader))

	f.logger.Info("Processed message",
		zap.String("sender", sender),
		zap.Bool("spoofed", result.Spoofed),
		zap.Int("attachments", len(result.Reports)))

	return modified.Bytes(), nil
}

func unscanned(result *core.ScanResult) int {
	count := 0
	for _, report := range result.Reports {
		if !report.Scanned {
			count++
		}
	}
	return count
}

// stripHeaders removes every occurrence of the named header fields, folded
// continuation lines included, from the header section of raw
func stripHeaders(raw []byte, names ...string) []byte {
	end := headerEnd(raw)

	var out bytes.Buffer
	out.Grow(len(raw))
	skipping := false
	for _, line := range bytes.SplitAfter(raw[:end], []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if !skipping {
				out.Write(line)
			}
			continue
		}

		skipping = false
		if name, _, ok := bytes.Cut(line, []byte(":")); ok {
			field := strings.TrimSpace(string(name))
			for _, n := range names {
				if strings.EqualFold(field, n) {
					skipping = true
					break
				}
			}
		}
		if !skipping {
			out.Write(line)
		}
	}
	out.Write(raw[end:])
	return out.Bytes()
}

// headerEnd returns the offset just past the last header line, where the
// blank separator line starts, or len(raw) without a body
func headerEnd(raw []byte) int {
	end := len(raw)
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		end = i + 2
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 && i+1 < end {
		end = i + 1
	}
	return end
}

// sendToPostfix sends the processed message back to Postfix on the configured port
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	postfixAddr := net.JoinHostPort(f.cfg.PostfixAddress, fmt.Sprint(f.cfg.PostfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Already delivered
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data scans the message and hands it back to Postfix
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	modified, err := s.filter.filterMessage(ctx, s.sender, raw)
	if err != nil {
		return err
	}

	if !s.filter.cfg.PostfixEnabled {
		s.filter.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
		return nil
	}

	if err := s.filter.sendToPostfix(s.sender, s.recipients, modified); err != nil {
		s.filter.logger.Error("Failed to send message back to Postfix",
			zap.Error(err),
			zap.String("sender", s.sender),
			zap.String("recipients", strings.Join(s.recipients, ",")))
		return err
	}
	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
