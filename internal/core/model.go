package core

import (
	"strings"
)

const (
	// SensibleDefault is reported when no real determination is possible
	SensibleDefault = "application/octet-stream"

	// EmptyType is reported for existing zero-byte files
	EmptyType = "inode/x-empty"
)

// File is the handle of an uploaded file. *os.File satisfies it.
type File interface {
	Name() string
}

// SpoofVerdict is the outcome of a single spoof check together with the
// types that were considered
type SpoofVerdict struct {
	Spoofed  bool
	Supplied string
	Detected string
	Mapped   string
}

// Attachment is a file received from an untrusted client along with the
// metadata the client supplied for it
type Attachment struct {
	File        File
	Filename    string
	ContentType string
	Size        int64
}

// AttachmentReport is the result of inspecting one attachment
type AttachmentReport struct {
	Filename string
	Size     int64
	Verdict  SpoofVerdict
	Scanned  bool
}

// ScanResult is the result of scanning every attachment of a message
type ScanResult struct {
	Spoofed     bool
	Reports     []*AttachmentReport
	Explanation string
}

// MediaType returns the major component of a content type, the part
// before the slash
func MediaType(contentType string) string {
	major, _, _ := strings.Cut(contentType, "/")
	return major
}
