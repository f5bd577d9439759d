package core

// TypeSniffer classifies a file from its signature bytes, using name as a
// hint when the signature alone is not conclusive
type TypeSniffer interface {
	// Sniff returns SensibleDefault when it cannot identify the file
	Sniff(path, name string) (string, error)
}

// RawClassifier asks the operating system what a file is
type RawClassifier interface {
	// Classify returns the classifier's answer verbatim
	Classify(path string) (string, error)
}

// TypeDetector maps a path to a content type and never fails
type TypeDetector interface {
	Detect(path string) string
}

// MappingTable holds the configured extension overrides
type MappingTable interface {
	// Lookup returns the types registered for a lowercase extension
	// without its leading dot
	Lookup(ext string) ([]string, bool)
}
