package config

import (
	"fmt"
	"time"
)

// ClassifierConfig represents the configuration for the file classifier
type ClassifierConfig struct {
	Enabled bool
	Command string
	Timeout time.Duration
}

// ScanConfig represents the configuration for attachment extraction
type ScanConfig struct {
	TempDir           string
	MaxAttachmentSize int64
}

// ServerConfig represents the configuration for the content filter
type ServerConfig struct {
	FilterType      string
	ListenAddress   string
	BlockSpoofed    bool
	MaxMessageBytes int64
	SpoofedHeader   string
	ReportHeader    string
	PostfixAddress  string
	PostfixPort     int
	PostfixEnabled  bool
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() (ClassifierConfig, error) {
	cfg := ClassifierConfig{
		Enabled: c.GetBool("classifier.enabled"),
		Command: c.GetString("classifier.command"),
	}
	if raw := c.GetString("classifier.timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid classifier timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	return cfg, nil
}

// GetScan returns the scan configuration
func (c *Config) GetScan() ScanConfig {
	return ScanConfig{
		TempDir:           c.GetString("scan.temp_dir"),
		MaxAttachmentSize: c.GetInt64("scan.max_attachment_size"),
	}
}

// GetServer returns the server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:      c.GetString("server.filter_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		BlockSpoofed:    c.GetBool("server.block_spoofed"),
		MaxMessageBytes: c.GetInt64("server.max_message_bytes"),
		SpoofedHeader:   c.GetString("server.headers.spoofed"),
		ReportHeader:    c.GetString("server.headers.report"),
		PostfixAddress:  c.GetString("server.postfix.address"),
		PostfixPort:     c.GetInt("server.postfix.port"),
		PostfixEnabled:  c.GetBool("server.postfix.enabled"),
	}
}

// GetContentTypeMappings returns the raw extension override mapping
func (c *Config) GetContentTypeMappings() map[string]interface{} {
	return c.GetStringMap("content_type_mappings")
}
