package factory

import (
	"fmt"

	"github.com/jmgilman/go/exec"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/adapters/classifier"
	"github.com/mikey/attachment-spoof-filter/internal/adapters/sniffer"
	"github.com/mikey/attachment-spoof-filter/internal/config"
	"github.com/mikey/attachment-spoof-filter/internal/core"
	"github.com/mikey/attachment-spoof-filter/internal/mapping"
)

// DetectorFactory creates the content type detection components based on configuration
type DetectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDetectorFactory creates a new detector factory
func NewDetectorFactory(cfg *config.Config, logger *zap.Logger) *DetectorFactory {
	return &DetectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSniffer creates the type sniffer
func (f *DetectorFactory) CreateSniffer() core.TypeSniffer {
	return sniffer.NewMimetypeSniffer(f.logger)
}

// CreateClassifier creates the raw file classifier
func (f *DetectorFactory) CreateClassifier() (core.RawClassifier, error) {
	classifierCfg, err := f.cfg.GetClassifier()
	if err != nil {
		return nil, err
	}

	if !classifierCfg.Enabled {
		f.logger.Info("File classifier disabled")
		return classifier.NoopClassifier{}, nil
	}

	return classifier.NewFileCommandClassifier(
		exec.New(exec.WithInheritEnv()),
		classifierCfg.Command,
		classifierCfg.Timeout,
		f.logger,
	), nil
}

// CreateDetector creates the content type detector
func (f *DetectorFactory) CreateDetector() (core.TypeDetector, error) {
	rawClassifier, err := f.CreateClassifier()
	if err != nil {
		return nil, err
	}
	return core.NewContentTypeDetector(f.CreateSniffer(), rawClassifier, f.logger), nil
}

// CreateMappingTable creates the extension override table
func (f *DetectorFactory) CreateMappingTable() (core.MappingTable, error) {
	table, err := mapping.FromConfig(f.cfg.GetContentTypeMappings(), f.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid content_type_mappings: %w", err)
	}
	return table, nil
}
