package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/config"
	"github.com/mikey/attachment-spoof-filter/internal/core"
	"github.com/mikey/attachment-spoof-filter/internal/factory"
	"github.com/mikey/attachment-spoof-filter/internal/logging"
	"github.com/mikey/attachment-spoof-filter/internal/ports"
	"github.com/mikey/attachment-spoof-filter/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCore(container); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCore registers everything below the configuration and the logger
func provideCore(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewDetectorFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register content type detector
	if err := container.Provide(func(f *factory.DetectorFactory) (core.TypeDetector, error) {
		return f.CreateDetector()
	}); err != nil {
		return err
	}

	// Register extension mappings
	if err := container.Provide(func(f *factory.DetectorFactory, logger *zap.Logger) (core.MappingTable, error) {
		table, err := f.CreateMappingTable()
		if err != nil {
			return nil, err
		}
		if sized, ok := table.(interface{ Len() int }); ok && sized.Len() == 0 {
			logger.Info("No content type mappings configured, every mismatch is reported")
		}
		return table, nil
	}); err != nil {
		return err
	}

	// Register attachment service
	if err := container.Provide(core.NewAttachmentService); err != nil {
		return err
	}

	// Register message filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.MessageFilter, error) {
		return f.CreateMessageFilter()
	}); err != nil {
		return err
	}

	return nil
}
