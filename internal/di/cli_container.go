package di

import (
	"flag"
	"fmt"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/config"
	"github.com/mikey/attachment-spoof-filter/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Single file flags
	File        string
	Name        string
	ContentType string

	// Message flags
	Email string

	// Detection flags
	Mappings          string
	NoClassifier      bool
	ClassifierTimeout string

	// Output flags
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line arguments and returns a CLIFlags struct
func ParseFlags(name string, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	// Single file flags
	fs.StringVar(&flags.File, "file", "", "File to inspect")
	fs.StringVar(&flags.Name, "name", "", "Original filename (defaults to the base name of -file)")
	fs.StringVar(&flags.ContentType, "content-type", "", "Declared content type to check against")

	// Message flags
	fs.StringVar(&flags.Email, "email", "", "RFC 5322 message whose attachments to scan (- for stdin)")

	// Detection flags
	fs.StringVar(&flags.Mappings, "map", "", "Comma-separated extension overrides, e.g. jpg=application/x-executable")
	fs.BoolVar(&flags.NoClassifier, "no-classifier", false, "Do not fall back to the file command")
	fs.StringVar(&flags.ClassifierTimeout, "classifier-timeout", "10s", "Timeout for the file command")

	// Output flags
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if flags.File == "" && flags.Email == "" {
		return nil, fmt.Errorf("one of -file or -email is required")
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			cfg.GetViper().Set("server.filter_type", "cli")
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		return createConfigFromFlags(flags)
	}); err != nil {
		return nil, err
	}

	if err := provideCore(container); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) (*config.Config, error) {
	v := config.NewEmptyViper()

	// Set some cli specific settings
	v.Set("server.filter_type", "cli")
	v.Set("cli.verbose", flags.Verbose)

	v.Set("classifier.enabled", !flags.NoClassifier)
	v.Set("classifier.timeout", flags.ClassifierTimeout)

	mappings, err := ParseMappings(flags.Mappings)
	if err != nil {
		return nil, err
	}
	v.Set("content_type_mappings", mappings)

	return config.NewFromViper(v), nil
}

// ParseMappings parses "ext=type,ext=type" into a configuration map.
// An extension given more than once allows each of its types.
func ParseMappings(s string) (map[string]interface{}, error) {
	mappings := make(map[string]interface{})
	if strings.TrimSpace(s) == "" {
		return mappings, nil
	}

	for _, pair := range strings.Split(s, ",") {
		ext, contentType, ok := strings.Cut(pair, "=")
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		contentType = strings.TrimSpace(contentType)
		if !ok || ext == "" || !strings.Contains(contentType, "/") {
			return nil, fmt.Errorf("invalid mapping %q, expected ext=type/subtype", pair)
		}

		existing, _ := mappings[ext].([]string)
		mappings[ext] = append(existing, contentType)
	}
	return mappings, nil
}
