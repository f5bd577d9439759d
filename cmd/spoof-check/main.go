package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/core"
	"github.com/mikey/attachment-spoof-filter/internal/di"
	"github.com/mikey/attachment-spoof-filter/internal/ports"
)

// Exit codes
const (
	exitOK      = 0
	exitError   = 1
	exitSpoofed = 2
)

func main() {
	flags, err := di.ParseFlags("spoof-check", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(exitOK)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(exitError)
	}

	code := exitOK
	err = container.Invoke(func(
		logger *zap.Logger,
		service *core.AttachmentService,
		messageFilter ports.MessageFilter,
	) error {
		defer logger.Sync()

		var runErr error
		code, runErr = run(flags, logger, service, messageFilter)
		return runErr
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(code)
}

func run(flags *di.CLIFlags, logger *zap.Logger, service *core.AttachmentService, messageFilter ports.MessageFilter) (int, error) {
	code := exitOK

	if flags.File != "" {
		spoofed, err := checkFile(flags, logger, service)
		if err != nil {
			return exitError, err
		}
		if spoofed {
			code = exitSpoofed
		}
	}

	if flags.Email != "" {
		raw, err := readEmail(flags.Email)
		if err != nil {
			return exitError, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := messageFilter.ProcessMessage(ctx, raw)
		if err != nil {
			return exitError, err
		}
		if result.Spoofed {
			code = exitSpoofed
		}
	}

	return code, nil
}

func checkFile(flags *di.CLIFlags, logger *zap.Logger, service *core.AttachmentService) (bool, error) {
	file, err := os.Open(flags.File)
	if err != nil {
		return false, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	logger.Debug("Inspecting file", zap.String("file", flags.File))

	name := flags.Name
	if name == "" {
		name = filepath.Base(flags.File)
	}

	startTime := time.Now()
	report := service.Inspect(&core.Attachment{
		File:        file,
		Filename:    name,
		ContentType: flags.ContentType,
	})

	fmt.Printf("\n=== File ===\n")
	fmt.Printf("Path: %s\n", flags.File)
	fmt.Printf("Name: %s\n", name)
	fmt.Printf("Detected content type: %s\n", report.Verdict.Detected)

	if flags.ContentType == "" {
		fmt.Printf("Processing time: %v\n", time.Since(startTime))
		return false, nil
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Declared content type: %s\n", report.Verdict.Supplied)
	if report.Verdict.Mapped != "" {
		fmt.Printf("Mapped content type: %s\n", report.Verdict.Mapped)
	}
	fmt.Printf("Spoofed: %t\n", report.Verdict.Spoofed)
	fmt.Printf("Processing time: %v\n", time.Since(startTime))

	return report.Verdict.Spoofed, nil
}

func readEmail(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read email file: %w", err)
	}
	return raw, nil
}
