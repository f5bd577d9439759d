package classifier

import (
	"context"
	"errors"
	osexec "os/exec"
	"regexp"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"go.uber.org/zap"

	"github.com/mikey/attachment-spoof-filter/internal/core"
)

var (
	diagnosticPattern = regexp.MustCompile(`\(.*?\)`)
	separatorPattern  = regexp.MustCompile(`[:;\s]+`)
)

// FileCommandClassifier implements core.RawClassifier by running the
// file(1) command
type FileCommandClassifier struct {
	executor exec.Executor
	command  string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFileCommandClassifier creates a new classifier. The executor is cloned
// for every call so concurrent classifications share no state.
func NewFileCommandClassifier(executor exec.Executor, command string, timeout time.Duration, logger *zap.Logger) *FileCommandClassifier {
	if executor == nil {
		executor = exec.New()
	}
	if command == "" {
		command = "file"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileCommandClassifier{
		executor: executor,
		command:  command,
		timeout:  timeout,
		logger:   logger,
	}
}

// Classify runs `file -b --mime` on path and returns the reported type
func (c *FileCommandClassifier) Classify(path string) (string, error) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.NewWrapper(c.executor.Clone(), c.command)
	cmd.WithContext(ctx)

	result, err := cmd.Run("-b", "--mime", path)
	if err != nil {
		if ctx.Err() != nil {
			// A killed process reports its signal, not the deadline
			err = errors.Join(ctx.Err(), err)
		}
		return "", classifyError(err, path)
	}

	contentType := parseOutput(result.Stdout)
	c.logger.Debug("File command classified file",
		zap.String("path", path),
		zap.String("output", strings.TrimSpace(result.Stdout)),
		zap.String("content_type", contentType))

	return contentType, nil
}

// parseOutput keeps the first token of the output, e.g. image/png from
// "image/png; charset=binary". Diagnostics such as
// "cannot open `x' (No such file or directory)" map to core.SensibleDefault.
func parseOutput(output string) string {
	output = strings.TrimSpace(output)
	if output == "" || diagnosticPattern.MatchString(output) {
		return core.SensibleDefault
	}

	fields := separatorPattern.Split(output, -1)
	if len(fields) == 0 || fields[0] == "" {
		return core.SensibleDefault
	}
	return fields[0]
}

func classifyError(err error, path string) error {
	ctx := map[string]interface{}{"path": path}

	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		ctx["exit_code"] = execErr.ExitCode
		if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
			ctx["stderr"] = stderr
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return platformerrors.WrapWithContext(err, platformerrors.CodeTimeout, "file command timed out", ctx)
	case errors.Is(err, osexec.ErrNotFound):
		return platformerrors.WrapWithContext(err, platformerrors.CodeUnavailable, "file command not available", ctx)
	default:
		return platformerrors.WrapWithContext(err, platformerrors.CodeExecutionFailed, "file command failed", ctx)
	}
}

// NoopClassifier answers core.SensibleDefault for every file. It stands in
// when the file command is disabled.
type NoopClassifier struct{}

// Classify implements core.RawClassifier
func (NoopClassifier) Classify(string) (string, error) {
	return core.SensibleDefault, nil
}
