package enrichment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"
	"link-tracker/pkg/fsutil"
)

// Runner produces the raw text report for an identifier
type Runner interface {
	Run(ctx context.Context, identifier string) (string, error)
}

// CommandRunner runs an external lookup tool.
//
// The command template is split on whitespace; "{identifier}" and "{output}"
// are substituted per argument, so identifiers never reach a shell.
type CommandRunner struct {
	dir       string
	template  []string
	outputDir string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewCommandRunner creates a runner executing template inside dir. Reports are
// written to outputDir as <identifier>.txt.
func NewCommandRunner(dir, template, outputDir string, timeout time.Duration, logger *slog.Logger) *CommandRunner {
	return &CommandRunner{
		dir:       dir,
		template:  strings.Fields(template),
		outputDir: outputDir,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run executes the tool. A timeout or non-zero exit is not an error: whatever
// the tool managed to write is returned. A missing tool directory is.
func (r *CommandRunner) Run(ctx context.Context, identifier string) (string, error) {
	info, err := os.Stat(r.dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrToolMissing, r.dir)
	}
	if len(r.template) == 0 {
		return "", errors.New("enrichment tool command is empty")
	}
	// Would be parsed as an option by the tool
	if strings.HasPrefix(identifier, "-") {
		return "", fmt.Errorf("identifier %q must not start with '-'", identifier)
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outPath, err := filepath.Abs(filepath.Join(r.outputDir, fsutil.SafeName(identifier)+".txt"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}
	// A stale report from an earlier run must not be mistaken for this one
	_ = os.Remove(outPath)

	args := make([]string, len(r.template))
	replacer := strings.NewReplacer("{identifier}", identifier, "{output}", outPath)
	for i, arg := range r.template {
		args[i] = replacer.Replace(arg)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = r.dir
	cmd.WaitDelay = 5 * time.Second
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	start := time.Now()
	runErr := cmd.Run()
	metrics.EnrichmentToolDuration.Observe(time.Since(start).Seconds())

	switch {
	case runErr == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.logger.Warn("Enrichment tool timed out, using partial output", "identifier", identifier, "timeout", r.timeout)
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The binary could not be started at all
			return "", fmt.Errorf("failed to start enrichment tool: %w", runErr)
		}
		r.logger.Warn("Enrichment tool exited with an error", "identifier", identifier, "exit_code", exitErr.ExitCode())
	}

	data, err := os.ReadFile(outPath)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("Failed to read enrichment report", "path", outPath, "error", err)
	}
	return stdout.String(), nil
}
