// Package ffmpeg wraps the ffmpeg and ffprobe binaries behind a small
// service surface. All detection output is parsed from the tool's own
// stdout/stderr; nothing here touches the registry.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"storycut/internal/config"
)

// commandRunner executes a binary and returns its captured stdout and
// stderr. Tests inject a fake to assert exact argument shapes.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// Service shells out to ffmpeg/ffprobe for probing, extraction,
// detection, and rendering primitives.
type Service struct {
	ffmpegBin  string
	ffprobeBin string
	runner     commandRunner
}

// NewService creates a service resolving binary names from config.
func NewService(cfg *config.Config) *Service {
	return &Service{
		ffmpegBin:  cfg.FFmpegBinary(),
		ffprobeBin: cfg.FFprobeBinary(),
		runner:     runCommand,
	}
}

// WithCommandRunner overrides process execution for tests.
func (s *Service) WithCommandRunner(runner commandRunner) *Service {
	s.runner = runner
	return s
}

func runCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), stderr.String(),
			fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(lastLines(stderr.String(), 5)))
	}
	return stdout.String(), stderr.String(), nil
}

// lastLines keeps error messages readable when ffmpeg dumps a long log.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// Available reports whether both binaries resolve on PATH.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.ffmpegBin); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath(s.ffprobeBin); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	return nil
}
