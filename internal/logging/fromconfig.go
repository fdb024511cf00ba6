package logging

import (
	"log/slog"
	"path/filepath"

	"storycut/internal/config"
)

// NewFromConfig builds the daemon logger from the logging section,
// writing to stdout and a rotating-friendly file under the log dir.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return NewNop(), nil
	}
	return New(Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "storycutd.log"),
		},
	})
}
