package ffmpeg

import (
	"context"
	"strconv"

	"storycut/internal/services"
)

// ExtractFrame grabs a single JPEG frame at timestamp t. Seeking before the
// input keeps extraction fast on long sources.
func (s *Service) ExtractFrame(ctx context.Context, source string, t float64, dest string) error {
	_, _, err := s.runner(ctx, s.ffmpegBin,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmtSeconds(t),
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		dest,
	)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "frames", "extract",
			"t="+fmtSeconds(t), err)
	}
	return nil
}

// fmtSeconds renders a timestamp with millisecond precision for ffmpeg
// arguments.
func fmtSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
