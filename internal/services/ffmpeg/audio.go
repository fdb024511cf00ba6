package ffmpeg

import (
	"context"
	"fmt"

	"storycut/internal/services"
)

// ExtractAudio decodes the first audio track of source into a mono 16 kHz
// signed 16-bit WAV at dest, the layout the transcriber expects.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	_, _, err := s.runner(ctx, s.ffmpegBin,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "audio", "extract",
			fmt.Sprintf("decode %s", source), err)
	}
	return nil
}
