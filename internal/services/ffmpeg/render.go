package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strings"

	"storycut/internal/media"
	"storycut/internal/services"
)

// SegmentSpec describes one keep-interval extraction into a uniform
// intermediate. All segments of a render share Width/Height/FPS so the
// concat demuxer can join them without re-encoding.
type SegmentSpec struct {
	Source string
	Start  float64
	End    float64
	Width  int
	Height int
	FPS    float64
	Dest   string
}

// ExtractSegment cuts [Start, End) out of the source and conforms it to
// the target canvas. Sources with a different aspect ratio are scaled to
// fit and padded with black bars; content is never cropped.
func (s *Service) ExtractSegment(ctx context.Context, spec SegmentSpec) error {
	_, _, err := s.runner(ctx, s.ffmpegBin,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmtSeconds(spec.Start),
		"-to", fmtSeconds(spec.End),
		"-i", spec.Source,
		"-vf", FitPadFilter(spec.Width, spec.Height, spec.FPS),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		spec.Dest,
	)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "segment",
			fmt.Sprintf("%s-%s", fmtSeconds(spec.Start), fmtSeconds(spec.End)), err)
	}
	return nil
}

// FitPadFilter builds the scale-and-pad chain that letterboxes or
// pillarboxes a source onto a w x h canvas at a fixed frame rate.
func FitPadFilter(w, h int, fps float64) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%s",
		w, h, w, h, strings.TrimRight(strings.TrimRight(fmtSeconds(fps), "0"), "."))
}

// TargetDims maps an aspect ratio onto output pixel dimensions. The
// reference width fixes the short side of the canvas; both dimensions are
// rounded down to even values for yuv420p.
func TargetDims(ratio media.AspectRatio, referenceWidth int) (int, int, error) {
	rw, rh, err := ratio.Parse()
	if err != nil {
		return 0, 0, err
	}
	var w, h int
	if rw >= rh {
		h = referenceWidth
		w = referenceWidth * rw / rh
	} else {
		w = referenceWidth
		h = referenceWidth * rh / rw
	}
	return w &^ 1, h &^ 1, nil
}

// WriteConcatList writes a concat demuxer list file referencing the given
// segment paths in order.
func WriteConcatList(path string, segments []string) error {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(seg, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// Concat joins uniform intermediates with the concat demuxer. The stream
// copy keeps the join lossless; only Finalize re-encodes.
func (s *Service) Concat(ctx context.Context, listPath, dest string) error {
	_, _, err := s.runner(ctx, s.ffmpegBin,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		dest,
	)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "concat", listPath, err)
	}
	return nil
}

// FinalizeOptions configures the last encoding pass over a joined cut.
type FinalizeOptions struct {
	SubtitlePath   string
	FontName       string
	FontSize       int
	LoudnessTarget float64
	Normalize      bool
	HasAudio       bool
}

// Finalize produces the deliverable MP4: optional caption burn-in,
// optional loudness normalization, and a faststart container layout.
func (s *Service) Finalize(ctx context.Context, src, dest string, opts FinalizeOptions) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
	}

	if opts.SubtitlePath != "" {
		filter := "subtitles=" + escapeFilterPath(opts.SubtitlePath)
		if opts.FontName != "" {
			filter += fmt.Sprintf(":force_style='FontName=%s,FontSize=%d'", opts.FontName, opts.FontSize)
		}
		args = append(args,
			"-vf", filter,
			"-c:v", "libx264",
			"-preset", "medium",
			"-crf", "20",
			"-pix_fmt", "yuv420p",
		)
	} else {
		args = append(args, "-c:v", "copy")
	}

	if opts.HasAudio && opts.Normalize {
		args = append(args,
			"-af", fmt.Sprintf("loudnorm=I=%s:TP=-1.5:LRA=11", trimFloat(opts.LoudnessTarget)),
			"-c:a", "aac",
			"-b:a", "192k",
		)
	} else {
		args = append(args, "-c:a", "copy")
	}

	args = append(args, "-movflags", "+faststart", dest)

	if _, _, err := s.runner(ctx, s.ffmpegBin, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "finalize", dest, err)
	}
	return nil
}

// escapeFilterPath escapes a path for use inside an ffmpeg filter graph
// argument, where backslashes and colons are structural.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	return p
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmtSeconds(v), "0"), ".")
}
