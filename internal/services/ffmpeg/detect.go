package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"storycut/internal/media"
	"storycut/internal/services"
)

// DetectSilence runs the silencedetect filter over an extracted audio track
// and returns the raw intervals parsed from ffmpeg's stderr log. Callers
// normalize the result against the media duration.
func (s *Service) DetectSilence(ctx context.Context, audioPath string, minSilence float64) ([]media.SilenceInterval, error) {
	_, stderr, err := s.runner(ctx, s.ffmpegBin,
		"-hide_banner",
		"-nostats",
		"-i", audioPath,
		"-af", fmt.Sprintf("silencedetect=noise=-30dB:d=%s", fmtSeconds(minSilence)),
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "silence", "detect", audioPath, err)
	}
	return parseSilence(stderr), nil
}

// parseSilence reads silencedetect log lines:
//
//	[silencedetect @ 0x...] silence_start: 1.234
//	[silencedetect @ 0x...] silence_end: 5.678 | silence_duration: 4.444
//
// A trailing silence_start without a matching end is an interval that runs
// to the end of the stream; its End is left at -1 for the caller to clamp.
func parseSilence(log string) []media.SilenceInterval {
	var intervals []media.SilenceInterval
	open := -1.0
	haveOpen := false
	for _, line := range strings.Split(log, "\n") {
		if idx := strings.Index(line, "silence_start:"); idx >= 0 {
			if v, ok := firstFloat(line[idx+len("silence_start:"):]); ok {
				open, haveOpen = v, true
			}
			continue
		}
		if idx := strings.Index(line, "silence_end:"); idx >= 0 {
			v, ok := firstFloat(line[idx+len("silence_end:"):])
			if !ok || !haveOpen {
				continue
			}
			intervals = append(intervals, media.SilenceInterval{Start: open, End: v})
			haveOpen = false
		}
	}
	if haveOpen {
		intervals = append(intervals, media.SilenceInterval{Start: open, End: -1})
	}
	return intervals
}

// DetectScenes runs the scene-change expression over the video stream and
// returns candidate cut timestamps parsed from showinfo output.
func (s *Service) DetectScenes(ctx context.Context, source string, threshold float64) ([]float64, error) {
	_, stderr, err := s.runner(ctx, s.ffmpegBin,
		"-hide_banner",
		"-nostats",
		"-i", source,
		"-vf", fmt.Sprintf("select='gt(scene,%s)',showinfo", strconv.FormatFloat(threshold, 'f', -1, 64)),
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "scenes", "detect", source, err)
	}
	return parseSceneTimes(stderr), nil
}

// parseSceneTimes pulls pts_time values out of showinfo lines.
func parseSceneTimes(log string) []float64 {
	var times []float64
	for _, line := range strings.Split(log, "\n") {
		idx := strings.Index(line, "pts_time:")
		if idx < 0 {
			continue
		}
		if v, ok := firstFloat(line[idx+len("pts_time:"):]); ok {
			times = append(times, v)
		}
	}
	return times
}

// firstFloat parses the leading float token of s, tolerating whatever
// ffmpeg prints after it on the same line.
func firstFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := len(s)
	for i, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E' {
			continue
		}
		end = i
		break
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
