package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"storycut/internal/media"
	"storycut/internal/services"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
}

// Probe extracts technical metadata from a source file. A missing file is
// an input error with code SourceUnreachable; a file ffprobe cannot parse
// or one without a video stream maps to UnrecognisedFormat.
func (s *Service) Probe(ctx context.Context, source string) (media.TechMetadata, error) {
	var meta media.TechMetadata
	if _, err := os.Stat(source); err != nil {
		return meta, services.Wrap(services.ErrInput, "probe", "stat", "SourceUnreachable", err)
	}

	stdout, _, err := s.runner(ctx, s.ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		source,
	)
	if err != nil {
		return meta, services.Wrap(services.ErrInput, "probe", "ffprobe", "UnrecognisedFormat", err)
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		return meta, services.Wrap(services.ErrInput, "probe", "parse", "UnrecognisedFormat", err)
	}

	meta.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	if br, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil {
		meta.Bitrate = br
	}

	for _, st := range out.Streams {
		switch st.CodecType {
		case "video":
			if meta.VideoCodec != "" {
				continue
			}
			meta.VideoCodec = st.CodecName
			meta.Width = st.Width
			meta.Height = st.Height
			meta.FPS = parseFrameRate(st.AvgFrameRate)
			if meta.FPS == 0 {
				meta.FPS = parseFrameRate(st.RFrameRate)
			}
		case "audio":
			if !meta.HasAudio {
				meta.HasAudio = true
				meta.AudioCodec = st.CodecName
			}
		}
	}

	if meta.VideoCodec == "" {
		return meta, services.Wrap(services.ErrInput, "probe", "streams", "UnrecognisedFormat",
			fmt.Errorf("no video stream in %s", source))
	}
	if meta.Duration <= 0 {
		return meta, services.Wrap(services.ErrInput, "probe", "duration", "UnrecognisedFormat",
			fmt.Errorf("non-positive duration for %s", source))
	}
	return meta, nil
}

// parseFrameRate converts ffprobe's rational notation ("30000/1001") to a
// float. A zero denominator yields 0.
func parseFrameRate(rate string) float64 {
	if rate == "" || rate == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(rate, "/")
	if !found {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// ProbeDuration returns only the container duration of a file. The render
// stage uses it to verify outputs before promoting them.
func (s *Service) ProbeDuration(ctx context.Context, path string) (float64, error) {
	stdout, _, err := s.runner(ctx, s.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(stdout), err)
	}
	return d, nil
}
