package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"storycut/internal/media"
	"storycut/internal/services"
)

const describeSystemPrompt = `You describe video frames for an editing system.
For each numbered image, write one short factual sentence about what is visible.
Respond with JSON only:
{"descriptions": [{"index": 1, "description": "...", "confidence": 0.9}]}
Indexes are 1-based and must cover every image exactly once.`

// FrameDescription is the per-image result of a vision batch.
type FrameDescription struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type describePayload struct {
	Descriptions []FrameDescription `json:"descriptions"`
}

// DescribeFrames sends one batch of frame JPEGs to the vision model and
// returns descriptions aligned with the input order. A response that does
// not cover every image is a contract violation.
func (c *Client) DescribeFrames(ctx context.Context, framePaths []string, timestamps []float64) ([]media.Frame, media.TokenUsage, error) {
	var usage media.TokenUsage
	if len(framePaths) == 0 {
		return nil, usage, nil
	}
	if len(framePaths) != len(timestamps) {
		return nil, usage, services.Wrap(services.ErrFatal, "describe", "batch",
			fmt.Sprintf("%d paths vs %d timestamps", len(framePaths), len(timestamps)), nil)
	}

	images := make([]string, 0, len(framePaths))
	for _, path := range framePaths {
		url, err := encodeImageDataURL(path)
		if err != nil {
			return nil, usage, err
		}
		images = append(images, url)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Describe the following %d frames.", len(framePaths))
	for i, t := range timestamps {
		fmt.Fprintf(&prompt, "\nImage %d is the frame at %.3f seconds.", i+1, t)
	}

	res, err := c.CompleteJSON(ctx, Request{
		Model:        c.visionModel,
		SystemPrompt: describeSystemPrompt,
		UserPrompt:   prompt.String(),
		Images:       images,
	})
	if err != nil {
		return nil, usage, services.Wrap(services.ErrTransient, "describe", "complete", "", err)
	}
	usage = res.Usage

	var payload describePayload
	if err := DecodeJSON(res.Content, &payload); err != nil {
		return nil, usage, services.Wrap(services.ErrContract, "describe", "parse", "", err)
	}

	byIndex := make(map[int]FrameDescription, len(payload.Descriptions))
	for _, d := range payload.Descriptions {
		byIndex[d.Index] = d
	}
	frames := make([]media.Frame, 0, len(timestamps))
	for i, t := range timestamps {
		d, ok := byIndex[i+1]
		if !ok || strings.TrimSpace(d.Description) == "" {
			return nil, usage, services.Wrap(services.ErrContract, "describe", "coverage",
				fmt.Sprintf("missing description for image %d", i+1), nil)
		}
		frames = append(frames, media.Frame{
			T:           t,
			Description: strings.TrimSpace(d.Description),
			Confidence:  clamp01(d.Confidence),
		})
	}
	return frames, usage, nil
}

func encodeImageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read frame %s: %w", path, err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
