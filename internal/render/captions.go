package render

import (
	"fmt"
	"os"
	"strings"

	"storycut/internal/media"
)

// Caption is one subtitle cue on the output timeline.
type Caption struct {
	Start float64
	End   float64
	Text  string
}

// OutputCaptions maps transcript segments through the keep list onto the
// output timeline. Segments outside every keep are dropped; segments
// straddling a keep boundary are clipped to the kept part.
func OutputCaptions(keeps []media.Segment, transcript *media.Transcript) []Caption {
	if transcript == nil {
		return nil
	}
	var out []Caption
	offset := 0.0
	for _, keep := range keeps {
		for _, seg := range transcript.Segments {
			lo := max(seg.Start, keep.Start)
			hi := min(seg.End, keep.End)
			if hi <= lo {
				continue
			}
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			out = append(out, Caption{
				Start: offset + (lo - keep.Start),
				End:   offset + (hi - keep.Start),
				Text:  text,
			})
		}
		offset += keep.Duration()
	}
	return out
}

// FormatSRT renders the cues as an SRT document.
func FormatSRT(captions []Caption) string {
	var b strings.Builder
	for i, c := range captions {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(c.Start), srtTimestamp(c.End), c.Text)
	}
	return b.String()
}

// WriteSRT writes the cues to path in SRT format.
func WriteSRT(path string, captions []Caption) error {
	if err := os.WriteFile(path, []byte(FormatSRT(captions)), 0o644); err != nil {
		return fmt.Errorf("write captions: %w", err)
	}
	return nil
}

func srtTimestamp(t float64) string {
	if t < 0 {
		t = 0
	}
	ms := int(t*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
