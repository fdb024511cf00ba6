// Package audioanalysis owns the derived audio artifact and the silence
// map. Both the transcriber and the silence detector consume the same
// extracted mono 16 kHz WAV.
package audioanalysis

import (
	"context"
	"path/filepath"

	"storycut/internal/blob"
	"storycut/internal/media"
	"storycut/internal/services/ffmpeg"
)

// Extractor produces the per-media audio artifact on demand. Extraction
// is idempotent: an existing artifact is returned unchanged.
type Extractor struct {
	blobs  *blob.Store
	ffmpeg *ffmpeg.Service
}

// NewExtractor constructs the shared audio extractor.
func NewExtractor(blobs *blob.Store, svc *ffmpeg.Service) *Extractor {
	return &Extractor{blobs: blobs, ffmpeg: svc}
}

// EnsureAudio returns the path of the extracted audio for a media,
// extracting it first when absent. The WAV is staged under the calling
// job's temp prefix and promoted so the final file is never partial.
func (e *Extractor) EnsureAudio(ctx context.Context, m *media.Media, jobID string) (string, error) {
	final := e.blobs.AudioPath(m.ID)
	if e.blobs.Exists(final) {
		return final, nil
	}

	staged := filepath.Join(e.blobs.JobTmpDir(jobID), "audio.wav")
	if err := e.blobs.EnsureParent(staged); err != nil {
		return "", err
	}
	if err := e.ffmpeg.ExtractAudio(ctx, m.SourceURI, staged); err != nil {
		return "", err
	}
	if err := e.blobs.Promote(staged, final); err != nil {
		return "", err
	}
	return final, nil
}
