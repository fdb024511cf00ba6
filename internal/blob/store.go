package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storycut/internal/fileutil"
)

// Store yields stable paths inside the blob root and owns the lifecycle of
// per-job temp prefixes. Finalized files are immutable; writers stage into
// tmp/ and promote with a rename.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The layout directories are created by
// config.EnsureDirectories before the daemon starts.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the blob root directory.
func (s *Store) Root() string { return s.root }

// OriginalPath returns the storage path for an uploaded original.
func (s *Store) OriginalPath(mediaID, filename string) string {
	return filepath.Join(s.root, "originals", mediaID, filepath.Base(filename))
}

// AudioPath returns the derived mono PCM artifact path for a media.
func (s *Store) AudioPath(mediaID string) string {
	return filepath.Join(s.root, "derived", mediaID, "audio.wav")
}

// FramePath returns the sampled frame JPEG path for a timestamp.
func (s *Store) FramePath(mediaID string, t float64) string {
	return filepath.Join(s.root, "derived", mediaID, "frames", fmt.Sprintf("%.3f.jpg", t))
}

// FramesDir returns the frame directory for a media.
func (s *Store) FramesDir(mediaID string) string {
	return filepath.Join(s.root, "derived", mediaID, "frames")
}

// RenderPath returns the final output path for (plan, aspect).
func (s *Store) RenderPath(planID, aspectSlug string) string {
	return filepath.Join(s.root, "renders", planID, aspectSlug+".mp4")
}

// JobTmpDir returns the scratch prefix scoped to one job. Everything under
// it is removed when the job reaches a terminal status.
func (s *Store) JobTmpDir(jobID string) string {
	return filepath.Join(s.root, "tmp", jobID)
}

// SegmentPath returns the intermediate segment path inside a job's
// prefix. Segments are scoped per aspect ratio since each ratio conforms
// them to a different canvas.
func (s *Store) SegmentPath(jobID, aspectSlug string, index int) string {
	return filepath.Join(s.JobTmpDir(jobID), "segments", aspectSlug, fmt.Sprintf("%04d.mkv", index))
}

// EnsureParent creates the parent directory of path.
func (s *Store) EnsureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}
	return nil
}

// Promote moves a staged file onto its final path. The rename keeps
// finalized files atomic on the same filesystem; a cross-device move
// falls back to a verified copy staged next to the final path.
func (s *Store) Promote(staged, final string) error {
	if err := s.EnsureParent(final); err != nil {
		return err
	}
	if err := os.Rename(staged, final); err == nil {
		return nil
	}
	tmp := final + ".promote"
	if err := fileutil.CopyFileVerified(staged, tmp); err != nil {
		return fmt.Errorf("copy staged file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote file: %w", err)
	}
	_ = os.Remove(staged)
	return nil
}

// CleanupJob removes a job's entire temp prefix.
func (s *Store) CleanupJob(jobID string) error {
	dir := s.JobTmpDir(jobID)
	if !strings.HasPrefix(dir, filepath.Join(s.root, "tmp")) {
		return fmt.Errorf("refusing to remove %q outside tmp", dir)
	}
	return os.RemoveAll(dir)
}

// Exists reports whether a finalized file is present and non-empty.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
