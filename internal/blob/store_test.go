package blob

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsFollowLayout(t *testing.T) {
	s := New("/data/blobs")

	cases := map[string]string{
		s.OriginalPath("m-1", "talk.mp4"): "/data/blobs/originals/m-1/talk.mp4",
		s.AudioPath("m-1"):                "/data/blobs/derived/m-1/audio.wav",
		s.FramePath("m-1", 12.5):          "/data/blobs/derived/m-1/frames/12.500.jpg",
		s.RenderPath("p-1", "9x16"):       "/data/blobs/renders/p-1/9x16.mp4",
		s.SegmentPath("j-1", "16x9", 3):   "/data/blobs/tmp/j-1/segments/16x9/0003.mkv",
	}
	for got, want := range cases {
		if got != filepath.FromSlash(want) {
			t.Errorf("path = %q, want %q", got, want)
		}
	}
}

func TestOriginalPathStripsDirectoryComponents(t *testing.T) {
	s := New("/data/blobs")
	got := s.OriginalPath("m-1", "../../etc/passwd")
	if got != filepath.FromSlash("/data/blobs/originals/m-1/passwd") {
		t.Fatalf("traversal not stripped: %q", got)
	}
}

func TestPromoteAndCleanup(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	staged := filepath.Join(s.JobTmpDir("j-1"), "out.mp4")
	if err := s.EnsureParent(staged); err != nil {
		t.Fatalf("ensure parent: %v", err)
	}
	if err := os.WriteFile(staged, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	final := s.RenderPath("p-1", "16x9")
	if err := s.Promote(staged, final); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !s.Exists(final) {
		t.Fatal("final file missing after promote")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("staged file still present: %v", err)
	}

	if err := s.CleanupJob("j-1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(s.JobTmpDir("j-1")); !os.IsNotExist(err) {
		t.Fatalf("tmp prefix still present: %v", err)
	}
	// Finalized output untouched by job cleanup.
	if !s.Exists(final) {
		t.Fatal("render removed by job cleanup")
	}
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	path := filepath.Join(root, "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if s.Exists(path) {
		t.Fatal("empty file reported as existing artifact")
	}
	if s.Exists(filepath.Join(root, "missing")) {
		t.Fatal("missing file reported as existing")
	}
}
