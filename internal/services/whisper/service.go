// Package whisper adapts the whisperx command line transcriber. It feeds
// the tool a mono 16 kHz WAV and parses the word-aligned JSON it writes.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"storycut/internal/config"
	"storycut/internal/media"
	"storycut/internal/services"
)

// Service runs the transcriber binary and converts its output into the
// registry transcript shape.
type Service struct {
	binary   string
	model    string
	language string
	runner   func(ctx context.Context, name string, args ...string) error
}

// NewService builds a transcription service from config.
func NewService(cfg *config.Config) *Service {
	return &Service{
		binary:   cfg.Whisper.Binary,
		model:    cfg.Whisper.Model,
		language: cfg.Whisper.Language,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) *Service {
	s.runner = runner
	return s
}

// Model returns the configured model name for logging.
func (s *Service) Model() string { return s.model }

// Available reports whether the transcriber binary resolves on PATH.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("%s not found: %w", s.binary, err)
	}
	return nil
}

// Transcribe runs the transcriber over an extracted WAV and returns the
// parsed transcript. workDir receives the tool's output files and belongs
// to the calling job's temp prefix.
func (s *Service) Transcribe(ctx context.Context, audioPath, workDir string) (media.Transcript, error) {
	var transcript media.Transcript

	if audioPath == "" {
		return transcript, services.Wrap(services.ErrFatal, "transcribe", "args", "audio path required", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return transcript, fmt.Errorf("transcribe: ensure work dir: %w", err)
	}

	if err := s.run(ctx, s.binary, s.buildArgs(audioPath, workDir)...); err != nil {
		return transcript, services.Wrap(services.ErrExternalTool, "transcribe", s.binary, "", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(workDir, base+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return transcript, services.Wrap(services.ErrContract, "transcribe", "parse", jsonPath, err)
	}
	transcript.Segments = segments
	transcript.Language = s.languageTag()
	return transcript, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.runner != nil {
		return s.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (s *Service) buildArgs(audioPath, workDir string) []string {
	args := []string{
		audioPath,
		"--model", s.model,
		"--output_dir", workDir,
		"--output_format", "json",
		"--segment_resolution", "sentence",
	}
	if lang := s.languageTag(); lang != "" {
		args = append(args, "--language", lang)
	}
	return args
}

// languageTag normalizes the configured language to a base ISO 639-1 code.
// Empty means the tool auto-detects.
func (s *Service) languageTag() string {
	raw := strings.TrimSpace(s.language)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	base, _ := tag.Base()
	return base.String()
}

type payloadWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type payloadSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []payloadWord `json:"words"`
}

type payload struct {
	Segments []payloadSegment `json:"segments"`
}

// LoadSegments loads transcript segments from the tool's JSON output.
func LoadSegments(jsonPath string) ([]media.TranscriptSegment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse transcriber json: %w", err)
	}
	segments := make([]media.TranscriptSegment, 0, len(p.Segments))
	for _, seg := range p.Segments {
		out := media.TranscriptSegment{
			Text:  strings.TrimSpace(seg.Text),
			Start: seg.Start,
			End:   seg.End,
		}
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			out.Words = append(out.Words, media.Word{Word: word, Start: w.Start, End: w.End})
		}
		segments = append(segments, out)
	}
	return segments, nil
}
