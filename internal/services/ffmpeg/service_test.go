package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storycut/internal/config"
	"storycut/internal/media"
	"storycut/internal/services"
)

type call struct {
	name string
	args []string
}

func fakeService(t *testing.T, stdout, stderr string, runErr error) (*Service, *[]call) {
	t.Helper()
	calls := &[]call{}
	cfg := config.Default()
	svc := NewService(&cfg).WithCommandRunner(
		func(_ context.Context, name string, args ...string) (string, string, error) {
			*calls = append(*calls, call{name: name, args: args})
			return stdout, stderr, runErr
		})
	return svc, calls
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestProbeParsesStreams(t *testing.T) {
	out := `{
	  "format": {"duration": "120.5", "bit_rate": "4500000"},
	  "streams": [
	    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"},
	    {"codec_type": "audio", "codec_name": "aac"}
	  ]
	}`
	svc, calls := fakeService(t, out, "", nil)

	src := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := svc.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if meta.Duration != 120.5 || meta.Width != 1920 || meta.Height != 1080 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if !meta.HasAudio || meta.AudioCodec != "aac" || meta.VideoCodec != "h264" {
		t.Fatalf("stream detection wrong: %+v", meta)
	}
	if meta.FPS < 29.96 || meta.FPS > 29.98 {
		t.Fatalf("fps = %v, want ~29.97", meta.FPS)
	}
	if meta.Bitrate != 4500000 {
		t.Fatalf("bitrate = %d", meta.Bitrate)
	}
	if got := (*calls)[0].args; !hasArg(got, "-show_streams") || !hasArg(got, "-show_format") {
		t.Fatalf("probe args missing stream/format flags: %v", got)
	}
}

func TestProbeMissingFileIsInputError(t *testing.T) {
	svc, _ := fakeService(t, "", "", nil)
	_, err := svc.Probe(context.Background(), "/nonexistent/file.mp4")
	if services.Classify(err) != services.ClassInput {
		t.Fatalf("missing file classified %v, want input", services.Classify(err))
	}
	if !strings.Contains(err.Error(), "SourceUnreachable") {
		t.Fatalf("error missing code: %v", err)
	}
}

func TestProbeNoVideoStream(t *testing.T) {
	out := `{"format": {"duration": "10"}, "streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`
	svc, _ := fakeService(t, out, "", nil)

	src := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Probe(context.Background(), src)
	if err == nil || !strings.Contains(err.Error(), "UnrecognisedFormat") {
		t.Fatalf("want UnrecognisedFormat, got %v", err)
	}
}

func TestExtractAudioArgs(t *testing.T) {
	svc, calls := fakeService(t, "", "", nil)
	if err := svc.ExtractAudio(context.Background(), "in.mp4", "out.wav"); err != nil {
		t.Fatal(err)
	}
	args := (*calls)[0].args
	if argAfter(args, "-ac") != "1" || argAfter(args, "-ar") != "16000" || argAfter(args, "-c:a") != "pcm_s16le" {
		t.Fatalf("audio args wrong: %v", args)
	}
	if !hasArg(args, "-vn") {
		t.Fatalf("video not disabled: %v", args)
	}
}

func TestParseSilence(t *testing.T) {
	log := `[silencedetect @ 0x55] silence_start: 1.25
[silencedetect @ 0x55] silence_end: 3.5 | silence_duration: 2.25
[silencedetect @ 0x55] silence_start: 10.125
`
	got := parseSilence(log)
	if len(got) != 2 {
		t.Fatalf("intervals = %d, want 2", len(got))
	}
	if got[0].Start != 1.25 || got[0].End != 3.5 {
		t.Fatalf("first interval = %+v", got[0])
	}
	// Unterminated silence runs to end of stream.
	if got[1].Start != 10.125 || got[1].End != -1 {
		t.Fatalf("trailing interval = %+v", got[1])
	}
}

func TestDetectSilenceArgs(t *testing.T) {
	svc, calls := fakeService(t, "", "", nil)
	if _, err := svc.DetectSilence(context.Background(), "audio.wav", 0.6); err != nil {
		t.Fatal(err)
	}
	args := (*calls)[0].args
	if argAfter(args, "-af") != "silencedetect=noise=-30dB:d=0.600" {
		t.Fatalf("filter = %q", argAfter(args, "-af"))
	}
	if argAfter(args, "-f") != "null" {
		t.Fatalf("null muxer missing: %v", args)
	}
}

func TestParseSceneTimes(t *testing.T) {
	log := `[Parsed_showinfo_1 @ 0x55] n:   0 pts:  90090 pts_time:3.003   duration:...
[Parsed_showinfo_1 @ 0x55] n:   1 pts: 270270 pts_time:9.009   duration:...
frame=    2 fps=0.0
`
	got := parseSceneTimes(log)
	if len(got) != 2 || got[0] != 3.003 || got[1] != 9.009 {
		t.Fatalf("times = %v", got)
	}
}

func TestDetectScenesFilter(t *testing.T) {
	svc, calls := fakeService(t, "", "", nil)
	if _, err := svc.DetectScenes(context.Background(), "in.mp4", 0.4); err != nil {
		t.Fatal(err)
	}
	if got := argAfter((*calls)[0].args, "-vf"); got != "select='gt(scene,0.4)',showinfo" {
		t.Fatalf("scene filter = %q", got)
	}
}

func TestExtractSegmentNeverCrops(t *testing.T) {
	svc, calls := fakeService(t, "", "", nil)
	spec := SegmentSpec{
		Source: "in.mp4", Start: 12.5, End: 20, Width: 608, Height: 1080, FPS: 30, Dest: "seg.mkv",
	}
	if err := svc.ExtractSegment(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	args := (*calls)[0].args
	if argAfter(args, "-ss") != "12.500" || argAfter(args, "-to") != "20.000" {
		t.Fatalf("trim args wrong: %v", args)
	}
	filter := argAfter(args, "-vf")
	if strings.Contains(filter, "crop") {
		t.Fatalf("segment filter crops: %q", filter)
	}
	if !strings.Contains(filter, "force_original_aspect_ratio=decrease") || !strings.Contains(filter, "pad=608:1080") {
		t.Fatalf("fit-and-pad missing: %q", filter)
	}
	// Seek flags must precede the input for fast seeking.
	var ssIdx, inIdx int
	for i, a := range args {
		switch a {
		case "-ss":
			ssIdx = i
		case "-i":
			inIdx = i
		}
	}
	if ssIdx > inIdx {
		t.Fatalf("-ss after -i: %v", args)
	}
}

func TestTargetDims(t *testing.T) {
	cases := []struct {
		ratio media.AspectRatio
		w, h  int
	}{
		{"16:9", 1920, 1080},
		{"9:16", 1080, 1920},
		{"1:1", 1080, 1080},
		{"4:5", 1080, 1350},
	}
	for _, tc := range cases {
		w, h, err := TargetDims(tc.ratio, 1080)
		if err != nil {
			t.Fatalf("%s: %v", tc.ratio, err)
		}
		if w != tc.w || h != tc.h {
			t.Errorf("%s: got %dx%d, want %dx%d", tc.ratio, w, h, tc.w, tc.h)
		}
	}
}

func TestConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	if err := WriteConcatList(list, []string{"/tmp/a.mkv", "/tmp/o'neil.mkv"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}
	want := "file '/tmp/a.mkv'\nfile '/tmp/o'\\''neil.mkv'\n"
	if string(data) != want {
		t.Fatalf("list = %q, want %q", data, want)
	}

	svc, calls := fakeService(t, "", "", nil)
	if err := svc.Concat(context.Background(), list, "out.mkv"); err != nil {
		t.Fatal(err)
	}
	args := (*calls)[0].args
	if argAfter(args, "-f") != "concat" || argAfter(args, "-c") != "copy" {
		t.Fatalf("concat args wrong: %v", args)
	}
}

func TestFinalizeBurnsCaptionsAndNormalizes(t *testing.T) {
	svc, calls := fakeService(t, "", "", nil)
	opts := FinalizeOptions{
		SubtitlePath:   `C:\subs\cut.srt`,
		FontName:       "Arial",
		FontSize:       24,
		LoudnessTarget: -16,
		Normalize:      true,
		HasAudio:       true,
	}
	if err := svc.Finalize(context.Background(), "joined.mkv", "final.mp4", opts); err != nil {
		t.Fatal(err)
	}
	args := (*calls)[0].args
	vf := argAfter(args, "-vf")
	if !strings.HasPrefix(vf, `subtitles=C\:\\subs\\cut.srt`) {
		t.Fatalf("subtitle path not escaped: %q", vf)
	}
	if !strings.Contains(vf, "FontName=Arial,FontSize=24") {
		t.Fatalf("style missing: %q", vf)
	}
	if argAfter(args, "-af") != "loudnorm=I=-16:TP=-1.5:LRA=11" {
		t.Fatalf("loudnorm = %q", argAfter(args, "-af"))
	}
	if argAfter(args, "-movflags") != "+faststart" {
		t.Fatalf("faststart missing: %v", args)
	}
}

func TestFinalizeWithoutCaptionsCopiesVideo(t *testing.T) {
	svc, calls := fakeService(t, "", "", nil)
	if err := svc.Finalize(context.Background(), "joined.mkv", "final.mp4", FinalizeOptions{}); err != nil {
		t.Fatal(err)
	}
	args := (*calls)[0].args
	if argAfter(args, "-c:v") != "copy" || argAfter(args, "-c:a") != "copy" {
		t.Fatalf("copy codecs missing: %v", args)
	}
}

func TestToolFailureIsExternalToolError(t *testing.T) {
	svc, _ := fakeService(t, "", "", errors.New("exit status 1"))
	err := svc.ExtractAudio(context.Background(), "in.mp4", "out.wav")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("want ErrExternalTool, got %v", err)
	}
}

func TestProbeDuration(t *testing.T) {
	svc, calls := fakeService(t, "58.275\n", "", nil)
	d, err := svc.ProbeDuration(context.Background(), "out.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if d != 58.275 {
		t.Fatalf("duration = %v", d)
	}
	if got := argAfter((*calls)[0].args, "-show_entries"); got != "format=duration" {
		t.Fatalf("probe entries = %q", got)
	}
}
