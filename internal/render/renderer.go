package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/registry"
	"storycut/internal/services"
	"storycut/internal/services/ffmpeg"
	"storycut/internal/stage"
)

// coverageTolerance is the allowed difference between the output
// duration and the plan's total keep time.
const coverageTolerance = 0.050

// ApplyInput is the job payload for one apply run.
type ApplyInput struct {
	PlanID         string   `json:"plan_id"`
	AspectRatios   []string `json:"aspect_ratios"`
	Captions       bool     `json:"captions,omitempty"`
	NormaliseAudio bool     `json:"normalise_audio,omitempty"`
}

// Renderer is the ApplyPlan job handler. Each requested aspect ratio is
// rendered concurrently into its own Render record; one failing ratio
// does not cancel the others.
type Renderer struct {
	cfg    *config.Config
	store  *registry.Store
	blobs  *blob.Store
	ffmpeg *ffmpeg.Service
	logger *slog.Logger
}

// NewRenderer constructs the plan application stage.
func NewRenderer(cfg *config.Config, store *registry.Store, blobs *blob.Store, svc *ffmpeg.Service, logger *slog.Logger) *Renderer {
	return &Renderer{
		cfg:    cfg,
		store:  store,
		blobs:  blobs,
		ffmpeg: svc,
		logger: logging.NewComponentLogger(logger, "render"),
	}
}

// Kind identifies the job kind this handler serves.
func (r *Renderer) Kind() media.JobKind { return media.JobApplyPlan }

// Requires declares no producer kinds: the plan reference in the input
// is the real precondition and is checked in Prepare.
func (r *Renderer) Requires() []media.JobKind { return nil }

// Prepare validates the input and short-circuits when every requested
// ratio already has a completed render.
func (r *Renderer) Prepare(ctx context.Context, job *media.Job) error {
	if r.cfg == nil || r.store == nil || r.blobs == nil || r.ffmpeg == nil {
		return services.Wrap(services.ErrConfiguration, "render", "prepare", "renderer is not configured", nil)
	}
	input, ratios, err := parseApplyInput(job.InputJSON)
	if err != nil {
		return err
	}
	plan, err := r.store.GetPlan(ctx, input.PlanID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return services.Wrap(services.ErrInput, "render", "prepare", "InvalidRequest: no such plan", nil)
		}
		return err
	}
	switch plan.Status {
	case media.PlanValidated, media.PlanRendering, media.PlanRendered:
	default:
		return services.Wrap(services.ErrInput, "render", "prepare",
			fmt.Sprintf("InvalidRequest: plan is %s, not validated", plan.Status), nil)
	}

	done := 0
	for _, ratio := range ratios {
		existing, err := r.store.FindRender(ctx, plan.ID, ratio, media.RenderCompleted)
		if err != nil {
			return err
		}
		if existing != nil {
			done++
		}
	}
	if done == len(ratios) {
		return stage.ErrAlreadyDone
	}
	return nil
}

func parseApplyInput(raw string) (ApplyInput, []media.AspectRatio, error) {
	var input ApplyInput
	if strings.TrimSpace(raw) == "" {
		return input, nil, services.Wrap(services.ErrInput, "render", "parse", "InvalidRequest: empty input", nil)
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return input, nil, services.Wrap(services.ErrInput, "render", "parse", "InvalidRequest: malformed input", err)
	}
	if input.PlanID == "" {
		return input, nil, services.Wrap(services.ErrInput, "render", "parse", "InvalidRequest: plan_id required", nil)
	}
	if len(input.AspectRatios) == 0 {
		return input, nil, services.Wrap(services.ErrInput, "render", "parse", "InvalidRequest: aspect_ratios required", nil)
	}
	seen := make(map[media.AspectRatio]struct{}, len(input.AspectRatios))
	ratios := make([]media.AspectRatio, 0, len(input.AspectRatios))
	for _, raw := range input.AspectRatios {
		ratio := media.AspectRatio(strings.TrimSpace(raw))
		if _, _, err := ratio.Parse(); err != nil {
			return input, nil, services.Wrap(services.ErrInput, "render", "parse", "InvalidRequest: "+err.Error(), nil)
		}
		if _, dup := seen[ratio]; dup {
			continue
		}
		seen[ratio] = struct{}{}
		ratios = append(ratios, ratio)
	}
	return input, ratios, nil
}

type ratioResult struct {
	skipped   bool
	cancelled bool
	err       error
}

// Execute renders every requested ratio. The job completes only when
// all ratios completed; a partial failure reports the aggregate error
// so a re-issued apply can fill in the missing ratios.
func (r *Renderer) Execute(ctx context.Context, job *media.Job) error {
	logger := logging.WithContext(ctx, r.logger)
	input, ratios, err := parseApplyInput(job.InputJSON)
	if err != nil {
		return err
	}
	plan, err := r.store.GetPlan(ctx, input.PlanID)
	if err != nil {
		return err
	}
	switch plan.Status {
	case media.PlanValidated, media.PlanRendering, media.PlanRendered:
	default:
		return services.Wrap(services.ErrInput, "render", "execute",
			fmt.Sprintf("InvalidRequest: plan is %s, not validated", plan.Status), nil)
	}
	m, err := r.store.GetMedia(ctx, plan.MediaID)
	if err != nil {
		return err
	}
	if m.Tech == nil {
		return services.Wrap(services.ErrFatal, "render", "execute", "media has no technical metadata", nil)
	}

	keeps := NormalizeKeeps(plan.KeepSegments(), m.Tech.FPS)
	if len(keeps) == 0 {
		return services.Wrap(services.ErrContract, "render", "execute", "InvalidPlan: UnrenderablePlan: no keep segments survive normalization", nil)
	}
	defer func() {
		if err := r.blobs.CleanupJob(job.ID); err != nil {
			logger.Warn("temp cleanup failed", logging.Error(err))
		}
	}()

	totalKeep := TotalDuration(keeps)
	if factor := r.cfg.Render.ApplyTimeoutFactor; factor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(factor*totalKeep*float64(time.Second)))
		defer cancel()
	}

	// Plans are re-renderable; the conflict on an already-rendering or
	// re-rendered plan is benign.
	if err := r.store.UpdatePlanStatus(ctx, plan.ID, media.PlanValidated, media.PlanRendering); err != nil && !errors.Is(err, registry.ErrConflict) {
		return err
	}

	srtPath, err := r.prepareCaptions(ctx, job.ID, m.ID, keeps, input.Captions)
	if err != nil {
		return err
	}

	results := make([]ratioResult, len(ratios))
	var wg sync.WaitGroup
	for i, ratio := range ratios {
		existing, err := r.store.FindRender(ctx, plan.ID, ratio, media.RenderCompleted)
		if err != nil {
			return err
		}
		if existing != nil {
			results[i] = ratioResult{skipped: true}
			continue
		}
		rec, err := r.store.CreateRender(ctx, m.ID, plan.ID, ratio)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(i int, ratio media.AspectRatio, rec *media.Render) {
			defer wg.Done()
			results[i] = r.renderOne(ctx, job, m, plan, keeps, ratio, rec, srtPath, input)
		}(i, ratio, rec)
	}
	wg.Wait()

	rendered, skipped := 0, 0
	var failures []string
	cancelled := false
	for i, res := range results {
		switch {
		case res.skipped:
			skipped++
		case res.cancelled:
			cancelled = true
		case res.err != nil:
			failures = append(failures, fmt.Sprintf("%s: %v", ratios[i], res.err))
		default:
			rendered++
		}
	}
	if cancelled {
		return stage.ErrCancelled
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrExternalTool, "render", "apply", strings.Join(failures, "; "), nil)
	}

	if err := r.store.UpdatePlanStatus(ctx, plan.ID, media.PlanRendering, media.PlanRendered); err != nil && !errors.Is(err, registry.ErrConflict) {
		return err
	}
	result, _ := json.Marshal(map[string]int{"rendered": rendered, "skipped": skipped})
	job.ResultJSON = string(result)
	logger.Info("plan applied",
		logging.String("plan_id", plan.ID),
		logging.Int("rendered", rendered),
		logging.Int("skipped", skipped),
		logging.Float64("total_keep", totalKeep))
	return nil
}

// prepareCaptions writes the output-timeline SRT when captions were
// requested and a transcript exists.
func (r *Renderer) prepareCaptions(ctx context.Context, jobID, mediaID string, keeps []media.Segment, wanted bool) (string, error) {
	if !wanted {
		return "", nil
	}
	transcript, err := r.store.GetTranscript(ctx, mediaID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	captions := OutputCaptions(keeps, transcript)
	if len(captions) == 0 {
		return "", nil
	}
	path := filepath.Join(r.blobs.JobTmpDir(jobID), "captions.srt")
	if err := r.blobs.EnsureParent(path); err != nil {
		return "", err
	}
	if err := WriteSRT(path, captions); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Renderer) renderOne(ctx context.Context, job *media.Job, m *media.Media, plan *media.Plan, keeps []media.Segment, ratio media.AspectRatio, rec *media.Render, srtPath string, input ApplyInput) ratioResult {
	fail := func(code string, err error) ratioResult {
		_ = r.store.FailRender(ctx, rec.ID, media.JobError{Code: code, Message: err.Error()})
		return ratioResult{err: err}
	}

	if err := r.store.StartRender(ctx, rec.ID); err != nil {
		return ratioResult{err: err}
	}
	width, height, err := ffmpeg.TargetDims(ratio, r.cfg.Render.ReferenceWidth)
	if err != nil {
		return fail("InvalidRequest", err)
	}
	fps := m.Tech.FPS
	if fps <= 0 {
		fps = 30
	}
	slug := ratio.Slug()

	parallel := r.cfg.Render.SegmentParallelism
	if parallel <= 0 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)
	segErrs := make([]error, len(keeps))
	paths := make([]string, len(keeps))
	var wg sync.WaitGroup
	cancelled := false
	for i, seg := range keeps {
		if flag, err := r.store.CancelRequested(ctx, job.ID); err == nil && flag {
			cancelled = true
			break
		}
		paths[i] = r.blobs.SegmentPath(job.ID, slug, i)
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, seg media.Segment) {
			defer wg.Done()
			defer func() { <-sem }()
			segErrs[i] = r.extractSegment(ctx, ffmpeg.SegmentSpec{
				Source: m.SourceURI,
				Start:  seg.Start,
				End:    seg.End,
				Width:  width,
				Height: height,
				FPS:    fps,
				Dest:   paths[i],
			})
		}(i, seg)
	}
	wg.Wait()
	if cancelled {
		_ = r.store.CancelRender(ctx, rec.ID)
		return ratioResult{cancelled: true}
	}
	for _, err := range segErrs {
		if err != nil {
			return fail("EncodeError", err)
		}
	}

	tmpDir := r.blobs.JobTmpDir(job.ID)
	listPath := filepath.Join(tmpDir, "segments", slug, "concat.txt")
	if err := ffmpeg.WriteConcatList(listPath, paths); err != nil {
		return fail("OutputWriteError", err)
	}
	joined := filepath.Join(tmpDir, slug+"-joined.mkv")
	if err := r.ffmpeg.Concat(ctx, listPath, joined); err != nil {
		return fail("EncodeError", err)
	}

	staged := filepath.Join(tmpDir, slug+".mp4")
	if err := r.ffmpeg.Finalize(ctx, joined, staged, ffmpeg.FinalizeOptions{
		SubtitlePath:   srtPath,
		FontName:       r.cfg.Render.CaptionFont,
		FontSize:       r.cfg.Render.CaptionFontSize,
		LoudnessTarget: r.cfg.Render.LoudnessTargetLUFS,
		Normalize:      input.NormaliseAudio,
		HasAudio:       m.Tech.HasAudio,
	}); err != nil {
		return fail("EncodeError", err)
	}

	got, err := r.ffmpeg.ProbeDuration(ctx, staged)
	if err != nil {
		return fail("CorruptIntermediate", err)
	}
	want := TotalDuration(keeps)
	if math.Abs(got-want) > coverageTolerance {
		return fail("CorruptIntermediate",
			fmt.Errorf("output duration %.3fs does not match plan keep %.3fs", got, want))
	}

	final := r.blobs.RenderPath(plan.ID, slug)
	if err := r.blobs.Promote(staged, final); err != nil {
		return fail("OutputWriteError", err)
	}
	if err := r.store.CompleteRender(ctx, rec.ID, final, got); err != nil {
		return ratioResult{err: err}
	}
	return ratioResult{}
}

// extractSegment conforms one keep to the target canvas, retrying a
// failed encode once.
func (r *Renderer) extractSegment(ctx context.Context, spec ffmpeg.SegmentSpec) error {
	if err := r.blobs.EnsureParent(spec.Dest); err != nil {
		return err
	}
	err := r.ffmpeg.ExtractSegment(ctx, spec)
	if err != nil && ctx.Err() == nil {
		err = r.ffmpeg.ExtractSegment(ctx, spec)
	}
	return err
}

// HealthCheck reports renderer readiness.
func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	const name = "render"
	if r.cfg == nil || r.store == nil || r.blobs == nil || r.ffmpeg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if err := r.ffmpeg.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
