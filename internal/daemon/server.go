package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"storycut/internal/api"
	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/planner"
	"storycut/internal/registry"
	"storycut/internal/render"
	"storycut/internal/services"
	"storycut/internal/workflow"
)

type apiServer struct {
	cfg       *config.Config
	store     *registry.Store
	blobs     *blob.Store
	workflow  *workflow.Manager
	heuristic *planner.HeuristicPlanner
	logger    *slog.Logger

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, store *registry.Store, blobs *blob.Store, wf *workflow.Manager, heuristic *planner.HeuristicPlanner, logger *slog.Logger) *apiServer {
	s := &apiServer{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		workflow:  wf,
		heuristic: heuristic,
		logger:    logging.NewComponentLogger(logger, "api-server"),
	}
	s.server = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /media", s.handleRegisterMedia)
	mux.HandleFunc("GET /media/{id}", s.handleGetMedia)
	mux.HandleFunc("DELETE /media/{id}", s.handleDeleteMedia)
	mux.HandleFunc("POST /media/{id}/enrich", s.handleEnrich)
	mux.HandleFunc("GET /media/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /media/{id}/scenes", s.handleScenes)
	mux.HandleFunc("GET /media/{id}/candidates", s.handleCandidates)
	mux.HandleFunc("GET /media/{id}/jobs", s.handleJobs)
	mux.HandleFunc("POST /media/{id}/plans/heuristic", s.handleHeuristicPlan)
	mux.HandleFunc("POST /media/{id}/plans/story", s.handleStoryPlan)
	mux.HandleFunc("GET /plans/{id}", s.handleGetPlan)
	mux.HandleFunc("POST /plans/{id}/render", s.handleRenderPlan)
	mux.HandleFunc("GET /renders/{id}", s.handleGetRender)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)
	return authMiddleware(s.cfg.Paths.APIToken, mux)
}

func (s *apiServer) start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleRegisterMedia(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed body")
		return
	}
	if strings.TrimSpace(req.SourceURI) == "" {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "source_uri is required")
		return
	}
	m, err := s.store.CreateMedia(r.Context(), strings.TrimSpace(req.SourceURI), req.Title, req.Description)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if _, err := s.store.CreateJob(r.Context(), m.ID, media.JobProbe, "", 1); err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, api.RegisterMediaResponse{MediaID: m.ID, Status: string(m.Status)})
}

func (s *apiServer) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMedia(w, r)
	if !ok {
		return
	}
	view := api.FromMedia(m)
	derived := &api.DerivedURIs{}
	if audio := s.blobs.AudioPath(m.ID); s.blobs.Exists(audio) {
		derived.Audio = audio
	}
	if frames := s.blobs.FramesDir(m.ID); dirExists(frames) {
		derived.Frames = frames
	}
	if derived.Audio != "" || derived.Frames != "" {
		view.Derived = derived
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.SoftDeleteMedia(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "NotFound", "no such media")
		case errors.Is(err, registry.ErrConflict):
			s.writeError(w, http.StatusConflict, "Conflict", "media already deleted")
		default:
			s.writeError(w, http.StatusInternalServerError, "", err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, api.RegisterMediaResponse{MediaID: id, Status: string(media.MediaDeleted)})
}

// handleEnrich enqueues the requested enrichment kinds, skipping any
// that already completed and reusing jobs already in flight.
func (s *apiServer) handleEnrich(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMedia(w, r)
	if !ok {
		return
	}
	var req api.EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed body")
		return
	}

	kinds := make([]media.JobKind, 0, len(req.Kinds))
	if len(req.Kinds) == 0 {
		kinds = append(kinds, media.EnrichmentKinds...)
	}
	for _, raw := range req.Kinds {
		kind, known := media.ParseJobKind(raw)
		if !known || !isEnrichmentKind(kind) {
			s.writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("unknown enrichment kind %q", raw))
			return
		}
		kinds = append(kinds, kind)
	}

	resp := api.EnrichResponse{Kinds: make([]api.EnrichedKind, 0, len(kinds))}
	for _, kind := range kinds {
		done, err := s.store.FindJob(r.Context(), m.ID, kind, media.JobCompleted)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "", err.Error())
			return
		}
		if done != nil {
			resp.Kinds = append(resp.Kinds, api.EnrichedKind{Kind: string(kind), JobID: done.ID, Skipped: true})
			continue
		}
		pending, err := s.store.FindJob(r.Context(), m.ID, kind, media.JobQueued, media.JobRunning)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "", err.Error())
			return
		}
		if pending != nil {
			resp.Kinds = append(resp.Kinds, api.EnrichedKind{Kind: string(kind), JobID: pending.ID})
			continue
		}
		job, err := s.store.CreateJob(r.Context(), m.ID, kind, "", 1)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "", err.Error())
			return
		}
		resp.Kinds = append(resp.Kinds, api.EnrichedKind{Kind: string(kind), JobID: job.ID})
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	transcript, err := s.store.GetTranscript(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "NotFound", "no transcript")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, transcript)
}

func (s *apiServer) handleScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.store.ListScenes(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if len(scenes) == 0 {
		s.writeError(w, http.StatusNotFound, "NotFound", "no scenes")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ScenesResponse{Scenes: scenes})
}

func (s *apiServer) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.store.ListClipCandidates(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if candidates == nil {
		candidates = []media.ClipCandidate{}
	}
	s.writeJSON(w, http.StatusOK, api.CandidatesResponse{Candidates: candidates})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMedia(w, r)
	if !ok {
		return
	}
	jobs, err := s.store.ListJobsByMedia(r.Context(), m.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

// handleHeuristicPlan runs the heuristic planner synchronously so the
// caller gets the plan (or the precise input error) in the response.
func (s *apiServer) handleHeuristicPlan(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMedia(w, r)
	if !ok {
		return
	}
	if s.heuristic == nil {
		s.writeError(w, http.StatusInternalServerError, "", "heuristic planner unavailable")
		return
	}
	var req api.HeuristicPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed body")
		return
	}
	input, _ := json.Marshal(planner.HeuristicRequest{
		CandidateIndex: req.CandidateIndex,
		Start:          req.Start,
		End:            req.End,
	})

	ctx := r.Context()
	job, err := s.store.CreateJob(ctx, m.ID, media.JobPlanHeuristic, string(input), 1)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if err := s.store.ClaimJob(ctx, job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if execErr := s.heuristic.Execute(ctx, job); execErr != nil {
		code := workflow.ErrorCode(execErr)
		_ = s.store.FailJob(ctx, job.ID, media.JobError{Code: code, Message: execErr.Error()})
		s.writeError(w, statusForError(execErr), code, execErr.Error())
		return
	}
	if err := s.store.CompleteJob(ctx, job.ID, job.ResultJSON, job.Usage); err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}

	var result struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.Unmarshal([]byte(job.ResultJSON), &result); err != nil || result.PlanID == "" {
		s.writeError(w, http.StatusInternalServerError, "", "planner produced no plan id")
		return
	}
	plan, err := s.store.GetPlan(ctx, result.PlanID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromPlan(plan))
}

func (s *apiServer) handleStoryPlan(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMedia(w, r)
	if !ok {
		return
	}
	var brief media.StoryBrief
	if err := json.NewDecoder(r.Body).Decode(&brief); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed body")
		return
	}
	if strings.TrimSpace(brief.StoryPrompt) == "" {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "story_prompt is required")
		return
	}
	if brief.DesiredLengthPct <= 0 || brief.DesiredLengthPct > 1 {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "desired_length_pct must be in (0, 1]")
		return
	}
	input, err := json.Marshal(brief)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	job, err := s.store.CreateJob(r.Context(), m.ID, media.JobPlanStory, string(input), 1)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.StoryPlanResponse{PlanJobID: job.ID})
}

func (s *apiServer) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.store.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "NotFound", "no such plan")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPlan(plan))
}

func (s *apiServer) handleRenderPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.store.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "NotFound", "no such plan")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	var req api.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed body")
		return
	}
	if len(req.AspectRatios) == 0 {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "aspect_ratios is required")
		return
	}
	for _, raw := range req.AspectRatios {
		if _, _, err := media.AspectRatio(strings.TrimSpace(raw)).Parse(); err != nil {
			s.writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
			return
		}
	}
	switch plan.Status {
	case media.PlanValidated, media.PlanRendering, media.PlanRendered:
	default:
		s.writeError(w, http.StatusConflict, "InvalidRequest",
			fmt.Sprintf("plan is %s, not validated", plan.Status))
		return
	}

	input, err := json.Marshal(render.ApplyInput{
		PlanID:         plan.ID,
		AspectRatios:   req.AspectRatios,
		Captions:       req.Captions,
		NormaliseAudio: req.NormaliseAudio,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	job, err := s.store.CreateJob(r.Context(), plan.MediaID, media.JobApplyPlan, string(input), 1)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RenderAccepted{RenderJobID: job.ID})
}

func (s *apiServer) handleGetRender(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRender(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "NotFound", "no such render")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRender(rec))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.workflow.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleCancelJob cancels a queued job directly or flags a running one
// for cooperative cancellation.
func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := s.store.GetJob(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "NotFound", "no such job")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if job.Status.Terminal() {
		s.writeError(w, http.StatusConflict, "Conflict", "job already terminal")
		return
	}

	if job.Status == media.JobQueued {
		err = s.store.CancelQueuedJob(ctx, job.ID)
	} else {
		err = s.store.RequestCancel(ctx, job.ID)
	}
	if err != nil && !errors.Is(err, registry.ErrConflict) {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	fresh, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.FromJob(fresh))
}

func (s *apiServer) loadMedia(w http.ResponseWriter, r *http.Request) (*media.Media, bool) {
	m, err := s.store.GetMedia(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "NotFound", "no such media")
			return nil, false
		}
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return nil, false
	}
	if m.Status == media.MediaDeleted {
		s.writeError(w, http.StatusNotFound, "NotFound", "media is deleted")
		return nil, false
	}
	return m, true
}

func isEnrichmentKind(kind media.JobKind) bool {
	for _, k := range media.EnrichmentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// statusForError maps the stage error taxonomy onto HTTP statuses for
// the synchronous endpoints.
func statusForError(err error) int {
	switch services.Classify(err) {
	case services.ClassInput:
		return http.StatusBadRequest
	case services.ClassContract:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func dirExists(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorBody{Error: message, Code: code})
}
