package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"storycut/internal/blob"
	"storycut/internal/config"
	"storycut/internal/logging"
	"storycut/internal/media"
	"storycut/internal/services"
	"storycut/internal/stage"
	"storycut/internal/testsupport"
)

type fakeHandler struct {
	kind     media.JobKind
	requires []media.JobKind
	prepare  func(*media.Job) error
	execute  func(*media.Job) error
	executed int
}

func (f *fakeHandler) Kind() media.JobKind { return f.kind }

func (f *fakeHandler) Prepare(_ context.Context, job *media.Job) error {
	if f.prepare != nil {
		return f.prepare(job)
	}
	return nil
}

func (f *fakeHandler) Execute(_ context.Context, job *media.Job) error {
	f.executed++
	if f.execute != nil {
		return f.execute(job)
	}
	return nil
}

func (f *fakeHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(f.kind))
}

func (f *fakeHandler) Requires() []media.JobKind { return f.requires }

func newManager(t *testing.T, opts ...testsupport.ConfigOption) (*Manager, *testsupport.Env) {
	t.Helper()
	opts = append([]testsupport.ConfigOption{func(c *config.Config) {
		c.Workflow.MaxAttemptsDefault = 3
		c.Workflow.RetryBackoffBaseSeconds = 1
		c.Workflow.RetryJitterSeconds = 0
	}}, opts...)
	env := testsupport.NewEnv(t, opts...)
	blobs := blob.New(env.Config.Paths.BlobRoot)
	return NewManager(env.Config, env.Store, blobs, logging.NewNop()), env
}

func TestProcessJobCompletesAndStoresResult(t *testing.T) {
	m, env := newManager(t)
	handler := &fakeHandler{kind: media.JobProbe, execute: func(job *media.Job) error {
		job.ResultJSON = `{"ok":true}`
		return nil
	}}
	m.Register(handler)

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobProbe, "")

	m.processJob(context.Background(), m.logger, job)

	got, err := env.Store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ResultJSON != `{"ok":true}` {
		t.Fatalf("result = %q", got.ResultJSON)
	}
	if handler.executed != 1 {
		t.Fatalf("executed = %d", handler.executed)
	}
}

func TestProcessJobShortCircuitsAlreadyDone(t *testing.T) {
	m, env := newManager(t)
	handler := &fakeHandler{kind: media.JobProbe, prepare: func(*media.Job) error {
		return stage.ErrAlreadyDone
	}}
	m.Register(handler)

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobProbe, "")
	m.processJob(context.Background(), m.logger, job)

	got, err := env.Store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if handler.executed != 0 {
		t.Fatal("execute ran despite ErrAlreadyDone")
	}
}

func TestProcessJobDefersOnUnmetPrecondition(t *testing.T) {
	m, env := newManager(t)
	handler := &fakeHandler{
		kind:     media.JobTranscribe,
		requires: []media.JobKind{media.JobProbe},
	}
	m.Register(handler)
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobTranscribe, "")
	m.processJob(ctx, m.logger, job)

	got, err := env.Store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobQueued {
		t.Fatalf("status = %s, want still queued", got.Status)
	}
	if got.NotBefore == nil || !got.NotBefore.After(time.Now().UTC()) {
		t.Fatalf("not_before = %v, want deferred into the future", got.NotBefore)
	}
	if handler.executed != 0 {
		t.Fatal("execute ran with unmet precondition")
	}

	// Complete the producer; the job becomes runnable.
	probe := testsupport.QueueJob(t, env.Store, src.ID, media.JobProbe, "")
	if err := env.Store.ClaimJob(ctx, probe.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.CompleteJob(ctx, probe.ID, "", nil); err != nil {
		t.Fatal(err)
	}
	m.processJob(ctx, m.logger, job)
	got, err = env.Store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobCompleted {
		t.Fatalf("status after producer completed = %s", got.Status)
	}
}

func TestProcessJobRetriesTransientFailure(t *testing.T) {
	m, env := newManager(t)
	handler := &fakeHandler{kind: media.JobProbe, execute: func(*media.Job) error {
		return services.Wrap(services.ErrTransient, "probe", "run", "tool flaked", nil)
	}}
	m.Register(handler)
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobProbe, "")
	m.processJob(ctx, m.logger, job)

	got, err := env.Store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Error == nil || got.Error.Code != "TransientFailure" {
		t.Fatalf("error = %+v", got.Error)
	}

	successor, err := env.Store.FindJob(ctx, src.ID, media.JobProbe, media.JobQueued)
	if err != nil {
		t.Fatal(err)
	}
	if successor == nil {
		t.Fatal("no retry scheduled")
	}
	if successor.Attempt != 2 {
		t.Fatalf("successor attempt = %d", successor.Attempt)
	}
	if successor.NotBefore == nil {
		t.Fatal("retry has no backoff delay")
	}
}

func TestProcessJobDoesNotRetryInputErrors(t *testing.T) {
	m, env := newManager(t)
	handler := &fakeHandler{kind: media.JobPlanStory, execute: func(*media.Job) error {
		return services.Wrap(services.ErrInput, "story-plan", "brief", "InvalidRequest: EmptySource", nil)
	}}
	m.Register(handler)
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobPlanStory, "")
	m.processJob(ctx, m.logger, job)

	got, err := env.Store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Error == nil || got.Error.Code != "InvalidRequest" {
		t.Fatalf("error = %+v", got.Error)
	}
	successor, err := env.Store.FindJob(ctx, src.ID, media.JobPlanStory, media.JobQueued)
	if err != nil {
		t.Fatal(err)
	}
	if successor != nil {
		t.Fatalf("input error was retried: %+v", successor)
	}
}

func TestProcessJobStopsAtAttemptBudget(t *testing.T) {
	m, env := newManager(t, func(c *config.Config) {
		c.Workflow.MaxAttemptsDefault = 2
	})
	handler := &fakeHandler{kind: media.JobProbe, execute: func(*media.Job) error {
		return services.Wrap(services.ErrTransient, "probe", "run", "still flaking", nil)
	}}
	m.Register(handler)
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	last, err := env.Store.CreateJob(ctx, src.ID, media.JobProbe, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	m.processJob(ctx, m.logger, last)

	successor, err := env.Store.FindJob(ctx, src.ID, media.JobProbe, media.JobQueued)
	if err != nil {
		t.Fatal(err)
	}
	if successor != nil {
		t.Fatalf("attempt budget exceeded: %+v", successor)
	}
}

func TestProcessJobPersistsCancellation(t *testing.T) {
	m, env := newManager(t)
	handler := &fakeHandler{kind: media.JobApplyPlan, execute: func(*media.Job) error {
		return stage.ErrCancelled
	}}
	m.Register(handler)
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobApplyPlan, "")
	m.processJob(ctx, m.logger, job)

	got, err := env.Store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobCancelled {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestStoryPlanAttemptBudgetIsSeparate(t *testing.T) {
	m, _ := newManager(t, func(c *config.Config) {
		c.Workflow.MaxAttemptsDefault = 3
		c.Workflow.MaxAttemptsPlanStory = 2
	})
	if got := m.maxAttempts(media.JobPlanStory); got != 2 {
		t.Fatalf("plan_story budget = %d", got)
	}
	if got := m.maxAttempts(media.JobProbe); got != 3 {
		t.Fatalf("default budget = %d", got)
	}
}

func TestRetryDelayGrowsExponentially(t *testing.T) {
	m, _ := newManager(t, func(c *config.Config) {
		c.Workflow.RetryBackoffBaseSeconds = 2
		c.Workflow.RetryJitterSeconds = 0
	})
	if got := m.retryDelay(1); got != 2*time.Second {
		t.Fatalf("delay(1) = %v", got)
	}
	if got := m.retryDelay(3); got != 8*time.Second {
		t.Fatalf("delay(3) = %v", got)
	}
}

func TestErrorCodeExtraction(t *testing.T) {
	err := services.Wrap(services.ErrContract, "story-plan", "validate", "InvalidPlan: UnrenderablePlan: no keep segments", nil)
	if got := ErrorCode(err); got != "InvalidPlan" {
		t.Fatalf("code = %q", got)
	}
	plain := services.Wrap(services.ErrTransient, "probe", "run", "tool flaked", nil)
	if got := ErrorCode(plain); got != "TransientFailure" {
		t.Fatalf("fallback code = %q", got)
	}
}

func TestReclaimOnceFailsStaleAndEnqueuesSuccessor(t *testing.T) {
	m, env := newManager(t)
	m.heartbeat.timeout = time.Millisecond
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobTranscribe, "")
	if err := env.Store.ClaimJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	m.reclaimOnce(ctx)

	got, err := env.Store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.JobFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Error == nil || got.Error.Code != "WorkerLost" {
		t.Fatalf("error = %+v", got.Error)
	}
	successor, err := env.Store.FindJob(ctx, src.ID, media.JobTranscribe, media.JobQueued)
	if err != nil {
		t.Fatal(err)
	}
	if successor == nil || successor.Attempt != 2 {
		t.Fatalf("successor = %+v", successor)
	}
}

func TestManagerStartDrainsQueue(t *testing.T) {
	m, env := newManager(t, func(c *config.Config) {
		c.Workflow.WorkerPoolSize = 2
	})
	handler := &fakeHandler{kind: media.JobProbe}
	m.Register(handler)
	ctx := context.Background()

	src := testsupport.NewMedia(t, env.Store, "/src/talk.mp4")
	job := testsupport.QueueJob(t, env.Store, src.ID, media.JobProbe, "")

	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := env.Store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == media.JobCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestHealthAggregatesStages(t *testing.T) {
	m, _ := newManager(t)
	m.Register(
		&fakeHandler{kind: media.JobProbe},
		&fakeHandler{kind: media.JobTranscribe},
	)
	status, err := m.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(status.Stages) != 2 {
		t.Fatalf("stages = %+v", status.Stages)
	}
	if !status.Healthy() {
		t.Fatal("all-ready stages should report healthy")
	}
	if strings.Compare(status.Stages[0].Name, status.Stages[1].Name) > 0 {
		t.Fatal("stages not sorted")
	}
}
