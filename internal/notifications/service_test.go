package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storycut/internal/config"
	"storycut/internal/media"
	"storycut/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPlanReady(context.Background(), "plan-1", 30); err != nil {
		t.Fatalf("noop notifier should return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsHeaders(t *testing.T) {
	var gotTitle, gotTags, gotPriority, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notify.NtfyURL = srv.URL
	cfg.Notify.NtfyTopic = "cuts"
	svc := notifications.NewService(&cfg)

	err := svc.NotifyRenderCompleted(context.Background(), "plan-1", "9:16", "/blobs/renders/plan-1/9x16.mp4")
	if err != nil {
		t.Fatalf("NotifyRenderCompleted: %v", err)
	}
	if gotTitle != "Storycut - Render Complete" {
		t.Errorf("title = %q", gotTitle)
	}
	if gotTags != "storycut,render,completed" || gotPriority != "high" {
		t.Errorf("tags %q priority %q", gotTags, gotPriority)
	}
	if !strings.Contains(gotBody, "9:16") || !strings.Contains(gotBody, "9x16.mp4") {
		t.Errorf("body = %q", gotBody)
	}

	if err := svc.NotifyJobFailed(context.Background(), media.JobApplyPlan,
		media.JobError{Code: "EncodeError", Message: "ffmpeg exited 1"}); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if gotTitle != "Storycut - Job Failed" || !strings.Contains(gotBody, "EncodeError") {
		t.Errorf("title %q body %q", gotTitle, gotBody)
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notify.NtfyURL = srv.URL
	cfg.Notify.NtfyTopic = "cuts"
	svc := notifications.NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
