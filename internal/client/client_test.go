package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storycut/internal/api"
	"storycut/internal/config"
)

func TestBaseURLFromBind(t *testing.T) {
	cases := map[string]string{
		"":               "http://127.0.0.1:7130",
		"0.0.0.0:7130":   "http://127.0.0.1:7130",
		":7130":          "http://127.0.0.1:7130",
		"127.0.0.1:9000": "http://127.0.0.1:9000",
		"media.lan:7130": "http://media.lan:7130",
	}
	for bind, want := range cases {
		if got := baseURLFromBind(bind); got != want {
			t.Errorf("baseURLFromBind(%q) = %q, want %q", bind, got, want)
		}
	}
}

func TestClientSendsBearerTokenAndDecodesErrors(t *testing.T) {
	var seenAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/media/ok":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(api.MediaView{MediaID: "ok", Status: "ready"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorBody{Error: "no such media", Code: "NotFound"})
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.APIToken = "sesame"
	c := New(&cfg, WithBaseURL(srv.URL))

	view, err := c.GetMedia(context.Background(), "ok")
	if err != nil {
		t.Fatalf("GetMedia: %v", err)
	}
	if view.MediaID != "ok" || seenAuth != "Bearer sesame" {
		t.Fatalf("view %+v auth %q", view, seenAuth)
	}

	_, err = c.GetMedia(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != "NotFound" {
		t.Fatalf("unexpected error detail: %v", err)
	}
}
