package patch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ponderlabs/ponder/internal/domain"
)

func detectionServer(t *testing.T, reply string, wantModel string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if wantModel != "" && req["model"] != wantModel {
			t.Errorf("detection model = %v, want %s", req["model"], wantModel)
		}
		if temp, ok := req["temperature"].(float64); !ok || temp != 0 {
			t.Errorf("temperature = %v, want 0", req["temperature"])
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": reply}}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestDetector_Detect(t *testing.T) {
	srv := detectionServer(t, `[{"patchId":"acf","topic":"real estate site"}]`, "gpt-4.1-mini")
	defer srv.Close()

	d := NewDetector(WithLogger(discard))
	got, err := d.Detect(context.Background(), "prompt", "key", srv.URL, "gpt-4.1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "acf") {
		t.Errorf("reply = %q", got)
	}
}

func TestDetector_HTTPErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDetector(WithLogger(discard))
	_, err := d.Detect(context.Background(), "prompt", "key", srv.URL, "gpt-4.1")
	if err == nil {
		t.Fatal("want error")
	}
	pe, ok := domain.AsProviderError(err)
	if !ok || pe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("err = %v", err)
	}
}

func TestEngine_ApplyInjectsMatchedPatch(t *testing.T) {
	srv := detectionServer(t, `[{"patchId":"acf","topic":"real estate site"}]`, "")
	defer srv.Close()

	patches := []Patch{
		{ID: "acf", Trigger: "WordPress custom fields", Content: "ACF guidance for {{topic}}."},
		{ID: "seo", Trigger: "search optimization", Content: "SEO guidance for {{topic}}."},
	}
	engine := NewEngine(patches, NewDetector(WithLogger(discard)), nil, discard)

	got := engine.Apply(context.Background(), "BASE", "help me model a real estate site in WordPress",
		Credentials{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4.1"})

	if !strings.HasPrefix(got, "BASE") {
		t.Errorf("base prompt not preserved: %q", got)
	}
	if !strings.Contains(got, "ACF guidance for real estate site.") {
		t.Errorf("acf patch not injected: %q", got)
	}
	if strings.Contains(got, "SEO guidance") {
		t.Errorf("seo patch wrongly injected: %q", got)
	}
}

func TestEngine_ApplyDegradesOnDetectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	patches := []Patch{{ID: "acf", Trigger: "x", Content: "y"}}
	engine := NewEngine(patches, NewDetector(WithLogger(discard)), nil, discard)

	got := engine.Apply(context.Background(), "BASE", "message",
		Credentials{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4.1"})
	if got != "BASE" {
		t.Errorf("failed detection must return base prompt, got %q", got)
	}
}

func TestEngine_ApplySkipsWithoutPatchesOrMessage(t *testing.T) {
	engine := NewEngine(nil, NewDetector(WithLogger(discard)), nil, discard)
	if got := engine.Apply(context.Background(), "BASE", "msg", Credentials{}); got != "BASE" {
		t.Errorf("got %q", got)
	}

	srvHit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srvHit = true
		fmt.Fprint(w, "{}")
	}))
	defer srv.Close()

	engine = NewEngine([]Patch{{ID: "a", Trigger: "t", Content: "c"}}, NewDetector(WithLogger(discard)), nil, discard)
	if got := engine.Apply(context.Background(), "BASE", "", Credentials{BaseURL: srv.URL}); got != "BASE" {
		t.Errorf("got %q", got)
	}
	if srvHit {
		t.Error("empty user message must not trigger a detection call")
	}
}
