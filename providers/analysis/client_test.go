package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func geminiReply(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-test"})
}

func TestAnalyzeFeaturesParsesFencedJSON(t *testing.T) {
	var gotPath, gotKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_, _ = io.WriteString(w, geminiReply("```json\n{\"features\":[{\"name\":\"Boards\",\"startTime\":\"00:00:01,000\",\"endTime\":\"00:00:04,000\",\"description\":\"kanban\"}]}\n```"))
	})

	list, err := client.AnalyzeFeatures(context.Background(), "Acme", "task manager", "hello")
	if err != nil {
		t.Fatalf("AnalyzeFeatures() error = %v", err)
	}
	if gotPath != "/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if len(list.Features) != 1 || list.Features[0].Name != "Boards" {
		t.Fatalf("features = %+v", list.Features)
	}
}

func TestGenerateScriptRejectsOverlappingSegments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, geminiReply(`Here you go: {"segments":[
			{"startTime":"00:00:00,000","endTime":"00:00:06,000","caption":"a"},
			{"startTime":"00:00:05,000","endTime":"00:00:10,000","caption":"b"}]}`))
	})
	if _, err := client.GenerateScript(context.Background(), ScriptRequest{AppName: "Acme"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGenerateScriptSuccess(t *testing.T) {
	var body string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = io.WriteString(w, geminiReply(`{"segments":[{"startTime":"00:00:00,000","endTime":"00:00:05,000","caption":"Meet Acme."}]}`))
	})
	script, err := client.GenerateScript(context.Background(), ScriptRequest{AppName: "Acme", Description: "task manager", Template: "tech_minimal"})
	if err != nil {
		t.Fatalf("GenerateScript() error = %v", err)
	}
	if len(script.Segments) != 1 || script.Segments[0].Caption != "Meet Acme." {
		t.Fatalf("script = %+v", script)
	}
	if !strings.Contains(body, "tech_minimal") || !strings.Contains(body, "application/json") {
		t.Fatalf("request body = %s", body)
	}
}

func TestQuotaErrorDetection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	})
	_, err := client.GenerateScript(context.Background(), ScriptRequest{AppName: "Acme"})
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests || se.Status != "RESOURCE_EXHAUSTED" {
		t.Fatalf("error = %v", err)
	}
	if !IsQuotaError(err) {
		t.Fatal("IsQuotaError() = false")
	}
	if IsQuotaError(errors.New("connection reset")) {
		t.Fatal("plain errors are not quota errors")
	}
}

func TestTranscribeSendsInlineAudio(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "job_audio.wav")
	if err := os.WriteFile(audio, []byte("RIFFdata"), 0o644); err != nil {
		t.Fatal(err)
	}
	var req generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = io.WriteString(w, geminiReply("  welcome to acme  "))
	})
	text, err := client.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "welcome to acme" {
		t.Fatalf("text = %q", text)
	}
	parts := req.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MimeType != "audio/wav" {
		t.Fatalf("parts = %+v", parts)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient(Config{})
	if client.Configured() {
		t.Fatal("Configured() = true without key")
	}
	if _, err := client.AnalyzeFeatures(context.Background(), "a", "b", "c"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	for _, in := range []string{`{"a":1}`, "```json\n{\"a\":1}\n```", `Sure! {"a":1} hope it helps`} {
		v.A = 0
		if err := DecodeJSON(in, &v); err != nil || v.A != 1 {
			t.Fatalf("DecodeJSON(%q) = %v, a=%d", in, err, v.A)
		}
	}
	if err := DecodeJSON("no json here", &v); err == nil {
		t.Fatal("expected error")
	}
}

func TestFallbackScriptIsPure(t *testing.T) {
	a := FallbackScript("Acme", "Task Manager", "tech_minimal")
	b := FallbackScript("Acme", "Task Manager", "tech_minimal")
	if !reflect.DeepEqual(a, b) {
		t.Fatal("fallback script differs between calls")
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatal("fallback script is not byte-identical")
	}
	if len(a.Segments) != 6 {
		t.Fatalf("segments = %d, want 6", len(a.Segments))
	}
	if a.Segments[0].Caption != "Discover the power of Acme." {
		t.Fatalf("hook = %q", a.Segments[0].Caption)
	}
	if a.Segments[1].Caption != "Revolutionize your task manager workflow." {
		t.Fatalf("value = %q", a.Segments[1].Caption)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("fallback script invalid: %v", err)
	}
}

func TestFallbackFeatures(t *testing.T) {
	list := FallbackFeatures("Acme")
	if len(list.Features) != 3 || list.Features[2].Name != "Acme Core Features" {
		t.Fatalf("features = %+v", list.Features)
	}
}
