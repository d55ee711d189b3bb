package narration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"video-narrator/core/models"
)

var testScript = models.Script{Segments: []models.Segment{
	{StartTime: "00:00:00,000", EndTime: "00:00:05,000", Caption: "Discover the power of Acme."},
	{StartTime: "00:00:05,000", EndTime: "00:00:10,000", Caption: "  Ready   to start? "},
	{StartTime: "00:00:10,000", EndTime: "00:00:15,000", Caption: "Go"},
}}

func TestNarrationText(t *testing.T) {
	got := NarrationText(testScript)
	want := "Discover the power of Acme. Ready to start? Go"
	if got != want {
		t.Fatalf("NarrationText() = %q, want %q", got, want)
	}
	if NarrationText(models.Script{}) != GenericNarration {
		t.Fatal("empty script should use the generic narration")
	}
}

func TestSynthesizeWritesAudio(t *testing.T) {
	var got synthesisRequest
	var headers http.Header
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, OutputDir: dir}, nil)
	audio, err := client.Synthesize(context.Background(), testScript, "job-1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if audio != filepath.Join(dir, "job-1_narration.mp3") {
		t.Fatalf("audio path = %q", audio)
	}
	data, _ := os.ReadFile(audio)
	if string(data) != "ID3fake-mp3" {
		t.Fatalf("audio = %q", data)
	}
	if path != "/text-to-speech/"+defaultVoiceID {
		t.Fatalf("path = %q", path)
	}
	if headers.Get("xi-api-key") != "k" || headers.Get("Accept") != "audio/mpeg" {
		t.Fatalf("headers = %v", headers)
	}
	if got.ModelID != defaultModelID || got.VoiceSettings != DefaultVoiceSettings {
		t.Fatalf("request = %+v", got)
	}
}

func TestSynthesizeAbsentResults(t *testing.T) {
	for name, status := range map[string]int{
		"unauthorized": http.StatusUnauthorized,
		"rate limited": http.StatusTooManyRequests,
		"server error": http.StatusBadGateway,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, OutputDir: t.TempDir()}, nil)
			audio, err := client.Synthesize(context.Background(), testScript, "job-2")
			if err != nil || audio != "" {
				t.Fatalf("Synthesize() = %q, %v; want absent", audio, err)
			}
		})
	}
}

func TestSynthesizeWithoutKeyIsAbsent(t *testing.T) {
	client := NewClient(Config{OutputDir: t.TempDir()}, nil)
	audio, err := client.Synthesize(context.Background(), testScript, "job-3")
	if err != nil || audio != "" {
		t.Fatalf("Synthesize() = %q, %v", audio, err)
	}
}

func TestSynthesizeEmptyBodyIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	dir := t.TempDir()
	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, OutputDir: dir}, nil)
	audio, err := client.Synthesize(context.Background(), testScript, "job-5")
	if err != nil || audio != "" {
		t.Fatalf("Synthesize() = %q, %v", audio, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "job-5_narration.mp3")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("empty audio file left behind")
	}
}

func TestSynthesizeMisconfigured(t *testing.T) {
	client := NewClient(Config{APIKey: "k"}, nil)
	if _, err := client.Synthesize(context.Background(), testScript, "job-4"); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("error = %v, want ErrMisconfigured", err)
	}
}
