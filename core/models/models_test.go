package models

import (
	"strings"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "00:00:00,000", want: 0},
		{in: "00:00:05,000", want: 5 * time.Second},
		{in: "01:02:03,456", want: time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond},
		{in: "00:00:07.250", want: 7250 * time.Millisecond},
		{in: "00:00:07", want: 7 * time.Second},
		{in: "00:61:00,000", wantErr: true},
		{in: "garbage", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	d := time.Hour + 5*time.Minute + 9*time.Second + 30*time.Millisecond
	ts := FormatTimestamp(d)
	if ts != "01:05:09,030" {
		t.Fatalf("FormatTimestamp = %q", ts)
	}
	back, err := ts.Duration()
	if err != nil || back != d {
		t.Fatalf("Duration() = %v, %v", back, err)
	}
}

func TestStatusTransitions(t *testing.T) {
	if !JobStatusQueued.CanTransition(JobStatusProcessing) {
		t.Fatal("queued -> processing should be allowed")
	}
	if !JobStatusGenerating.CanTransition(JobStatusGenerating) {
		t.Fatal("repeating a status should be allowed")
	}
	if JobStatusMuxing.CanTransition(JobStatusProcessing) {
		t.Fatal("muxing -> processing is a regression")
	}
	if !JobStatusMuxing.CanTransition(JobStatusFailed) {
		t.Fatal("failed must be reachable from any non-terminal state")
	}
	if JobStatusCompleted.CanTransition(JobStatusFailed) {
		t.Fatal("completed is terminal")
	}
	if JobStatusQueued.CanTransition(JobStatusNotFound) {
		t.Fatal("not_found is never stored")
	}
}

func TestMergeArtifactsKeepsOtherTypes(t *testing.T) {
	existing := []Artifact{{Type: ArtifactTypeOutput, URI: "/out/a.mp4"}}
	merged := MergeArtifacts(existing, []Artifact{
		{Type: ArtifactTypePublic, URI: "https://cdn/a.mp4"},
		{Type: ArtifactTypeOutput, URI: "/out/b.mp4"},
	})
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	job := &Job{Artifacts: merged}
	if got, _ := job.Artifact(ArtifactTypeOutput); got != "/out/b.mp4" {
		t.Fatalf("output = %q", got)
	}
	if existing[0].URI != "/out/a.mp4" {
		t.Fatal("merge mutated its input")
	}
}

func TestScriptValidate(t *testing.T) {
	good := Script{Segments: []Segment{
		{StartTime: "00:00:00,000", EndTime: "00:00:05,000", Caption: "one"},
		{StartTime: "00:00:05,000", EndTime: "00:00:10,000", Caption: "two"},
	}}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	overlapping := Script{Segments: []Segment{
		{StartTime: "00:00:00,000", EndTime: "00:00:06,000", Caption: "one"},
		{StartTime: "00:00:05,000", EndTime: "00:00:10,000", Caption: "two"},
	}}
	if err := overlapping.Validate(); err == nil {
		t.Fatal("expected overlap error")
	}
	if err := (Script{}).Validate(); err != ErrEmptyScript {
		t.Fatalf("empty script error = %v", err)
	}
}

func TestScriptSRT(t *testing.T) {
	s := Script{Segments: []Segment{{StartTime: "00:00:00,000", EndTime: "00:00:05,000", Caption: " Hello "}}}
	got := s.SRT()
	want := "1\n00:00:00,000 --> 00:00:05,000\nHello\n\n"
	if got != want {
		t.Fatalf("SRT() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(got, "1\n") {
		t.Fatal("missing index")
	}
}
