package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"video-narrator/core/models"
	"video-narrator/core/repository"
	"video-narrator/core/transcoder"
	"video-narrator/providers/analysis"
	"video-narrator/storage"

	"go.uber.org/zap"
)

// fakeFFmpeg writes the output argument unless fail says otherwise.
type fakeFFmpeg struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(args []string) bool
}

func (f *fakeFFmpeg) Run(_ context.Context, cmd transcoder.Command) (transcoder.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd.Args)
	f.mu.Unlock()
	if f.fail != nil && f.fail(cmd.Args) {
		return transcoder.Result{Stderr: "Conversion failed!", ExitCode: 1}, errors.New("exit status 1")
	}
	out := cmd.Args[len(cmd.Args)-1]
	if err := os.WriteFile(out, []byte("media:"+filepath.Base(out)), 0o644); err != nil {
		return transcoder.Result{ExitCode: 1}, err
	}
	return transcoder.Result{}, nil
}

func (f *fakeFFmpeg) outputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var outs []string
	for _, args := range f.calls {
		outs = append(outs, filepath.Base(args[len(args)-1]))
	}
	return outs
}

func contains(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		ok := true
		for j := range seq {
			if args[i+j] != seq[j] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

type offlineAnalyzer struct{}

func (offlineAnalyzer) Configured() bool { return false }
func (offlineAnalyzer) Transcribe(context.Context, string) (string, error) {
	return "", analysis.ErrNotConfigured
}
func (offlineAnalyzer) AnalyzeFeatures(context.Context, string, string, string) (models.FeatureList, error) {
	return models.FeatureList{}, analysis.ErrNotConfigured
}
func (offlineAnalyzer) GenerateScript(context.Context, analysis.ScriptRequest) (models.Script, error) {
	return models.Script{}, analysis.ErrNotConfigured
}

type scriptedAnalyzer struct {
	offlineAnalyzer
	errs  []error
	calls int
}

func (a *scriptedAnalyzer) Configured() bool { return true }
func (a *scriptedAnalyzer) GenerateScript(context.Context, analysis.ScriptRequest) (models.Script, error) {
	a.calls++
	if a.calls <= len(a.errs) {
		return models.Script{}, a.errs[a.calls-1]
	}
	return models.Script{Segments: []models.Segment{{StartTime: "00:00:00,000", EndTime: "00:00:04,000", Caption: "From the provider"}}}, nil
}

// fileNarrator writes a fake mp3 into dir, or reports no narration when dir is empty.
type fileNarrator struct{ dir string }

func (n fileNarrator) Synthesize(_ context.Context, _ models.Script, jobID string) (string, error) {
	if n.dir == "" {
		return "", nil
	}
	p := filepath.Join(n.dir, jobID+"_narration.mp3")
	return p, os.WriteFile(p, []byte("mp3"), 0o644)
}

type fakePublisher struct {
	err      error
	uploaded string
}

func (p *fakePublisher) Publish(_ context.Context, localPath, jobID string) ([]models.Artifact, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.uploaded = localPath
	return []models.Artifact{
		{Type: models.ArtifactTypeObject, URI: "s3://bucket/outputs/output_" + jobID + ".mp4"},
		{Type: models.ArtifactTypeStreaming, URI: "https://bucket.example/stream"},
	}, nil
}

type countingObserver struct {
	mu        sync.Mutex
	fallbacks map[string]string
	stages    map[string]int
}

func (c *countingObserver) ObserveStage(stage string, _ time.Duration, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stages == nil {
		c.stages = map[string]int{}
	}
	c.stages[stage]++
}

func (c *countingObserver) ObserveFallback(stage, fallback string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fallbacks == nil {
		c.fallbacks = map[string]string{}
	}
	c.fallbacks[stage] = fallback
}

type harness struct {
	t        *testing.T
	registry *repository.Registry
	ws       *storage.Workspace
	ffmpeg   *fakeFFmpeg
	observer *countingObserver
	deps     Deps
	opts     Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ws, err := storage.NewWorkspace(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		t:        t,
		registry: repository.NewRegistry(repository.NewMemoryStore(), nil),
		ws:       ws,
		ffmpeg:   &fakeFFmpeg{},
		observer: &countingObserver{},
	}
	h.deps = Deps{
		Registry:  h.registry,
		Analyzer:  offlineAnalyzer{},
		Narrator:  fileNarrator{dir: ws.Temp},
		Workspace: ws,
		Observer:  h.observer,
	}
	return h
}

func (h *harness) submit(appName, description, template string) *models.Job {
	h.t.Helper()
	src := h.ws.UploadPath("source.mp4")
	if err := os.WriteFile(src, []byte("upload"), 0o644); err != nil {
		h.t.Fatal(err)
	}
	job := &models.Job{
		ID:          "job-" + strings.ReplaceAll(strings.ToLower(h.t.Name()), "/", "-"),
		AppName:     appName,
		Description: description,
		Template:    template,
		SourcePath:  src,
	}
	if err := h.registry.Create(context.Background(), job); err != nil {
		h.t.Fatal(err)
	}
	return job
}

func (h *harness) run(job *models.Job) (*models.Job, error) {
	h.deps.Media = transcoder.New("ffmpeg", h.ffmpeg, nil)
	o := New(h.deps, h.opts, nil)
	o.sleep = func(context.Context, time.Duration) error { return nil }
	err := o.Run(context.Background(), job)
	return h.registry.Get(context.Background(), job.ID), err
}

func TestRunWithNarrationMuxesByStreamCopy(t *testing.T) {
	h := newHarness(t)
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Status != models.JobStatusCompleted || got.Message != "Video ready for preview!" {
		t.Fatalf("job = %+v", got)
	}
	out, ok := got.Artifact(models.ArtifactTypeOutput)
	if !ok || filepath.Base(out) != job.ID+"_with_narration.mp4" {
		t.Fatalf("output artifact = %q", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	for _, stage := range []string{"audio.wav", "clean.mp4", "narration.mp3"} {
		if _, err := os.Stat(h.ws.TempPath(job.ID, stage)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("stage file %s not cleaned up", stage)
		}
	}

	events, _ := h.registry.Events(context.Background(), job.ID, 0)
	var statuses []models.JobStatus
	for _, e := range events {
		statuses = append(statuses, e.ToStatus)
	}
	want := []models.JobStatus{
		models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusGenerating,
		models.JobStatusMuxing, models.JobStatusCompleted,
	}
	if len(statuses) != len(want) {
		t.Fatalf("transitions = %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", statuses, want)
		}
	}
}

func TestMuxFailsOnceThenReencodes(t *testing.T) {
	h := newHarness(t)
	h.ffmpeg.fail = func(args []string) bool {
		return contains(args, "-c:v", "copy")
	}
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	out, _ := got.Artifact(models.ArtifactTypeOutput)
	if filepath.Base(out) != job.ID+"_with_narration.mp4" {
		t.Fatalf("output = %q", out)
	}
	var reencoded bool
	for _, args := range h.ffmpeg.calls {
		if contains(args, "-c:v", "libx264") && strings.HasSuffix(args[len(args)-1], "_with_narration.mp4") {
			reencoded = true
		}
	}
	if !reencoded {
		t.Fatal("no re-encode mux attempt recorded")
	}
	if h.observer.fallbacks[StageCombine] != RungMuxReencode {
		t.Fatalf("fallbacks = %v", h.observer.fallbacks)
	}
}

func TestNoNarrationCopiesCleanVideo(t *testing.T) {
	h := newHarness(t)
	h.deps.Narrator = fileNarrator{}
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out, _ := got.Artifact(models.ArtifactTypeOutput)
	if got.Status != models.JobStatusCompleted || filepath.Base(out) != job.ID+"_fallback.mp4" {
		t.Fatalf("job = %+v", got)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "media:"+job.ID+"_clean.mp4" {
		t.Fatalf("fallback is not a copy of the cleaned video: %q %v", data, err)
	}
	for _, args := range h.ffmpeg.calls {
		if contains(args, "-map", "1:a:0") {
			t.Fatal("mux attempted without narration")
		}
	}
}

func TestSegmentAssembly(t *testing.T) {
	h := newHarness(t)
	h.opts.AssembleSegments = true
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out, _ := got.Artifact(models.ArtifactTypeOutput)
	if got.Status != models.JobStatusCompleted || !strings.Contains(filepath.Base(out), job.ID) {
		t.Fatalf("job = %+v", got)
	}
	if filepath.Base(out) != job.ID+"_final.mp4" || got.Message != "Video processing complete!" {
		t.Fatalf("output = %q message = %q", out, got.Message)
	}

	outs := h.ffmpeg.outputs()
	for _, want := range []string{"_intro.mp4", "_outro.mp4", "_captioned.mp4", "_intro_main.mp4", "_final.mp4"} {
		found := false
		for _, o := range outs {
			if o == job.ID+want {
				found = true
			}
		}
		if !found {
			t.Errorf("no ffmpeg call produced %s (calls: %v)", want, outs)
		}
	}
}

func TestSegmentAssemblyKeepsFullMainClip(t *testing.T) {
	h := newHarness(t)
	h.opts.AssembleSegments = true
	job := h.submit("Acme", "task manager", "tech_minimal")

	if _, err := h.run(job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	clean := h.ws.TempPath(job.ID, "clean.mp4")
	for _, args := range h.ffmpeg.calls {
		if contains(args, "-i", clean) && (contains(args, "-ss") || contains(args, "-t")) {
			t.Fatalf("clean clip was trimmed: %v", args)
		}
		if contains(args, "-i", clean) && strings.HasPrefix(argValue(args, "-vf"), "subtitles=") {
			return
		}
	}
	t.Fatalf("captions not burned onto the clean clip: %v", h.ffmpeg.outputs())
}

func TestSegmentAssemblyTrimsWhenEnabled(t *testing.T) {
	h := newHarness(t)
	h.opts.AssembleSegments = true
	h.opts.TrimToScript = true
	job := h.submit("Acme", "task manager", "tech_minimal")

	if _, err := h.run(job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	main := h.ws.TempPath(job.ID, "main.mp4")
	for _, args := range h.ffmpeg.calls {
		if args[len(args)-1] == main {
			if !contains(args, "-ss", "0.000") || !contains(args, "-t", "30.000") {
				t.Fatalf("trim args = %v", args)
			}
			return
		}
	}
	t.Fatalf("no trim call: %v", h.ffmpeg.outputs())
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestCaptionFallsBackToTextOverlay(t *testing.T) {
	h := newHarness(t)
	h.opts.AssembleSegments = true
	h.ffmpeg.fail = func(args []string) bool {
		for _, a := range args {
			if strings.HasPrefix(a, "subtitles=") {
				return true
			}
		}
		return false
	}
	job := h.submit("Acme", "task manager", "")

	got, err := h.run(job)
	if err != nil || got.Status != models.JobStatusCompleted {
		t.Fatalf("Run() = %v, job = %+v", err, got)
	}
	if h.observer.fallbacks["caption"] != "drawtext" {
		t.Fatalf("fallbacks = %v", h.observer.fallbacks)
	}
}

func TestExtractFailureFailsJob(t *testing.T) {
	h := newHarness(t)
	h.ffmpeg.fail = func(args []string) bool { return contains(args, "-vn") }
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err == nil {
		t.Fatal("expected error")
	}
	if got.Status != models.JobStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if !strings.HasPrefix(got.Message, "Audio extraction failed") {
		t.Fatalf("message = %q", got.Message)
	}
	for _, args := range h.ffmpeg.calls {
		if contains(args, "-crf", "23") {
			t.Fatal("pipeline continued after fatal stage")
		}
	}
}

func TestCleanFailureFailsJobAndRemovesStageFiles(t *testing.T) {
	h := newHarness(t)
	h.ffmpeg.fail = func(args []string) bool { return contains(args, "-movflags", "+faststart") }
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err == nil || got.Status != models.JobStatusFailed {
		t.Fatalf("Run() = %v, status = %s", err, got.Status)
	}
	entries, _ := os.ReadDir(h.ws.Temp)
	if len(entries) != 0 {
		t.Fatalf("temp not cleaned: %v", entries)
	}
}

func TestProviderScriptRetriesStopOnQuota(t *testing.T) {
	h := newHarness(t)
	a := &scriptedAnalyzer{errs: []error{
		errors.New("temporary"),
		&analysis.StatusError{StatusCode: 429, Message: "quota exceeded"},
	}}
	h.deps.Analyzer = a
	h.opts = Options{ProviderScripts: true, ScriptRetries: 5}
	job := h.submit("Acme", "task manager", "tech_minimal")

	if _, err := h.run(job); err != nil {
		t.Fatal(err)
	}
	if a.calls != 2 {
		t.Fatalf("provider called %d times, want 2", a.calls)
	}
	if h.observer.fallbacks[StageScript] != "local" {
		t.Fatalf("fallbacks = %v", h.observer.fallbacks)
	}
}

func TestProviderScriptUsedWhenAvailable(t *testing.T) {
	h := newHarness(t)
	a := &scriptedAnalyzer{errs: []error{errors.New("temporary")}}
	h.deps.Analyzer = a
	h.opts = Options{ProviderScripts: true, ScriptRetries: 2}
	job := h.submit("Acme", "task manager", "tech_minimal")

	if _, err := h.run(job); err != nil {
		t.Fatal(err)
	}
	if a.calls != 2 {
		t.Fatalf("provider called %d times", a.calls)
	}
	if _, ok := h.observer.fallbacks[StageScript]; ok {
		t.Fatal("local script used although the provider succeeded")
	}
}

func TestPublishRecordsRemoteArtifactsAndRemovesLocalFiles(t *testing.T) {
	h := newHarness(t)
	pub := &fakePublisher{}
	h.deps.Publisher = pub
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if ref, ok := got.Artifact(models.ArtifactTypeObject); !ok || !strings.HasPrefix(ref, "s3://") {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}
	if _, err := os.Stat(pub.uploaded); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("local output kept after upload")
	}
	if _, err := os.Stat(job.SourcePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("original upload kept after publish")
	}

	events, _ := h.registry.Events(context.Background(), job.ID, 0)
	if events[len(events)-2].ToStatus != models.JobStatusUploading {
		t.Fatalf("uploading not recorded: %+v", events)
	}
}

func TestPublishFailureKeepsLocalOutput(t *testing.T) {
	h := newHarness(t)
	h.deps.Publisher = &fakePublisher{err: errors.New("access denied")}
	job := h.submit("Acme", "task manager", "tech_minimal")

	got, err := h.run(job)
	if err != nil {
		t.Fatal(err)
	}
	out, _ := got.Artifact(models.ArtifactTypeOutput)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("local output removed: %v", err)
	}
}

func TestFirstSuccess(t *testing.T) {
	ok := func(out string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) { return out, nil }
	}
	bad := func(context.Context) (string, error) { return "", errors.New("nope") }

	out, name, err := FirstSuccess(context.Background(), zap.NewNop(), []Attempt{{"a", bad}, {"b", ok("b.mp4")}, {"c", ok("c.mp4")}})
	if err != nil || out != "b.mp4" || name != "b" {
		t.Fatalf("FirstSuccess = %q %q %v", out, name, err)
	}

	_, _, err = FirstSuccess(context.Background(), zap.NewNop(), []Attempt{{"a", bad}, {"b", bad}})
	if !errors.Is(err, ErrLadderExhausted) || !strings.Contains(err.Error(), "b: nope") {
		t.Fatalf("error = %v", err)
	}
}
