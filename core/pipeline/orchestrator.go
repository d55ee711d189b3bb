// Package pipeline drives one job from the uploaded video to a narrated output.
//
// Stages run in a fixed order. Audio extraction and video cleaning are fatal;
// every provider-backed stage degrades to a deterministic substitute, and the
// combine stage walks a ladder of progressively simpler outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"video-narrator/core/models"
	"video-narrator/core/spec"
	"video-narrator/core/transcoder"
	"video-narrator/providers/analysis"
	"video-narrator/storage"

	"go.uber.org/zap"
)

// Stage names used in logs and metrics.
const (
	StageExtract    = "extract_audio"
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze_features"
	StageScript     = "generate_script"
	StageClean      = "clean_video"
	StageNarrate    = "narrate"
	StageCombine    = "combine"
	StagePublish    = "publish"
)

// Combine rungs.
const (
	RungMuxCopy     = "mux_copy"
	RungMuxReencode = "mux_reencode"
	RungCopy        = "copy"
	RungSegments    = "segments"
)

// StatusWriter is the registry operation the pipeline reports through.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, message string, artifacts ...models.Artifact) error
}

// Analyzer is the content analysis provider.
type Analyzer interface {
	Configured() bool
	Transcribe(ctx context.Context, audioPath string) (string, error)
	AnalyzeFeatures(ctx context.Context, appName, description, transcript string) (models.FeatureList, error)
	GenerateScript(ctx context.Context, req analysis.ScriptRequest) (models.Script, error)
}

// Narrator synthesizes narration audio. An empty path means none is available.
type Narrator interface {
	Synthesize(ctx context.Context, script models.Script, jobID string) (string, error)
}

// Publisher copies the finished video to durable storage.
type Publisher interface {
	Publish(ctx context.Context, localPath, jobID string) ([]models.Artifact, error)
}

// Observer receives stage timings and fallback decisions.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, failed bool)
	ObserveFallback(stage, fallback string)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, bool) {}
func (nopObserver) ObserveFallback(string, string)           {}

// Options select the optional behaviors of the pipeline.
type Options struct {
	// ProviderScripts asks the analysis provider for the script before falling
	// back to the local generator.
	ProviderScripts  bool
	ScriptRetries    int
	ScriptRetryDelay time.Duration
	// AssembleSegments skips the narration ladder and always builds
	// intro + captioned main + outro.
	AssembleSegments bool
	// TrimToScript cuts the main clip to the script's time window before
	// captioning. Off, the whole cleaned video is used.
	TrimToScript bool
}

// Deps are the collaborators of an Orchestrator. Publisher and Observer are optional.
type Deps struct {
	Registry  StatusWriter
	Media     *transcoder.Transcoder
	Analyzer  Analyzer
	Narrator  Narrator
	Publisher Publisher
	Workspace *storage.Workspace
	Templates *spec.Catalog
	Observer  Observer
}

// Orchestrator runs the stage sequence for one job at a time per call.
type Orchestrator struct {
	Deps
	opts   Options
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Templates == nil {
		deps.Templates = spec.DefaultCatalog()
	}
	if opts.ScriptRetries < 1 {
		opts.ScriptRetries = 1
	}
	return &Orchestrator{
		Deps:   deps,
		opts:   opts,
		logger: logger.With(zap.String("component", "pipeline")),
		sleep:  sleepContext,
	}
}

// stageError is a fatal stage failure with its user-facing message.
type stageError struct {
	stage   string
	message string
	err     error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Run drives job to completed or failed. The returned error is the fatal
// stage error, already recorded on the job.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) error {
	log := o.logger.With(zap.String("job_id", job.ID))
	files := o.Workspace.Track(job.ID)
	started := time.Now()

	output, rung, err := o.produce(ctx, job, files, log)
	if err != nil {
		files.Cleanup()
		msg := err.Error()
		var se *stageError
		if errors.As(err, &se) {
			msg = se.message
		}
		log.Error("job failed", zap.Error(err))
		if uerr := o.Registry.UpdateStatus(ctx, job.ID, models.JobStatusFailed, msg); uerr != nil {
			log.Error("record failure", zap.Error(uerr))
		}
		return err
	}

	artifacts := []models.Artifact{{Type: models.ArtifactTypeOutput, URI: output}}
	if o.Publisher != nil {
		artifacts = o.publish(ctx, job, output, files, log)
	} else {
		files.Cleanup(output)
	}

	final := "Video ready for preview!"
	if rung == RungSegments {
		final = "Video processing complete!"
	}
	if err := o.Registry.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, final, artifacts...); err != nil {
		log.Error("record completion", zap.Error(err))
		return err
	}
	log.Info("job completed",
		zap.String("output", output),
		zap.String("combine", rung),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// produce runs every stage up to and including combine and returns the
// output file with the combine rung that produced it.
func (o *Orchestrator) produce(ctx context.Context, job *models.Job, files *storage.StageFiles, log *zap.Logger) (string, string, error) {
	if err := o.Registry.UpdateStatus(ctx, job.ID, models.JobStatusProcessing, "Processing video..."); err != nil {
		return "", "", err
	}

	audio, err := timed(o, StageExtract, func() (string, error) {
		return o.Media.ExtractAudio(ctx, job.SourcePath, files.Add(o.Workspace.TempPath(job.ID, "audio.wav")), transcoder.DefaultAudioOptions)
	})
	if err != nil {
		return "", "", &stageError{stage: StageExtract, message: "Audio extraction failed: " + err.Error(), err: err}
	}

	transcript, _ := timed(o, StageTranscribe, func() (string, error) {
		return o.transcribe(ctx, audio, log), nil
	})
	files.Release(audio)

	features, _ := timed(o, StageAnalyze, func() (models.FeatureList, error) {
		return o.analyze(ctx, job, transcript, log), nil
	})
	log.Debug("features identified", zap.Int("count", len(features.Features)))

	script, _ := timed(o, StageScript, func() (models.Script, error) {
		return o.script(ctx, job, transcript, log), nil
	})

	clean, err := timed(o, StageClean, func() (string, error) {
		return o.Media.CleanVideo(ctx, job.SourcePath, files.Add(o.Workspace.TempPath(job.ID, "clean.mp4")))
	})
	if err != nil {
		return "", "", &stageError{stage: StageClean, message: "Video cleaning failed: " + err.Error(), err: err}
	}

	if err := o.Registry.UpdateStatus(ctx, job.ID, models.JobStatusGenerating, "Generating AI narration..."); err != nil {
		return "", "", err
	}
	narration, _ := timed(o, StageNarrate, func() (string, error) {
		return o.narrate(ctx, job, script, log), nil
	})
	files.Add(narration)

	if err := o.Registry.UpdateStatus(ctx, job.ID, models.JobStatusMuxing, "Combining narration with video..."); err != nil {
		return "", "", err
	}
	var rung string
	output, err := timed(o, StageCombine, func() (string, error) {
		var out string
		var cerr error
		out, rung, cerr = o.combine(ctx, job, clean, narration, script, files, log)
		return out, cerr
	})
	if err != nil {
		return "", "", &stageError{stage: StageCombine, message: "Video assembly failed: " + err.Error(), err: err}
	}
	return output, rung, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, audio string, log *zap.Logger) string {
	if !o.Analyzer.Configured() {
		o.Observer.ObserveFallback(StageTranscribe, "placeholder")
		return analysis.PlaceholderTranscript
	}
	text, err := o.Analyzer.Transcribe(ctx, audio)
	if err != nil || text == "" {
		log.Warn("transcription unavailable, using placeholder", zap.Error(err))
		o.Observer.ObserveFallback(StageTranscribe, "placeholder")
		return analysis.PlaceholderTranscript
	}
	return text
}

func (o *Orchestrator) analyze(ctx context.Context, job *models.Job, transcript string, log *zap.Logger) models.FeatureList {
	if o.Analyzer.Configured() {
		features, err := o.Analyzer.AnalyzeFeatures(ctx, job.AppName, job.Description, transcript)
		if err == nil && len(features.Features) > 0 {
			return features
		}
		log.Warn("feature analysis unavailable, using fallback", zap.Error(err))
	}
	o.Observer.ObserveFallback(StageAnalyze, "fallback")
	return analysis.FallbackFeatures(job.AppName)
}

// script prefers the local generator. With provider scripts enabled it retries
// the provider with linear backoff and stops early on quota errors.
func (o *Orchestrator) script(ctx context.Context, job *models.Job, transcript string, log *zap.Logger) models.Script {
	local := analysis.FallbackScript(job.AppName, job.Description, job.Template)
	if !o.opts.ProviderScripts || !o.Analyzer.Configured() {
		return local
	}

	req := analysis.ScriptRequest{
		AppName:     job.AppName,
		Description: job.Description,
		Transcript:  transcript,
		Template:    job.Template,
	}
	for attempt := 1; attempt <= o.opts.ScriptRetries; attempt++ {
		script, err := o.Analyzer.GenerateScript(ctx, req)
		if err == nil {
			return script
		}
		log.Warn("script generation failed", zap.Int("attempt", attempt), zap.Error(err))
		if analysis.IsQuotaError(err) {
			log.Warn("provider quota exhausted, skipping retries")
			break
		}
		if attempt < o.opts.ScriptRetries {
			if err := o.sleep(ctx, o.opts.ScriptRetryDelay*time.Duration(attempt)); err != nil {
				break
			}
		}
	}
	o.Observer.ObserveFallback(StageScript, "local")
	return local
}

func (o *Orchestrator) narrate(ctx context.Context, job *models.Job, script models.Script, log *zap.Logger) string {
	path, err := o.Narrator.Synthesize(ctx, script, job.ID)
	if err != nil {
		log.Error("narration misconfigured", zap.Error(err))
		path = ""
	}
	if path == "" {
		o.Observer.ObserveFallback(StageNarrate, "none")
	}
	return path
}

// combine walks the narration ladder and falls through to segment assembly
// when every rung fails or segment assembly is configured.
func (o *Orchestrator) combine(ctx context.Context, job *models.Job, clean, narration string, script models.Script, files *storage.StageFiles, log *zap.Logger) (string, string, error) {
	if !o.opts.AssembleSegments {
		out, rung, err := FirstSuccess(ctx, log, o.narrationLadder(job, clean, narration, files))
		if err == nil {
			if rung != RungMuxCopy {
				o.Observer.ObserveFallback(StageCombine, rung)
			}
			return out, rung, nil
		}
		log.Warn("narration ladder exhausted, assembling segments", zap.Error(err))
		o.Observer.ObserveFallback(StageCombine, RungSegments)
	}
	out, err := o.assemble(ctx, job, clean, script, files, log)
	if err != nil {
		return "", "", err
	}
	return out, RungSegments, nil
}

func (o *Orchestrator) narrationLadder(job *models.Job, clean, narration string, files *storage.StageFiles) []Attempt {
	var attempts []Attempt
	if narration != "" {
		muxed := files.Add(o.Workspace.OutputPath(job.ID, "_with_narration.mp4"))
		attempts = append(attempts,
			Attempt{Name: RungMuxCopy, Run: func(ctx context.Context) (string, error) {
				return o.Media.Mux(ctx, clean, narration, muxed, transcoder.MuxProfileCopy)
			}},
			Attempt{Name: RungMuxReencode, Run: func(ctx context.Context) (string, error) {
				return o.Media.Mux(ctx, clean, narration, muxed, transcoder.MuxProfileReencode)
			}},
		)
	}
	fallback := files.Add(o.Workspace.OutputPath(job.ID, "_fallback.mp4"))
	attempts = append(attempts, Attempt{Name: RungCopy, Run: func(context.Context) (string, error) {
		return o.Media.CopyFile(clean, fallback)
	}})
	return attempts
}

// assemble builds intro + captioned main + outro with two pairwise concatenations.
func (o *Orchestrator) assemble(ctx context.Context, job *models.Job, clean string, script models.Script, files *storage.StageFiles, log *zap.Logger) (string, error) {
	tpl := o.Templates.Lookup(job.Template)

	intro, err := o.Media.PlaceholderClip(ctx, files.Add(o.Workspace.TempPath(job.ID, "intro.mp4")), transcoder.ClipOptions{
		Duration: tpl.ClipDuration,
		Color:    tpl.Color,
		Text:     tpl.Intro(job.AppName),
		Frame:    transcoder.DefaultFrame,
	})
	if err != nil {
		return "", fmt.Errorf("intro clip: %w", err)
	}
	outro, err := o.Media.PlaceholderClip(ctx, files.Add(o.Workspace.TempPath(job.ID, "outro.mp4")), transcoder.ClipOptions{
		Duration: tpl.ClipDuration,
		Color:    tpl.Color,
		Text:     tpl.Outro(job.AppName),
		Frame:    transcoder.DefaultFrame,
	})
	if err != nil {
		return "", fmt.Errorf("outro clip: %w", err)
	}

	main := clean
	if o.opts.TrimToScript {
		main = o.trim(ctx, job, clean, script, files, log)
	}
	captioned := o.caption(ctx, job, main, script, tpl, files, log)

	head, err := o.Media.Concat(ctx, intro, captioned, files.Add(o.Workspace.TempPath(job.ID, "intro_main.mp4")), transcoder.DefaultFrame)
	if err != nil {
		return "", fmt.Errorf("concat intro: %w", err)
	}
	final, err := o.Media.Concat(ctx, head, outro, files.Add(o.Workspace.OutputPath(job.ID, "_final.mp4")), transcoder.DefaultFrame)
	if err != nil {
		return "", fmt.Errorf("concat outro: %w", err)
	}
	if _, err := o.Media.GenerateFormats(ctx, final); err != nil {
		log.Warn("alternate formats failed", zap.Error(err))
	}
	return final, nil
}

// trim cuts the main clip to the script's time window. Best effort.
func (o *Orchestrator) trim(ctx context.Context, job *models.Job, clean string, script models.Script, files *storage.StageFiles, log *zap.Logger) string {
	start, end, err := script.Window()
	if err != nil || end <= start {
		return clean
	}
	out, err := o.Media.Segment(ctx, clean, files.Add(o.Workspace.TempPath(job.ID, "main.mp4")),
		models.FormatTimestamp(start), models.FormatTimestamp(end))
	if err != nil {
		log.Warn("trim to script window failed, using full clip", zap.Error(err))
		return clean
	}
	return out
}

// caption burns subtitles, falls back to a static overlay of the first
// caption, and finally to the input unchanged.
func (o *Orchestrator) caption(ctx context.Context, job *models.Job, input string, script models.Script, tpl spec.Template, files *storage.StageFiles, log *zap.Logger) string {
	if len(script.Segments) == 0 {
		return input
	}

	srt := files.Add(o.Workspace.TempPath(job.ID, "captions.srt"))
	if err := os.WriteFile(srt, []byte(script.SRT()), 0o644); err != nil {
		log.Warn("write captions", zap.Error(err))
	} else {
		out, err := o.Media.BurnSubtitles(ctx, input, srt, files.Add(o.Workspace.TempPath(job.ID, "captioned.mp4")), tpl.CaptionStyle)
		if err == nil {
			return out
		}
		log.Warn("subtitle burn-in failed, trying text overlay", zap.Error(err))
	}
	o.Observer.ObserveFallback("caption", "drawtext")

	out, err := o.Media.DrawText(ctx, input, files.Add(o.Workspace.TempPath(job.ID, "captioned_text.mp4")),
		script.Segments[0].Caption, transcoder.DefaultTextOverlay)
	if err == nil {
		return out
	}
	log.Warn("text overlay failed, leaving clip uncaptioned", zap.Error(err))
	o.Observer.ObserveFallback("caption", "none")
	return input
}

// publish uploads output and removes local copies on success. Upload failure
// keeps the local output as the job's artifact.
func (o *Orchestrator) publish(ctx context.Context, job *models.Job, output string, files *storage.StageFiles, log *zap.Logger) []models.Artifact {
	local := []models.Artifact{{Type: models.ArtifactTypeOutput, URI: output}}
	if err := o.Registry.UpdateStatus(ctx, job.ID, models.JobStatusUploading, "Uploading video...", local...); err != nil {
		log.Warn("record upload start", zap.Error(err))
	}

	started := time.Now()
	remote, err := o.Publisher.Publish(ctx, output, job.ID)
	o.Observer.ObserveStage(StagePublish, time.Since(started), err != nil)
	if err != nil {
		log.Error("upload failed, keeping local output", zap.Error(err))
		o.Observer.ObserveFallback(StagePublish, "local")
		files.Cleanup(output)
		return local
	}

	files.Cleanup()
	o.Workspace.Remove(job.SourcePath)
	return remote
}

func timed[T any](o *Orchestrator, stage string, fn func() (T, error)) (T, error) {
	started := time.Now()
	v, err := fn()
	o.Observer.ObserveStage(stage, time.Since(started), err != nil)
	return v, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
