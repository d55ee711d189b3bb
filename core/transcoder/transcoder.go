// Package transcoder wraps the ffmpeg command line as discrete media operations.
// Every operation builds a fixed argument list, creates its output directory,
// and succeeds only when the output exists and is non-empty.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"video-narrator/core/models"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ErrEmptyOutput is reported when ffmpeg exits cleanly without producing output.
var ErrEmptyOutput = errors.New("output missing or empty")

// Error is a failed transcoder operation with the raw diagnostic text attached.
type Error struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if tail := lastLines(e.Stderr, 3); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MuxProfile selects how the video track is treated when muxing narration.
type MuxProfile string

const (
	// MuxProfileCopy copies the picture stream untouched.
	MuxProfileCopy MuxProfile = "copy"
	// MuxProfileReencode re-encodes the picture with a fast, tolerant preset.
	MuxProfileReencode MuxProfile = "reencode"
)

// AudioOptions control audio extraction.
type AudioOptions struct {
	SampleRate int
	Channels   int
}

// DefaultAudioOptions is 16 kHz mono PCM, the format speech models expect.
var DefaultAudioOptions = AudioOptions{SampleRate: 16000, Channels: 1}

// Frame is the canvas every assembled clip is normalized to.
type Frame struct {
	Width  int
	Height int
}

var DefaultFrame = Frame{Width: 1280, Height: 720}

// TextOverlay positions static text on a clip.
type TextOverlay struct {
	FontColor string
	FontSize  int
	X         string
	Y         string
}

// DefaultTextOverlay is centered white text near the bottom edge.
var DefaultTextOverlay = TextOverlay{
	FontColor: "white",
	FontSize:  24,
	X:         "(w-text_w)/2",
	Y:         "h-100",
}

// ClipOptions describe a synthesized placeholder clip.
type ClipOptions struct {
	Duration time.Duration
	Color    string
	Text     string
	Frame    Frame
}

// Transcoder runs ffmpeg operations through a Runner.
type Transcoder struct {
	bin      string
	runner   Runner
	logger   *zap.Logger
	progress func(op string, position time.Duration)
}

// Option customizes the transcoder.
type Option func(*Transcoder)

// WithProgress registers a callback receiving the media position ffmpeg reports.
func WithProgress(fn func(op string, position time.Duration)) Option {
	return func(t *Transcoder) {
		t.progress = fn
	}
}

// New creates a transcoder. An empty bin means "ffmpeg" on PATH.
func New(bin string, runner Runner, logger *zap.Logger, opts ...Option) *Transcoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transcoder{
		bin:    bin,
		runner: runner,
		logger: logger.With(zap.String("component", "transcoder")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ExtractAudio writes the audio track of input as PCM WAV.
func (t *Transcoder) ExtractAudio(ctx context.Context, input, output string, opts AudioOptions) (string, error) {
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		opts = DefaultAudioOptions
	}
	args := []string{
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", strconv.Itoa(opts.Channels),
	}
	return t.run(ctx, "extract_audio", []string{input}, output, args)
}

// CleanVideo re-encodes input to H.264/AAC MP4 with the index up front.
func (t *Transcoder) CleanVideo(ctx context.Context, input, output string) (string, error) {
	args := []string{
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-movflags", "+faststart",
	}
	return t.run(ctx, "clean_video", []string{input}, output, args)
}

// Mux replaces the audio of video with audio, ending at the shorter stream.
func (t *Transcoder) Mux(ctx context.Context, video, audio, output string, profile MuxProfile) (string, error) {
	args := []string{"-i", video, "-i", audio}
	switch profile {
	case MuxProfileCopy:
		args = append(args, "-c:v", "copy")
	case MuxProfileReencode:
		args = append(args, "-c:v", "libx264", "-preset", "ultrafast", "-crf", "28")
	default:
		return "", &Error{Op: "mux", Err: fmt.Errorf("unknown mux profile %q", profile)}
	}
	args = append(args,
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
	)
	return t.run(ctx, "mux_"+string(profile), []string{video, audio}, output, args)
}

// Concat joins first and second (both with audio) after scaling each onto frame.
func (t *Transcoder) Concat(ctx context.Context, first, second, output string, frame Frame) (string, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		frame = DefaultFrame
	}
	w, h := strconv.Itoa(frame.Width), strconv.Itoa(frame.Height)
	normalize := func(in, out string) Chain {
		return Chain{
			Inputs: []string{in},
			Filters: []Filter{
				F("scale", P(w), P(h), KV("force_original_aspect_ratio", "decrease")),
				F("pad", P(w), P(h), P("(ow-iw)/2"), P("(oh-ih)/2")),
				F("setsar", P("1")),
				F("fps", P("30")),
			},
			Outputs: []string{out},
		}
	}
	resample := func(in, out string) Chain {
		return Chain{
			Inputs:  []string{in},
			Filters: []Filter{F("aresample", P("44100"))},
			Outputs: []string{out},
		}
	}
	graph := Graph(
		normalize("0:v:0", "v0"),
		resample("0:a:0", "a0"),
		normalize("1:v:0", "v1"),
		resample("1:a:0", "a1"),
		Chain{
			Inputs:  []string{"v0", "a0", "v1", "a1"},
			Filters: []Filter{F("concat", KV("n", "2"), KV("v", "1"), KV("a", "1"))},
			Outputs: []string{"outv", "outa"},
		},
	)
	args := []string{
		"-i", first,
		"-i", second,
		"-filter_complex", graph,
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
	}
	return t.run(ctx, "concat", []string{first, second}, output, args)
}

// Segment cuts [start, end) out of input.
func (t *Transcoder) Segment(ctx context.Context, input, output string, start, end models.Timestamp) (string, error) {
	from, err := start.Seconds()
	if err != nil {
		return "", &Error{Op: "segment", Err: err}
	}
	to, err := end.Seconds()
	if err != nil {
		return "", &Error{Op: "segment", Err: err}
	}
	if to <= from {
		return "", &Error{Op: "segment", Err: fmt.Errorf("end %s not after start %s", end, start)}
	}
	args := []string{
		"-ss", formatSeconds(from),
		"-i", input,
		"-t", formatSeconds(to - from),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
	}
	return t.run(ctx, "segment", []string{input}, output, args)
}

// BurnSubtitles renders an SRT file onto the picture.
func (t *Transcoder) BurnSubtitles(ctx context.Context, input, subtitles, output, forceStyle string) (string, error) {
	opts := []FilterOption{KV("filename", subtitles)}
	if forceStyle != "" {
		opts = append(opts, KV("force_style", forceStyle))
	}
	args := []string{
		"-i", input,
		"-vf", F("subtitles", opts...).String(),
		"-c:a", "copy",
	}
	return t.run(ctx, "burn_subtitles", []string{input, subtitles}, output, args)
}

// DrawText overlays static text. The text goes through a side file so it is
// never interpreted by the filter parser.
func (t *Transcoder) DrawText(ctx context.Context, input, output, text string, overlay TextOverlay) (string, error) {
	textFile := output + ".txt"
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", &Error{Op: "draw_text", Err: err}
	}
	if err := os.WriteFile(textFile, []byte(text), 0o644); err != nil {
		return "", &Error{Op: "draw_text", Err: err}
	}
	defer os.Remove(textFile)

	args := []string{
		"-i", input,
		"-vf", drawTextFilter(textFile, overlay).String(),
		"-c:a", "copy",
	}
	return t.run(ctx, "draw_text", []string{input}, output, args)
}

// PlaceholderClip synthesizes a solid-color clip with silent stereo audio and
// optional centered text.
func (t *Transcoder) PlaceholderClip(ctx context.Context, output string, opts ClipOptions) (string, error) {
	if opts.Duration <= 0 {
		opts.Duration = 3 * time.Second
	}
	if opts.Color == "" {
		opts.Color = "black"
	}
	if opts.Frame.Width <= 0 || opts.Frame.Height <= 0 {
		opts.Frame = DefaultFrame
	}
	dur := formatSeconds(opts.Duration.Seconds())
	size := fmt.Sprintf("%dx%d", opts.Frame.Width, opts.Frame.Height)

	args := []string{
		"-f", "lavfi", "-i", F("color", KV("c", opts.Color), KV("s", size), KV("d", dur), KV("r", "30")).String(),
		"-f", "lavfi", "-i", F("anullsrc", KV("channel_layout", "stereo"), KV("sample_rate", "44100")).String(),
		"-t", dur,
	}
	if opts.Text != "" {
		textFile := output + ".txt"
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return "", &Error{Op: "placeholder_clip", Err: err}
		}
		if err := os.WriteFile(textFile, []byte(opts.Text), 0o644); err != nil {
			return "", &Error{Op: "placeholder_clip", Err: err}
		}
		defer os.Remove(textFile)
		overlay := TextOverlay{FontColor: "white", FontSize: 48, X: "(w-text_w)/2", Y: "(h-text_h)/2"}
		args = append(args, "-vf", drawTextFilter(textFile, overlay).String())
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
	)
	return t.run(ctx, "placeholder_clip", nil, output, args)
}

// GenerateFormats is an extension point for alternate renditions. It produces
// nothing and always succeeds.
func (t *Transcoder) GenerateFormats(_ context.Context, input string) ([]string, error) {
	t.logger.Debug("alternate formats not generated", zap.String("input", input))
	return nil, nil
}

// CopyFile copies src to dst byte for byte and applies the same output checks
// as the ffmpeg-backed operations.
func (t *Transcoder) CopyFile(src, dst string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", &Error{Op: "copy", Err: err}
	}
	in, err := os.Open(src)
	if err != nil {
		return "", &Error{Op: "copy", Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", &Error{Op: "copy", Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", &Error{Op: "copy", Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &Error{Op: "copy", Err: err}
	}
	if err := verifyOutput(dst); err != nil {
		return "", &Error{Op: "copy", Err: err}
	}
	return dst, nil
}

func (t *Transcoder) run(ctx context.Context, op string, inputs []string, output string, args []string) (string, error) {
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return "", &Error{Op: op, ExitCode: -1, Err: fmt.Errorf("input: %w", err)}
		}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", &Error{Op: op, ExitCode: -1, Err: fmt.Errorf("create output dir: %w", err)}
	}

	full := make([]string, 0, len(args)+5)
	full = append(full, "-hide_banner", "-nostdin", "-y")
	full = append(full, args...)
	full = append(full, output)

	cmd := Command{Name: t.bin, Args: full}
	if t.progress != nil {
		cmd.OnStderrLine = func(line string) {
			if pos, ok := parseProgressTime(line); ok {
				t.progress(op, pos)
			}
		}
	}

	started := time.Now()
	t.logger.Debug("running ffmpeg", zap.String("op", op), zap.Strings("args", full))
	res, err := t.runner.Run(ctx, cmd)
	if err != nil {
		os.Remove(output)
		return "", &Error{Op: op, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	if err := verifyOutput(output); err != nil {
		os.Remove(output)
		return "", &Error{Op: op, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	if info, statErr := os.Stat(output); statErr == nil {
		t.logger.Debug("ffmpeg finished",
			zap.String("op", op),
			zap.String("output", output),
			zap.String("size", humanize.Bytes(uint64(info.Size()))),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
	return output, nil
}

func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return ErrEmptyOutput
	}
	return nil
}

func drawTextFilter(textFile string, overlay TextOverlay) Filter {
	if overlay.FontColor == "" {
		overlay = DefaultTextOverlay
	}
	return F("drawtext",
		KV("textfile", textFile),
		KV("expansion", "none"),
		KV("fontcolor", overlay.FontColor),
		KV("fontsize", strconv.Itoa(overlay.FontSize)),
		KV("x", overlay.X),
		KV("y", overlay.Y),
	)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
