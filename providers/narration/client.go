// Package narration turns a script into spoken audio with the ElevenLabs
// text-to-speech API. An unavailable provider yields no audio rather than an error.
package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"video-narrator/core/models"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io/v1"
	defaultVoiceID     = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID     = "eleven_monolingual_v1"
	defaultHTTPTimeout = 90 * time.Second
	maxAudioBytes      = 100 << 20
)

// GenericNarration is spoken when the script has no captions.
const GenericNarration = "Welcome to this innovative SaaS application. " +
	"Discover powerful features that will transform your workflow. " +
	"See how easy it is to get started and experience the difference our platform makes. " +
	"Join thousands of satisfied users who have already revolutionized their productivity."

// ErrMisconfigured is the only error Synthesize returns.
var ErrMisconfigured = errors.New("narration: client misconfigured")

// VoiceSettings are passed through to the provider.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings is a steady, clear narration voice.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.75,
	SimilarityBoost: 0.75,
	Style:           0.5,
	UseSpeakerBoost: true,
}

// Config captures the runtime settings for the provider.
type Config struct {
	APIKey    string
	VoiceID   string
	ModelID   string
	BaseURL   string
	OutputDir string
	Voice     *VoiceSettings
}

// Client calls the text-to-speech endpoint.
type Client struct {
	cfg        Config
	voice      VoiceSettings
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client. Blank voice, model and base URL use defaults.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	voice := DefaultVoiceSettings
	if cfg.Voice != nil {
		voice = *cfg.Voice
	}
	c := &Client{
		cfg:        cfg,
		voice:      voice,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.With(zap.String("component", "narration")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize writes narration audio for script and returns its path. An empty
// path with a nil error means no narration is available. Only a missing output
// directory is reported as an error.
func (c *Client) Synthesize(ctx context.Context, script models.Script, jobID string) (string, error) {
	if c.cfg.APIKey == "" {
		c.logger.Info("narration disabled: no api key", zap.String("job_id", jobID))
		return "", nil
	}
	if c.cfg.OutputDir == "" {
		return "", fmt.Errorf("%w: output directory not set", ErrMisconfigured)
	}

	text := NarrationText(script)
	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       c.cfg.ModelID,
		VoiceSettings: c.voice,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrMisconfigured, err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", c.cfg.BaseURL, c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrMisconfigured, err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	log := c.logger.With(zap.String("job_id", jobID))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("narration request failed", zap.Error(err))
		return "", nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Warn("narration provider rejected the api key")
		return "", nil
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Warn("narration provider rate limit reached")
		return "", nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn("narration provider error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(snippet))),
		)
		return "", nil
	}

	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output dir: %v", ErrMisconfigured, err)
	}
	path := filepath.Join(c.cfg.OutputDir, jobID+"_narration.mp3")
	n, err := writeAudio(path, resp.Body)
	if err != nil {
		log.Warn("narration audio not saved", zap.Error(err))
		os.Remove(path)
		return "", nil
	}
	if n == 0 {
		log.Warn("narration provider returned no audio")
		os.Remove(path)
		return "", nil
	}

	log.Info("narration generated",
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(n))),
		zap.Int("characters", len(text)),
	)
	return path, nil
}

func writeAudio(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(r, maxAudioBytes))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	doublePunctRe = regexp.MustCompile(`([.!?])\s*[.!?]`)
)

// NarrationText joins the captions into one spoken passage.
func NarrationText(script models.Script) string {
	captions := make([]string, 0, len(script.Segments))
	for _, seg := range script.Segments {
		if c := strings.TrimSpace(seg.Caption); c != "" {
			captions = append(captions, c)
		}
	}
	text := strings.Join(captions, ". ")
	if text == "" {
		text = GenericNarration
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = doublePunctRe.ReplaceAllString(text, "$1 ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
