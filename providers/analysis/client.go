// Package analysis talks to the Gemini generateContent API to transcribe demo
// audio, pick out product features and draft a narration script.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"video-narrator/core/models"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.5-flash"
	defaultHTTPTimeout = 60 * time.Second
	maxInlineAudio     = 20 << 20
)

// ErrNotConfigured is returned by every call when no API key is set.
var ErrNotConfigured = errors.New("analysis: api key not configured")

// Config captures the runtime settings required to talk to Gemini.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client wraps the Gemini generateContent endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs a client. Missing base URL and model fall back to defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:   strings.TrimSpace(cfg.Model),
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	if c.cfg.Model == "" {
		c.cfg.Model = defaultModel
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// StatusError is a non-2xx response from the provider.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: http %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: http %d: %s", e.StatusCode, e.Message)
}

// IsQuotaError reports whether err signals a quota or rate limit condition.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota")
}

// ScriptRequest carries the inputs for script generation.
type ScriptRequest struct {
	AppName     string
	Description string
	Transcript  string
	Template    string
}

// Transcribe sends the audio inline and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if info.Size() > maxInlineAudio {
		return "", fmt.Errorf("transcribe: audio is %d bytes, inline limit is %d", info.Size(), maxInlineAudio)
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	parts := []part{
		{Text: "Transcribe the speech in this audio recording of a software demo. Return only the transcript text."},
		{InlineData: &inlineData{MimeType: audioMimeType(audioPath), Data: base64.StdEncoding.EncodeToString(data)}},
	}
	text, err := c.generate(ctx, parts, "")
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("transcribe: empty transcript")
	}
	return text, nil
}

// AnalyzeFeatures asks for the two or three main features shown in the demo.
func (c *Client) AnalyzeFeatures(ctx context.Context, appName, description, transcript string) (models.FeatureList, error) {
	var empty models.FeatureList
	if !c.Configured() {
		return empty, ErrNotConfigured
	}
	prompt := fmt.Sprintf(featurePrompt, appName, description, transcript)
	text, err := c.generate(ctx, []part{{Text: prompt}}, "application/json")
	if err != nil {
		return empty, fmt.Errorf("analyze features: %w", err)
	}
	var list models.FeatureList
	if err := DecodeJSON(text, &list); err != nil {
		return empty, fmt.Errorf("analyze features: %w", err)
	}
	if len(list.Features) == 0 {
		return empty, errors.New("analyze features: no features in response")
	}
	return list, nil
}

// GenerateScript asks for a short segmented marketing script.
func (c *Client) GenerateScript(ctx context.Context, req ScriptRequest) (models.Script, error) {
	var empty models.Script
	if !c.Configured() {
		return empty, ErrNotConfigured
	}
	template := req.Template
	if template == "" {
		template = "professional"
	}
	prompt := fmt.Sprintf(scriptPrompt, req.AppName, req.Description, template, req.Transcript, req.AppName)
	text, err := c.generate(ctx, []part{{Text: prompt}}, "application/json")
	if err != nil {
		return empty, fmt.Errorf("generate script: %w", err)
	}
	var script models.Script
	if err := DecodeJSON(text, &script); err != nil {
		return empty, fmt.Errorf("generate script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return empty, fmt.Errorf("generate script: %w", err)
	}
	return script, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, parts []part, mimeType string) (string, error) {
	payload := generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{Temperature: 0.4, ResponseMimeType: mimeType},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
			se.Message = er.Error.Message
			se.Status = er.Error.Status
		}
		return "", se
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	var b strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("empty content (finish_reason=%q)", decoded.Candidates[0].FinishReason)
	}
	return b.String(), nil
}

func audioMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

const featurePrompt = `Analyze this SaaS application demo and identify key features:

App Name: %s
Description: %s
Transcript: %s

Please identify 2-3 main features shown in the video with timestamps.
Return as JSON in this exact format:
{
  "features": [
    {
      "name": "Feature Name",
      "startTime": "00:00:06,000",
      "endTime": "00:00:12,000",
      "description": "Brief description of what this feature does"
    }
  ]
}`

const scriptPrompt = `Create a professional video script for this SaaS application:

App: %s
Description: %s
Template: %s
Transcript: %s

Create 4-5 segments with captions that will be used for video narration.
Each segment should be 5 seconds long and have engaging, marketing-focused text.
Segments must be in time order and must not overlap.

Return as JSON:
{
  "segments": [
    {
      "startTime": "00:00:00,000",
      "endTime": "00:00:05,000",
      "caption": "Transform your workflow with %s.",
      "type": "hook",
      "feature": "intro"
    }
  ]
}`
