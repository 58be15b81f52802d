// Package generation calls the Gemini text-generation endpoint and turns its
// structured output into a caption and a list of hashtags.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// Options configures a Client.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string        // optional endpoint override, used by tests
	Timeout    time.Duration // per-request timeout; zero keeps the SDK default
	HTTPClient *http.Client
}

// Result is the parsed model output.
type Result struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

// Client sends one GenerateContent request per call. It never retries and
// never caches.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient builds a Gemini API client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		timeout := opts.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{genai: c, model: model}, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// captionSchema is the fixed response shape: {caption: string, hashtags: string[]}.
func captionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"caption": {Type: genai.TypeString},
			"hashtags": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required:         []string{"caption", "hashtags"},
		PropertyOrdering: []string{"caption", "hashtags"},
	}
}

// Generate sends prompt and parses the structured reply. Every failure is an
// *apperr.Error of kind generation; see the Code* constants.
func (c *Client) Generate(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   captionSchema(),
	})
	if err != nil {
		gerr := classify(ctx, err)
		slog.Warn("caption generation failed", "model", c.model, "code", gerr.Code, "error", err)
		return Result{}, gerr
	}

	res, err := Parse(resp.Text())
	if err != nil {
		slog.Warn("caption generation returned unusable output", "model", c.model, "code", CodeSchema, "error", err)
		return Result{}, err
	}
	slog.Debug("caption generated",
		"model", c.model,
		"hashtags", len(res.Hashtags),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Parse validates a raw model payload against the caption schema.
func Parse(text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, schemaError(errors.New("empty response from model"))
	}

	var raw struct {
		Caption  *string  `json:"caption"`
		Hashtags []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Result{}, schemaError(fmt.Errorf("decoding model output: %w", err))
	}
	if raw.Caption == nil || strings.TrimSpace(*raw.Caption) == "" {
		return Result{}, schemaError(errors.New("model output has no caption"))
	}

	res := Result{Caption: *raw.Caption, Hashtags: raw.Hashtags}
	if res.Hashtags == nil {
		res.Hashtags = []string{}
	}
	return res, nil
}

// HashtagLine renders the hashtags space-separated, each with a leading '#'.
func (r Result) HashtagLine() string {
	tags := make([]string, 0, len(r.Hashtags))
	for _, t := range r.Hashtags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		tags = append(tags, t)
	}
	return strings.Join(tags, " ")
}

// CopyText is the caption followed by a blank line and the hashtag line.
func (r Result) CopyText() string {
	line := r.HashtagLine()
	if line == "" {
		return r.Caption
	}
	return r.Caption + "\n\n" + line
}

