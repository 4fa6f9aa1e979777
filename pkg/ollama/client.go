package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/types"
)

// DefaultPrompt asks the model for the same ranked list the hosted endpoint returns
const DefaultPrompt = `You are a forensic image classifier. Decide whether the face in this image is a real photograph or AI generated.

Return JSON only, an array sorted by score (highest first):
[{"label": "fake", "score": 0.0}, {"label": "real", "score": 0.0}]

RULES
- Labels are exactly "fake" and "real".
- Scores are probabilities in [0,1] and sum to 1.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Client classifies images with a local Ollama vision model
type Client struct {
	client *api.Client
	model  string
	prompt string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		prompt: DefaultPrompt,
	}, nil
}

// Classify asks the model for a ranked fake/real list. The bearer token is not used by Ollama.
func (c *Client) Classify(ctx context.Context, img types.CapturedImage, _ string) (types.ClassificationResult, error) {
	// Add timeout if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	_, imgBytes, err := processing.ParseDataURI(img.DataURI)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": 0},
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	if strings.TrimSpace(responseContent) == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	return parsePredictions(responseContent)
}

// parsePredictions decodes the model's JSON array and orders it by descending score
func parsePredictions(raw string) (types.ClassificationResult, error) {
	raw = sanitizeModelJSON(raw)

	var result types.ClassificationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// Some models wrap the list in an object
		var wrapped struct {
			Predictions types.ClassificationResult `json:"predictions"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 != nil || len(wrapped.Predictions) == 0 {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
		result = wrapped.Predictions
	}

	for i := range result {
		result[i].Label = strings.ToLower(strings.TrimSpace(result[i].Label))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return result, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from a JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost [...] or {...}
	open, closing := "[", "]"
	if ai, oi := strings.Index(raw, "["), strings.Index(raw, "{"); ai < 0 || (oi >= 0 && oi < ai) {
		open, closing = "{", "}"
	}
	if start := strings.Index(raw, open); start >= 0 {
		if end := strings.LastIndex(raw, closing); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
