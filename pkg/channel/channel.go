// Package channel is the narrow request/response bridge between the UI side and
// the privileged side. It exposes exactly one operation, open-snipping-tool.
package channel

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/types"
)

// OpenSnippingTool is the only request name the channel accepts
const OpenSnippingTool = "open-snipping-tool"

// Path is the route serving OpenSnippingTool
const Path = "/ipc/" + OpenSnippingTool

// SecretHeader carries the per-launch channel secret
const SecretHeader = "X-Isitai-Channel"

// ErrMalformedResponse is returned when a response is neither a success nor a failure
var ErrMalformedResponse = errors.New("malformed capture response")

// Capturer is the privileged operation the channel relays
type Capturer interface {
	CaptureScreenshot(ctx context.Context) types.CaptureOutcome
}

// Response is the wire form of a CaptureOutcome
type Response struct {
	Success bool   `json:"success"`
	DataURL string `json:"dataUrl,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FromOutcome converts an outcome to its wire form
func FromOutcome(o types.CaptureOutcome) Response {
	if img, ok := o.Image(); ok {
		return Response{Success: true, DataURL: img.DataURI}
	}
	return Response{Success: false, Error: o.Reason()}
}

// Outcome converts the wire form back, rejecting responses with both or neither payload
func (r Response) Outcome() (types.CaptureOutcome, error) {
	switch {
	case r.Success && r.DataURL != "" && r.Error == "":
		mime, data, err := processing.ParseDataURI(r.DataURL)
		if err != nil {
			return types.CaptureOutcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return types.CaptureSucceeded(types.CapturedImage{
			ID:      types.NewImageID(),
			Source:  types.SourceCapture,
			MIME:    mime,
			DataURI: r.DataURL,
			Size:    len(data),
		}), nil
	case !r.Success && r.DataURL == "" && r.Error != "":
		return types.CaptureFailed(r.Error), nil
	default:
		return types.CaptureOutcome{}, ErrMalformedResponse
	}
}

// NewSecret returns a fresh per-launch channel secret
func NewSecret() string {
	return uuid.NewString()
}

// Handler serves the channel on the privileged side. Every other path is 404.
func Handler(capturer Capturer, secret string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			pslog.Ctx(r.Context()).Warn("channel request rejected", "reason", "bad secret", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		resp := FromOutcome(capturer.CaptureScreenshot(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

// Client invokes the channel from the UI side
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient creates a channel client. The capture includes the user's
// interactive selection, so the timeout must exceed the longest settle delay.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// OpenSnippingTool asks the privileged side for a screenshot.
// Transport and decoding failures are reported as failed outcomes.
func (c *Client) OpenSnippingTool(ctx context.Context) types.CaptureOutcome {
	resp, err := c.call(ctx)
	if err != nil {
		return types.CaptureFailed(err.Error())
	}
	outcome, err := resp.Outcome()
	if err != nil {
		return types.CaptureFailed(err.Error())
	}
	return outcome
}

func (c *Client) call(ctx context.Context) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path, bytes.NewReader(nil))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(SecretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("channel returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}
