package types

import (
	"strings"

	"github.com/google/uuid"
)

// Source tells where a CapturedImage came from
type Source string

const (
	SourceUpload  Source = "upload"
	SourceCapture Source = "capture"
)

// CapturedImage is an encoded image ready to be sent to a classifier.
// Values are never mutated; a new selection or capture replaces the whole value.
type CapturedImage struct {
	ID      string `json:"id"`
	Source  Source `json:"source"`
	Name    string `json:"name,omitempty"`
	MIME    string `json:"mime"`
	DataURI string `json:"dataUri"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Size    int    `json:"size"`
}

// NewImageID returns a fresh identifier for a CapturedImage
func NewImageID() string {
	return uuid.NewString()
}

// ImageRef identifies an image without holding its payload
type ImageRef struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
}

// Ref returns a payload-free reference to the image
func (c CapturedImage) Ref() ImageRef {
	return ImageRef{ID: c.ID, Source: c.Source}
}

// Prediction is a single label with its confidence in [0,1]
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// IsFake reports whether the label names the "fake" class
func (p Prediction) IsFake() bool {
	return strings.EqualFold(p.Label, "fake")
}

// ClassificationResult is ordered by likelihood, index 0 being the most likely class
type ClassificationResult []Prediction

// Top returns the most likely prediction
func (r ClassificationResult) Top() (Prediction, bool) {
	if len(r) == 0 {
		return Prediction{}, false
	}
	return r[0], true
}

const defaultCaptureFailure = "capture failed"

// CaptureOutcome is either a captured image or a failure reason, never both.
// Build it with CaptureSucceeded or CaptureFailed; the zero value is a failure.
type CaptureOutcome struct {
	image  *CapturedImage
	reason string
}

// CaptureSucceeded wraps a captured image
func CaptureSucceeded(img CapturedImage) CaptureOutcome {
	return CaptureOutcome{image: &img}
}

// CaptureFailed wraps a failure reason
func CaptureFailed(reason string) CaptureOutcome {
	if reason == "" {
		reason = defaultCaptureFailure
	}
	return CaptureOutcome{reason: reason}
}

// OK reports whether the capture produced an image
func (o CaptureOutcome) OK() bool {
	return o.image != nil
}

// Image returns the captured image when the capture succeeded
func (o CaptureOutcome) Image() (CapturedImage, bool) {
	if o.image == nil {
		return CapturedImage{}, false
	}
	return *o.image, true
}

// Reason returns the failure reason, or "" on success
func (o CaptureOutcome) Reason() string {
	if o.image != nil {
		return ""
	}
	if o.reason == "" {
		return defaultCaptureFailure
	}
	return o.reason
}
