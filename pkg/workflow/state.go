// Package workflow holds the capture/upload state machine. State is a plain
// value and every transition goes through Reduce.
package workflow

import (
	"github.com/menta2k/isitai/pkg/types"
)

// Phase is the coarse state of the workflow
type Phase int

const (
	Idle Phase = iota
	ImageReady
	RequestPending
	RequestSucceeded
	RequestFailed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ImageReady:
		return "image_ready"
	case RequestPending:
		return "request_pending"
	case RequestSucceeded:
		return "request_succeeded"
	case RequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the workflow
type State struct {
	Phase   Phase
	Image   *types.CapturedImage
	Results types.ClassificationResult
	// Err is the classification failure message, shown verbatim
	Err string
	// Notice is a non-blocking message for capture and upload problems
	Notice string
	// Trigger is the source of the image behind the current request
	Trigger types.Source
	// ResultFor names the image the current request or result belongs to.
	// It is zero until a request is submitted.
	ResultFor types.ImageRef
	// Generation identifies the current image/request; results from older generations are discarded
	Generation uint64
}

// Pending reports whether a classification is in flight
func (s State) Pending() bool {
	return s.Phase == RequestPending
}

// Event is an input to Reduce
type Event interface {
	event()
}

// FileSelected replaces the current image with an uploaded file
type FileSelected struct {
	Image types.CapturedImage
}

// FileRejected reports an upload that could not be turned into an image
type FileRejected struct {
	Reason string
}

// CaptureSucceeded replaces the current image with a screenshot
type CaptureSucceeded struct {
	Image types.CapturedImage
}

// CaptureFailed reports a failed screenshot; the current state is kept
type CaptureFailed struct {
	Reason string
}

// Submitted starts classification of the current image
type Submitted struct{}

// ClassifiedOK delivers the results of the request started at Generation
type ClassifiedOK struct {
	Generation uint64
	Results    types.ClassificationResult
}

// ClassifiedError delivers the failure of the request started at Generation
type ClassifiedError struct {
	Generation uint64
	Err        string
}

func (FileSelected) event()     {}
func (FileRejected) event()     {}
func (CaptureSucceeded) event() {}
func (CaptureFailed) event()    {}
func (Submitted) event()        {}
func (ClassifiedOK) event()     {}
func (ClassifiedError) event()  {}

// Reduce applies one event to a state and returns the next state
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case FileSelected:
		return newImage(s, e.Image)

	case CaptureSucceeded:
		return newImage(s, e.Image)

	case FileRejected:
		s.Notice = e.Reason
		return s

	case CaptureFailed:
		s.Notice = e.Reason
		return s

	case Submitted:
		if s.Image == nil {
			return s
		}
		s.Phase = RequestPending
		s.Results = nil
		s.Err = ""
		s.Notice = ""
		s.Trigger = s.Image.Source
		s.ResultFor = s.Image.Ref()
		s.Generation++
		return s

	case ClassifiedOK:
		if !current(s, e.Generation) {
			return s
		}
		s.Phase = RequestSucceeded
		s.Results = e.Results
		return s

	case ClassifiedError:
		if !current(s, e.Generation) {
			return s
		}
		s.Phase = RequestFailed
		s.Err = e.Err
		return s
	}
	return s
}

func newImage(s State, img types.CapturedImage) State {
	return State{
		Phase:      ImageReady,
		Image:      &img,
		Trigger:    img.Source,
		Generation: s.Generation + 1,
	}
}

func current(s State, gen uint64) bool {
	return s.Phase == RequestPending && s.Generation == gen
}
