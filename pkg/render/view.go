// Package render turns a workflow state into display-ready values
package render

import (
	"fmt"
	"math"
	"strconv"

	"github.com/samber/lo"

	"github.com/menta2k/isitai/pkg/types"
	"github.com/menta2k/isitai/pkg/workflow"
)

// Placeholder is shown in the results panel before any request
const Placeholder = "Upload an image to see results"

// Tone selects the colour treatment of a panel or bar
type Tone string

const (
	ToneAlert       Tone = "alert"
	ToneAffirmative Tone = "affirmative"
	ToneLeading     Tone = "leading"
	ToneOther       Tone = "other"
)

// TopPanel is the "Most Likely" panel
type TopPanel struct {
	Label      string `json:"label"`
	Confidence string `json:"confidence"`
	Tone       Tone   `json:"tone"`
}

// Row is one line of the detailed results
type Row struct {
	Label string `json:"label"`
	Score string `json:"score"`
	// Width is a CSS percentage equal to score*100
	Width string `json:"width"`
	Tone  Tone   `json:"tone"`
}

// View is everything the UI shows for one state. ResultFor is the ID of the
// image the shown request or result belongs to.
type View struct {
	Phase       string    `json:"phase"`
	Preview     string    `json:"preview,omitempty"`
	ImageName   string    `json:"imageName,omitempty"`
	CanSubmit   bool      `json:"canSubmit"`
	Pending     bool      `json:"pending"`
	Error       string    `json:"error,omitempty"`
	Notice      string    `json:"notice,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Top         *TopPanel `json:"top,omitempty"`
	Rows        []Row     `json:"rows,omitempty"`
	ResultFor   string    `json:"resultFor,omitempty"`
	Generation  uint64    `json:"generation"`
}

// Build renders a state
func Build(s workflow.State) View {
	v := View{
		Phase:      s.Phase.String(),
		Pending:    s.Pending(),
		Notice:     s.Notice,
		Generation: s.Generation,
	}

	if s.Image != nil {
		v.Preview = s.Image.DataURI
		v.ImageName = s.Image.Name
		// captures submit themselves, only an uploaded file waits for the button
		v.CanSubmit = s.Image.Source == types.SourceUpload && !v.Pending
	}

	if s.Phase == workflow.RequestPending || s.Phase == workflow.RequestSucceeded || s.Phase == workflow.RequestFailed {
		v.ResultFor = s.ResultFor.ID
	}

	switch s.Phase {
	case workflow.RequestFailed:
		v.Error = s.Err
	case workflow.RequestSucceeded:
		// a result is only drawn next to the image it was computed for
		if s.Image != nil && s.ResultFor != s.Image.Ref() {
			break
		}
		if top, ok := s.Results.Top(); ok {
			v.Top = topPanel(top)
			v.Rows = Rows(s.Results)
		}
	case workflow.Idle, workflow.ImageReady:
		v.Placeholder = Placeholder
	}
	return v
}

// Rows renders every prediction in order
func Rows(results types.ClassificationResult) []Row {
	return lo.Map(results, func(p types.Prediction, i int) Row {
		return Row{
			Label: p.Label,
			Score: TruncatedScore(p.Score),
			Width: BarWidth(p.Score),
			Tone:  barTone(p, i),
		}
	})
}

// Confidence formats a score as "NN.N% confidence"
func Confidence(score float64) string {
	return fmt.Sprintf("%.1f%% confidence", score*100)
}

// TruncatedScore keeps two decimals without rounding, 0.919 becomes "0.91"
func TruncatedScore(score float64) string {
	return strconv.FormatFloat(math.Trunc(score*100)/100, 'f', -1, 64)
}

// BarWidth is the CSS width of a score bar
func BarWidth(score float64) string {
	return strconv.FormatFloat(score*100, 'f', -1, 64) + "%"
}

func topPanel(p types.Prediction) *TopPanel {
	tone := ToneAffirmative
	if p.IsFake() {
		tone = ToneAlert
	}
	return &TopPanel{Label: p.Label, Confidence: Confidence(p.Score), Tone: tone}
}

func barTone(p types.Prediction, index int) Tone {
	switch {
	case p.IsFake():
		return ToneAlert
	case index == 0:
		return ToneLeading
	default:
		return ToneOther
	}
}
