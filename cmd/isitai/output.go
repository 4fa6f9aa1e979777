package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/menta2k/isitai/internal/utils"
	"github.com/menta2k/isitai/pkg/render"
	"github.com/menta2k/isitai/pkg/types"
)

// report is one classified image
type report struct {
	Path    string                     `json:"path"`
	Size    int                        `json:"size"`
	Results types.ClassificationResult `json:"results,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

func printReport(w io.Writer, r report, colours bool) {
	title := fmt.Sprintf("%s (%s)", r.Path, utils.FormatFileSize(int64(r.Size)))
	if r.Error != "" {
		line := title + ": " + r.Error
		if colours {
			line = color.New(color.FgRed).Render(line)
		}
		fmt.Fprintln(w, line)
		return
	}

	if top, ok := r.Results.Top(); ok {
		verdict := fmt.Sprintf("%s: %s, %s", title, top.Label, render.Confidence(top.Score))
		if colours {
			fg := color.FgGreen
			if top.IsFake() {
				fg = color.FgRed
			}
			verdict = color.New(fg, color.OpBold).Render(verdict)
		}
		fmt.Fprintln(w, verdict)
	}

	t := table.NewWriter()
	if colours {
		t.SetStyle(table.StyleColoredBright)
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.AppendHeader(table.Row{"#", "Label", "Score", "Confidence"})
	for i, p := range r.Results {
		t.AppendRow(table.Row{i + 1, p.Label, render.TruncatedScore(p.Score), render.Confidence(p.Score)})
	}
	fmt.Fprintln(w, t.Render())
}

func printJSON(w io.Writer, reports []report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
