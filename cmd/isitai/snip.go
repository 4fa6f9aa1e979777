package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/menta2k/isitai/pkg/capture"
	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/types"
	"github.com/menta2k/isitai/pkg/workflow"
)

// bridgeSnipper drives the bridge in process, there is no window to hide
type bridgeSnipper struct {
	bridge *capture.Bridge
}

func (s bridgeSnipper) OpenSnippingTool(ctx context.Context) types.CaptureOutcome {
	return s.bridge.CaptureScreenshot(ctx)
}

func newSnipCmd(opts *rootOptions) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "snip",
		Short: "Capture a screen region and classify it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			classifier, err := newClassifier(cfg)
			if err != nil {
				return err
			}

			processor := processing.NewProcessorWithConfig(cfg.ProcessorConfig())
			controller := workflow.New(workflow.Config{
				Classifier: classifier,
				Snipper:    bridgeSnipper{bridge: newBridge(cfg, processor)},
				Processor:  processor,
				APIToken:   cfg.Inference.APIToken,
			})
			return runSnip(cmd.Context(), controller, cmd.OutOrStdout(), !noColor)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	return cmd
}

// runSnip captures through the controller, waits for the automatic
// classification and prints it
func runSnip(ctx context.Context, controller *workflow.Controller, w io.Writer, colours bool) error {
	if err := controller.Capture(ctx); err != nil {
		return err
	}
	controller.Wait()

	state := controller.State()
	switch state.Phase {
	case workflow.RequestSucceeded:
	case workflow.RequestFailed:
		return errors.New(state.Err)
	default:
		if state.Notice != "" {
			return errors.New(state.Notice)
		}
		return errors.New("screenshot was not classified")
	}

	r := report{Path: "screenshot", Results: state.Results}
	if state.Image != nil {
		r.Size = state.Image.Size
	}
	printReport(w, r, colours)
	return nil
}
