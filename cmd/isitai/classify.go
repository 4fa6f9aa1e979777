package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/menta2k/isitai"
	"github.com/menta2k/isitai/internal/config"
	"github.com/menta2k/isitai/internal/utils"
	"github.com/menta2k/isitai/pkg/workflow"
)

type classifyOptions struct {
	backend  string
	noColor  bool
	jsonOut  bool
	tolerant bool
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	co := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify <image|dir>...",
		Short: "Classify image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if co.backend != "" {
				cfg.Inference.Backend = co.backend
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if cfg.Inference.Backend == config.BackendHuggingFace && cfg.Inference.APIToken == "" {
				return workflow.ErrMissingToken
			}

			paths, err := utils.ExpandImagePaths(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no image files found")
			}

			classifier, err := newClassifier(cfg)
			if err != nil {
				return err
			}
			detector := isitai.NewWithConfig(cfg.ProcessorConfig(), classifier, cfg.Inference.APIToken)

			reports := make([]report, 0, len(paths))
			failed := 0
			for _, path := range paths {
				r := report{Path: path}
				img, err := detector.Processor().LoadFile(path)
				if err == nil {
					r.Size = img.Size
					r.Results, err = detector.Classify(ctx, img)
				}
				if err != nil {
					failed++
					r.Error = err.Error()
					logger.Warn("classify failed", "path", path, "err", err)
				}
				reports = append(reports, r)
				if !co.jsonOut {
					printReport(cmd.OutOrStdout(), r, !co.noColor)
				}
			}

			if co.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
			}
			if failed > 0 && !co.tolerant {
				return fmt.Errorf("%d of %d images failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&co.backend, "backend", "", "classifier backend: huggingface or ollama")
	cmd.Flags().BoolVar(&co.noColor, "no-color", false, "disable coloured output")
	cmd.Flags().BoolVar(&co.jsonOut, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&co.tolerant, "keep-going", false, "exit zero even when some images fail")
	return cmd
}
