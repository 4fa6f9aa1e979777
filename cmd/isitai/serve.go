package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/menta2k/isitai/pkg/navigation"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var open bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the UI and capture channel without a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := startStack(ctx, cfg, addr)
			if err != nil {
				return err
			}
			defer st.stop(ctx)

			logger.Info("ui ready", "url", st.ui.URL())
			if open {
				if err := (navigation.SystemOpener{}).Open(ctx, st.ui.URL()); err != nil {
					logger.Warn("failed to open browser", "err", err)
				}
			}

			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "UI listen address (overrides ui.addr)")
	cmd.Flags().BoolVar(&open, "open", false, "open the UI in the default browser")
	return cmd
}
