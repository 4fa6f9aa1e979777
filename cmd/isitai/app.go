package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/menta2k/isitai/internal/shell"
	"github.com/menta2k/isitai/pkg/navigation"
)

func newAppCmd(opts *rootOptions) *cobra.Command {
	var dev, headless bool
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Open the desktop window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if dev {
				cfg.UI.DevMode = true
			}

			var policy *navigation.Policy
			uiAddr := ""
			if cfg.UI.DevMode {
				policy, err = navigation.ForDevelopment(cfg.UI.DevURL)
				if err != nil {
					return err
				}
				u, _ := url.Parse(policy.Origin())
				if u.Scheme != "http" {
					return fmt.Errorf("development URL %s must use http", cfg.UI.DevURL)
				}
				uiAddr = u.Host
			}

			st, err := startStack(ctx, cfg, uiAddr)
			if err != nil {
				return err
			}
			defer st.stop(ctx)

			if policy == nil {
				policy, err = navigation.ForPackaged(st.ui.URL())
				if err != nil {
					return err
				}
			}

			win, err := shell.Open(ctx, shell.Config{
				URL:        policy.Origin() + "/",
				Policy:     policy,
				Opener:     navigation.SystemOpener{},
				DevMode:    cfg.UI.DevMode,
				ChromePath: cfg.UI.ChromePath,
				Width:      cfg.UI.Width,
				Height:     cfg.UI.Height,
				Headless:   headless,
			})
			if err != nil {
				return err
			}
			defer win.Close()
			st.bridge.SetWindow(win)

			select {
			case <-win.Done():
				logger.Info("window closed")
			case <-ctx.Done():
				logger.Info("shutting down")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "development mode: serve on the dev URL and open dev tools")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a visible window")
	return cmd
}
