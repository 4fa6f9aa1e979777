package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"pkt.systems/pslog"

	"github.com/menta2k/isitai/internal/config"
	"github.com/menta2k/isitai/internal/webui"
	"github.com/menta2k/isitai/pkg/capture"
	"github.com/menta2k/isitai/pkg/channel"
	"github.com/menta2k/isitai/pkg/client"
	"github.com/menta2k/isitai/pkg/inference"
	"github.com/menta2k/isitai/pkg/ollama"
	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/workflow"
)

func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	return config.Load(path)
}

func newClassifier(cfg *config.Config) (client.Classifier, error) {
	switch cfg.Inference.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Inference.OllamaURL, cfg.Inference.ModelID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	default:
		c, err := inference.NewClient(cfg.Inference.Endpoint, inference.WithTimeout(cfg.Timeout()))
		if err != nil {
			return nil, fmt.Errorf("failed to create inference client: %w", err)
		}
		return c, nil
	}
}

func newBridge(cfg *config.Config, processor *processing.Processor) *capture.Bridge {
	return capture.New(&capture.SystemClipboard{},
		capture.WithTools(cfg.CaptureTools()),
		capture.WithProcessor(processor),
	)
}

// server is an HTTP server bound to a listener
type server struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

func listen(ctx context.Context, name, addr string, handler http.Handler) (*server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s on %s: %w", name, addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s := &server{name: name, srv: srv, ln: ln}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pslog.Ctx(ctx).Error("server stopped", "server", name, "err", err)
		}
	}()
	pslog.Ctx(ctx).Info("server listening", "server", name, "addr", ln.Addr().String())
	return s, nil
}

func (s *server) URL() string {
	return "http://" + s.ln.Addr().String()
}

func (s *server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

// stack is the running privileged side plus the UI side
type stack struct {
	bridge     *capture.Bridge
	channel    *server
	ui         *server
	controller *workflow.Controller
}

// startStack starts the capture channel and the web UI. uiAddr overrides the configured address.
func startStack(ctx context.Context, cfg *config.Config, uiAddr string) (*stack, error) {
	log := pslog.Ctx(ctx)
	processor := processing.NewProcessorWithConfig(cfg.ProcessorConfig())

	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Inference.APIToken == "" && cfg.Inference.Backend == config.BackendHuggingFace {
		log.Warn("no API token configured, set HF_API_TOKEN to classify images")
	}

	// privileged side
	bridge := newBridge(cfg, processor)
	secret := channel.NewSecret()
	chSrv, err := listen(ctx, "capture channel", cfg.Capture.ChannelAddr, channel.Handler(bridge, secret))
	if err != nil {
		return nil, err
	}

	// UI side, it only sees the channel client
	snipper := channel.NewClient(chSrv.URL(), secret, captureTimeout(cfg))
	controller := workflow.New(workflow.Config{
		Classifier: classifier,
		Snipper:    snipper,
		Processor:  processor,
		APIToken:   cfg.Inference.APIToken,
	})
	var uploadLimit int64
	if n := cfg.Processing.MaxUploadBytes; n > 0 {
		// room for the multipart envelope
		uploadLimit = int64(n) + 1<<20
	}
	ui := webui.NewServer(controller, webui.Config{
		MaxUploadBytes: uploadLimit,
		CaptureEnabled: true,
		Logger:         log,
	})
	if uiAddr == "" {
		uiAddr = cfg.UI.Addr
	}
	uiSrv, err := listen(ctx, "ui", uiAddr, ui.Handler())
	if err != nil {
		chSrv.shutdown()
		return nil, err
	}

	return &stack{bridge: bridge, channel: chSrv, ui: uiSrv, controller: controller}, nil
}

func (s *stack) stop(ctx context.Context) {
	s.ui.shutdown()
	s.channel.shutdown()

	done := make(chan struct{})
	go func() {
		s.controller.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		pslog.Ctx(ctx).Warn("classification still running at shutdown")
	}
}

// captureTimeout leaves room for the interactive selection on top of the settle delay
func captureTimeout(cfg *config.Config) time.Duration {
	longest := max(cfg.Capture.WindowsSettleMS, cfg.Capture.DarwinSettleMS)
	return time.Duration(longest)*time.Millisecond + 2*time.Minute
}
