// Package shell runs the desktop window: a Chrome app-mode window driven over
// the DevTools protocol. It only shows the local UI; every other navigation is
// cancelled and handed to the system handler.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"pkt.systems/pslog"

	"github.com/menta2k/isitai/pkg/navigation"
)

// ErrClosed is returned by window operations after the browser has exited
var ErrClosed = errors.New("window closed")

const maxReloads = 30

// Config describes the window
type Config struct {
	// URL is the first page loaded, it must be allowed by Policy
	URL        string
	Policy     *navigation.Policy
	Opener     navigation.Opener
	DevMode    bool
	ChromePath string
	Width      int
	Height     int
	Headless   bool
}

// Window is an open application window
type Window struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	guard       navigation.Guard
	opener      navigation.Opener
	dev         bool
	self        target.ID
	destroyed   atomic.Bool
	reloads     atomic.Int32
	closeOnce   sync.Once
}

// Open launches the browser and loads cfg.URL
func Open(parent context.Context, cfg Config) (*Window, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("navigation policy is required")
	}
	if cfg.Policy.Decide(cfg.URL) != navigation.Allow {
		return nil, fmt.Errorf("start URL %s is outside %s", cfg.URL, cfg.Policy.Origin())
	}
	if cfg.Opener == nil {
		cfg.Opener = navigation.SystemOpener{}
	}

	log := pslog.Ctx(parent)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(cfg)...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			log.Debug("devtools", "msg", fmt.Sprintf(format, args...))
		}),
	)

	w := &Window{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		guard:       navigation.Guard{Policy: cfg.Policy, Opener: cfg.Opener},
		opener:      cfg.Opener,
		dev:         cfg.DevMode,
	}

	// start the browser and attach to the app page
	if err := chromedp.Run(ctx); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	w.self = chromedp.FromContext(ctx).Target.TargetID

	chromedp.ListenTarget(ctx, w.onTargetEvent)
	chromedp.ListenBrowser(ctx, w.onBrowserEvent)
	go func() {
		<-ctx.Done()
		w.destroyed.Store(true)
	}()

	actions := []chromedp.Action{
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			ResourceType: network.ResourceTypeDocument,
			RequestStage: fetch.RequestStageRequest,
		}}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			b := chromedp.FromContext(ctx).Browser
			return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, b))
		}),
	}
	if cfg.DevMode {
		actions = append(actions, network.Enable())
	}
	actions = append(actions, chromedp.Navigate(cfg.URL))

	if err := chromedp.Run(ctx, actions...); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to load %s: %w", cfg.URL, err)
	}
	log.Info("window opened", "url", cfg.URL, "mode", cfg.Policy.Mode())
	return w, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range flags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = 800, 600
	}
	return append(opts, chromedp.WindowSize(w, h))
}

func flags(cfg Config) map[string]any {
	f := map[string]any{
		"headless":                       cfg.Headless,
		"app":                            cfg.URL,
		"hide-scrollbars":                false,
		"disable-popup-blocking":         false,
		"disable-session-crashed-bubble": true,
	}
	if cfg.DevMode {
		f["auto-open-devtools-for-tabs"] = true
	}
	return f
}

// Done is closed once the browser has exited or Close was called
func (w *Window) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Close shuts the browser down
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		w.destroyed.Store(true)
		w.cancel()
		w.allocCancel()
	})
}

// Destroyed reports whether the window is gone
func (w *Window) Destroyed() bool {
	return w.destroyed.Load()
}

// Minimize hides the window
func (w *Window) Minimize(ctx context.Context) error {
	return w.setState(ctx, browser.WindowStateMinimized)
}

// Restore shows the window again
func (w *Window) Restore(ctx context.Context) error {
	return w.setState(ctx, browser.WindowStateNormal)
}

// Focus brings the window to the front
func (w *Window) Focus(ctx context.Context) error {
	return w.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

func (w *Window) setState(ctx context.Context, state browser.WindowState) error {
	return w.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return browser.SetWindowBounds(id, &browser.Bounds{WindowState: state}).Do(ctx)
	}))
}

// run executes actions on the window's tab, giving up when either ctx ends
func (w *Window) run(ctx context.Context, actions ...chromedp.Action) error {
	if w.Destroyed() {
		return ErrClosed
	}
	tab, cancel := context.WithCancel(w.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tab, actions...)
}

func (w *Window) onTargetEvent(ev any) {
	switch ev := ev.(type) {
	case *fetch.EventRequestPaused:
		go w.resolveRequest(ev)
	case *network.EventLoadingFailed:
		if w.dev && shouldReload(ev) {
			go w.reload()
		}
	case *inspector.EventDetached:
		pslog.Ctx(w.ctx).Info("window detached", "reason", ev.Reason)
		w.Close()
	}
}

func (w *Window) onBrowserEvent(ev any) {
	switch ev := ev.(type) {
	case *target.EventTargetCreated:
		if isPopup(ev.TargetInfo, w.self) {
			go w.closePopup(ev.TargetInfo)
		}
	case *target.EventTargetDestroyed:
		if ev.TargetID == w.self {
			w.Close()
		}
	}
}

// resolveRequest lets an intercepted document load continue or fails it
func (w *Window) resolveRequest(ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(w.ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(w.ctx, c.Target)

	var err error
	if w.guard.Check(w.ctx, ev.Request.URL) {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	} else {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	}
	if err != nil && !w.Destroyed() {
		pslog.Ctx(w.ctx).Debug("resolve intercepted request failed", "url", ev.Request.URL, "err", err)
	}
}

// closePopup hands a window.open target to the system handler and closes it
func (w *Window) closePopup(info *target.Info) {
	log := pslog.Ctx(w.ctx).With("url", info.URL)
	if u := info.URL; u != "" && !strings.HasPrefix(u, "about:") {
		if err := w.opener.Open(w.ctx, u); err != nil {
			log.Warn("external open failed", "err", err)
		}
	}
	c := chromedp.FromContext(w.ctx)
	if c == nil || c.Browser == nil {
		return
	}
	if err := target.CloseTarget(info.TargetID).Do(cdp.WithExecutor(w.ctx, c.Browser)); err != nil {
		log.Debug("close popup failed", "err", err)
		return
	}
	log.Info("popup redirected to system handler")
}

func (w *Window) reload() {
	n := w.reloads.Add(1)
	if n > maxReloads {
		return
	}
	select {
	case <-time.After(time.Second):
	case <-w.ctx.Done():
		return
	}
	pslog.Ctx(w.ctx).Info("reloading after failed load", "attempt", n)
	if err := chromedp.Run(w.ctx, chromedp.Reload()); err != nil && !w.Destroyed() {
		pslog.Ctx(w.ctx).Warn("reload failed", "err", err)
	}
}

func isPopup(info *target.Info, self target.ID) bool {
	return info != nil && info.Type == "page" && info.TargetID != self && info.OpenerID == self
}

// shouldReload reports whether a failed load is a dev server hiccup rather
// than a navigation the window cancelled itself
func shouldReload(ev *network.EventLoadingFailed) bool {
	if ev.Type != network.ResourceTypeDocument || ev.Canceled || ev.BlockedReason != "" {
		return false
	}
	return !strings.Contains(ev.ErrorText, "ERR_BLOCKED_BY_CLIENT") && !strings.Contains(ev.ErrorText, "ERR_ABORTED")
}
