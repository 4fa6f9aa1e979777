package capture

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/types"
)

// ErrNoImage is the failure reason reported when the clipboard holds no image after a capture
const ErrNoImage = "No image in clipboard"

// Window is the application window the bridge hides while the user captures the screen
type Window interface {
	Minimize(ctx context.Context) error
	Restore(ctx context.Context) error
	Focus(ctx context.Context) error
	Destroyed() bool
}

// Clipboard reads the system clipboard's image slot. An empty slot yields nil, nil.
type Clipboard interface {
	ReadImage() ([]byte, error)
}

// Launcher starts an external process without waiting for it to exit
type Launcher interface {
	Launch(ctx context.Context, name string, args ...string) error
}

// Tool describes the interactive capture utility of one platform
type Tool struct {
	Command string
	Args    []string
	Settle  time.Duration
}

// DefaultTools maps GOOS to its built-in region capture utility
var DefaultTools = map[string]Tool{
	"windows": {Command: "cmd", Args: []string{"/c", "start", "ms-screenclip:"}, Settle: 3000 * time.Millisecond},
	"darwin":  {Command: "screencapture", Args: []string{"-i", "-c"}, Settle: 1000 * time.Millisecond},
}

// Bridge runs the OS capture utility and returns the resulting clipboard image.
// It never returns an error: every failure is reported as a failed CaptureOutcome.
type Bridge struct {
	mu        sync.Mutex
	window    Window
	clipboard Clipboard
	launcher  Launcher
	processor *processing.Processor
	tools     map[string]Tool
	goos      string
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option customises a Bridge
type Option func(*Bridge)

// WithLauncher replaces the process launcher
func WithLauncher(l Launcher) Option {
	return func(b *Bridge) { b.launcher = l }
}

// WithProcessor replaces the image processor used to encode clipboard images
func WithProcessor(p *processing.Processor) Option {
	return func(b *Bridge) { b.processor = p }
}

// WithPlatform overrides the detected GOOS
func WithPlatform(goos string) Option {
	return func(b *Bridge) { b.goos = goos }
}

// WithTools overrides the capture utility table
func WithTools(tools map[string]Tool) Option {
	return func(b *Bridge) { b.tools = tools }
}

// WithSleep replaces the settle-delay wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bridge) { b.sleep = sleep }
}

// New creates a bridge reading from the given clipboard
func New(clipboard Clipboard, opts ...Option) *Bridge {
	b := &Bridge{
		clipboard: clipboard,
		launcher:  ExecLauncher{},
		processor: processing.NewProcessor(),
		tools:     DefaultTools,
		goos:      runtime.GOOS,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetWindow attaches the main application window. A nil window disables minimise/restore.
func (b *Bridge) SetWindow(w Window) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window = w
}

// CaptureScreenshot minimises the window, runs the platform capture utility,
// waits the settle delay, restores the window and reads the clipboard image.
// Concurrent calls are serialised.
func (b *Bridge) CaptureScreenshot(ctx context.Context) (outcome types.CaptureOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := pslog.Ctx(ctx).With("platform", b.goos)
	defer func() {
		if r := recover(); r != nil {
			log.Error("screenshot capture panicked", "panic", r)
			outcome = types.CaptureFailed(fmt.Sprint(r))
		}
	}()

	tool, ok := b.tools[b.goos]
	if !ok {
		log.Warn("screenshot capture unsupported")
		return types.CaptureFailed(fmt.Sprintf("screen capture is not supported on %s", b.goos))
	}

	restored := true
	if w := b.liveWindow(); w != nil {
		if err := w.Minimize(ctx); err != nil {
			log.Debug("window minimize failed", "err", err)
		}
		restored = false
		defer func() {
			if !restored {
				b.restore(ctx, log)
			}
		}()
	}

	log.Info("screenshot tool started", "command", tool.Command)
	if err := b.launcher.Launch(ctx, tool.Command, tool.Args...); err != nil {
		log.Warn("screenshot tool failed", "err", err)
		return types.CaptureFailed(err.Error())
	}

	if err := b.sleep(ctx, tool.Settle); err != nil {
		return types.CaptureFailed(err.Error())
	}

	if !restored {
		b.restore(ctx, log)
		restored = true
	}

	data, err := b.clipboard.ReadImage()
	if err != nil {
		log.Warn("clipboard read failed", "err", err)
		return types.CaptureFailed(err.Error())
	}
	if len(data) == 0 {
		return types.CaptureFailed(ErrNoImage)
	}

	img, err := b.processor.PrepareCapture(data)
	if err != nil {
		return types.CaptureFailed(err.Error())
	}
	log.Info("screenshot captured", "width", img.Width, "height", img.Height)
	return types.CaptureSucceeded(img)
}

func (b *Bridge) liveWindow() Window {
	if b.window == nil || b.window.Destroyed() {
		return nil
	}
	return b.window
}

func (b *Bridge) restore(ctx context.Context, log pslog.Logger) {
	w := b.liveWindow()
	if w == nil {
		return
	}
	if err := w.Restore(ctx); err != nil {
		log.Debug("window restore failed", "err", err)
	}
	if err := w.Focus(ctx); err != nil {
		log.Debug("window focus failed", "err", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
