package capture

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"golang.design/x/clipboard"
)

// SystemClipboard reads images from the OS clipboard
type SystemClipboard struct {
	once    sync.Once
	initErr error
}

// ReadImage returns the clipboard image as PNG bytes, or nil when the image slot is empty
func (c *SystemClipboard) ReadImage() ([]byte, error) {
	c.once.Do(func() {
		c.initErr = clipboard.Init()
	})
	if c.initErr != nil {
		return nil, fmt.Errorf("clipboard unavailable: %w", c.initErr)
	}
	return clipboard.Read(clipboard.FmtImage), nil
}

// ExecLauncher starts processes with os/exec and reaps them in the background
type ExecLauncher struct{}

// Launch starts the command and returns once it is running.
// The process is not tied to ctx: the capture utility outlives the request that started it.
func (ExecLauncher) Launch(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
