// Package navigation decides which URLs the application window may load.
// Everything else is handed to the operating system's default handler.
package navigation

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"pkt.systems/pslog"
)

// DefaultDevOrigin is the UI origin allowed in development mode
const DefaultDevOrigin = "http://localhost:3000"

// Decision is the outcome of a navigation check
type Decision int

const (
	// Allow loads the URL in the window
	Allow Decision = iota
	// External cancels the navigation and opens the URL with the system handler
	External
	// Block cancels the navigation without opening anything
	Block
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case External:
		return "external"
	default:
		return "block"
	}
}

type origin struct {
	scheme string
	host   string
	port   string
}

// Policy allows exactly one origin
type Policy struct {
	allowed origin
	mode    string
}

// ForPackaged allows only the embedded UI server's origin
func ForPackaged(uiURL string) (*Policy, error) {
	return newPolicy("packaged", uiURL)
}

// ForDevelopment allows only the development server's origin, DefaultDevOrigin when empty
func ForDevelopment(devURL string) (*Policy, error) {
	if devURL == "" {
		devURL = DefaultDevOrigin
	}
	return newPolicy("development", devURL)
}

func newPolicy(mode, raw string) (*Policy, error) {
	o, err := parseOrigin(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s origin: %w", mode, err)
	}
	if o.scheme != "http" && o.scheme != "https" {
		return nil, fmt.Errorf("invalid %s origin %q: scheme must be http or https", mode, raw)
	}
	return &Policy{allowed: o, mode: mode}, nil
}

// Mode is "packaged" or "development"
func (p *Policy) Mode() string {
	return p.mode
}

// Origin returns the allowed origin as scheme://host:port
func (p *Policy) Origin() string {
	return p.allowed.scheme + "://" + net.JoinHostPort(p.allowed.host, p.allowed.port)
}

// Decide classifies a navigation target
func (p *Policy) Decide(target string) Decision {
	if target == "about:blank" {
		return Allow
	}

	o, err := parseOrigin(target)
	if err != nil {
		return Block
	}
	if o == p.allowed {
		return Allow
	}
	switch o.scheme {
	case "http", "https", "mailto":
		return External
	default:
		return Block
	}
}

func parseOrigin(raw string) (origin, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return origin{}, err
	}
	if u.Scheme == "" {
		return origin{}, fmt.Errorf("missing scheme in %q", raw)
	}
	o := origin{
		scheme: strings.ToLower(u.Scheme),
		host:   strings.ToLower(u.Hostname()),
		port:   u.Port(),
	}
	if o.port == "" {
		switch o.scheme {
		case "http":
			o.port = "80"
		case "https":
			o.port = "443"
		}
	}
	return o, nil
}

// Opener hands a URL to something outside the application window
type Opener interface {
	Open(ctx context.Context, target string) error
}

// SystemOpener opens URLs with the platform's default handler
type SystemOpener struct {
	GOOS string
}

// Command returns the process used to open target
func (o SystemOpener) Command(target string) (string, []string) {
	goos := o.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	case "darwin":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

// Open starts the default handler and returns once it has been launched.
// The handler keeps running after ctx is done.
func (o SystemOpener) Open(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args := o.Command(target)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Guard applies a Policy and forwards external targets to an Opener
type Guard struct {
	Policy *Policy
	Opener Opener
}

// Check reports whether target may load in the window. External targets are
// opened with the Opener, blocked ones are dropped.
func (g Guard) Check(ctx context.Context, target string) bool {
	log := pslog.Ctx(ctx).With("url", target, "mode", g.Policy.Mode())
	switch g.Policy.Decide(target) {
	case Allow:
		return true
	case External:
		log.Info("navigation redirected to system handler")
		if g.Opener != nil {
			if err := g.Opener.Open(ctx, target); err != nil {
				log.Warn("external open failed", "err", err)
			}
		}
		return false
	default:
		log.Warn("navigation blocked")
		return false
	}
}
