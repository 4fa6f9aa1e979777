// Package webui serves the local capture/upload screen
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"pkt.systems/pslog"

	"github.com/menta2k/isitai/pkg/render"
	"github.com/menta2k/isitai/pkg/workflow"
)

//go:embed assets/*
var embeddedAssets embed.FS

var (
	assetsFS  fs.FS
	indexTmpl = template.Must(template.ParseFS(embeddedAssets, "assets/index.html.tmpl"))
)

func init() {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = embeddedAssets
		return
	}
	assetsFS = sub
}

// Workflow is the part of workflow.Controller the UI drives
type Workflow interface {
	State() workflow.State
	SelectFile(ctx context.Context, name string, data []byte) error
	Submit(ctx context.Context) error
	Capture(ctx context.Context) error
}

// Config configures the UI server
type Config struct {
	// MaxUploadBytes caps the multipart body, 0 means 32 MiB
	MaxUploadBytes int64
	// CaptureEnabled hides the snipping button when false
	CaptureEnabled bool
	Logger         pslog.Logger
}

// Server renders the workflow state and accepts user actions
type Server struct {
	wf     Workflow
	config Config
}

// NewServer constructs a UI server
func NewServer(wf Workflow, config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 32 << 20
	}
	return &Server{wf: wf, config: config}
}

// Handler returns an http.Handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS))))
	mux.HandleFunc("/upload", s.post(s.handleUpload))
	mux.HandleFunc("/submit", s.post(s.handleSubmit))
	mux.HandleFunc("/snip", s.post(s.handleSnip))
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withRequestLogging(mux, s.config.Logger)
}

type page struct {
	render.View
	PreviewURL     template.URL
	Flash          string
	CaptureEnabled bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := render.Build(s.wf.State())
	// the preview is produced by the image processor, always a base64 image data URI
	preview := template.URL(view.Preview)
	data := page{
		View:           view,
		PreviewURL:     preview,
		Flash:          r.URL.Query().Get("flash"),
		CaptureEnabled: s.config.CaptureEnabled,
	}
	if data.Flash == view.Notice {
		data.Flash = ""
	}

	var buf strings.Builder
	if err := indexTmpl.Execute(&buf, data); err != nil {
		pslog.Ctx(r.Context()).Error("render index failed", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, buf.String())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, render.Build(s.wf.State()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return fmt.Errorf("no image in upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	return s.wf.SelectFile(r.Context(), header.Filename, data)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) error {
	return s.wf.Submit(r.Context())
}

func (s *Server) handleSnip(w http.ResponseWriter, r *http.Request) error {
	if !s.config.CaptureEnabled {
		return errors.New("screen capture is unavailable")
	}
	return s.wf.Capture(r.Context())
}

// post wraps an action: browsers are redirected back to the page, JSON
// clients get the new view.
func (s *Server) post(action func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if !sameOrigin(r) {
			pslog.Ctx(r.Context()).Warn("cross-origin action refused",
				"path", r.URL.Path, "origin", r.Header.Get("Origin"), "fetch_site", r.Header.Get("Sec-Fetch-Site"))
			writeError(w, http.StatusForbidden, errCrossOrigin)
			return
		}

		err := action(w, r)
		if err != nil {
			pslog.Ctx(r.Context()).Warn("action failed", "path", r.URL.Path, "err", err)
		}

		if wantsJSON(r) {
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, render.Build(s.wf.State()))
			return
		}

		target := "/"
		if err != nil {
			target += "?" + url.Values{"flash": {err.Error()}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

var errCrossOrigin = errors.New("cross-origin request refused")

// sameOrigin rejects actions posted by pages of another origin. Requests
// without browser origin headers (CLI clients, tests) pass.
func sameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
