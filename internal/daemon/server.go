// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/stache/internal/cache"
	"github.com/dotandev/stache/internal/logger"
	"github.com/dotandev/stache/internal/mustache"
	"github.com/dotandev/stache/internal/render"
	"github.com/dotandev/stache/internal/store"
	"github.com/dotandev/stache/internal/telemetry"
)

// Server represents the JSON-RPC daemon server
type Server struct {
	root      string
	authToken string
	programs  *cache.Manager
	history   *store.Store
}

// Config holds daemon configuration
type Config struct {
	// TemplateRoot anchors every template path a client may request.
	TemplateRoot string
	AuthToken    string
	CacheDir     string
	CacheMax     int64
	History      *store.Store
}

// RenderRequest represents the template.TemplateRender RPC request
type RenderRequest struct {
	// Template is a path relative to the daemon's template root.
	Template string `json:"template"`
	// Data is the JSON scope document the template renders against.
	Data json.RawMessage `json:"data"`
	// Cache reuses compiled programs across requests for the same source.
	Cache bool `json:"cache"`
}

// RenderResponse represents the template.TemplateRender RPC response
type RenderResponse struct {
	Template   string `json:"template"`
	Output     string `json:"output"`
	Cached     bool   `json:"cached"`
	DurationMS int64  `json:"duration_ms"`
}

// CheckRequest represents the template.TemplateCheck RPC request
type CheckRequest struct {
	Template string `json:"template"`
}

// CheckResponse represents the template.TemplateCheck RPC response
type CheckResponse struct {
	Template     string   `json:"template"`
	Instructions int      `json:"instructions"`
	DataBytes    int      `json:"data_bytes"`
	Partials     []string `json:"partials"`
}

// NewServer creates a new JSON-RPC server
func NewServer(config Config) (*Server, error) {
	root := config.TemplateRoot
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template root: %w", err)
	}
	return &Server{
		root:      root,
		authToken: config.AuthToken,
		programs:  cache.NewManager(config.CacheDir, config.CacheMax),
		history:   config.History,
	}, nil
}

// authenticate validates the authorization token
func (s *Server) authenticate(r *http.Request) bool {
	if s.authToken == "" {
		return true // No auth required
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == s.authToken
	}
	return auth == s.authToken
}

// resolve anchors a client-supplied template path under the daemon root and
// rejects traversal outside it.
func (s *Server) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("template path required")
	}
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("template path escapes root")
	}
	return full, nil
}

// compile loads a template through the program cache when requested.
func (s *Server) compile(path string, cached bool) (*mustache.Program, bool, string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, false, "", fmt.Errorf("failed to read template: %w", err)
	}
	key := cache.Key(src)
	if cached {
		if prog, ok := s.programs.Load(key); ok {
			return prog, true, key, nil
		}
	}
	prog, err := mustache.CompileFile(path)
	if err != nil {
		return nil, false, key, err
	}
	if cached {
		if err := s.programs.Store(key, prog); err != nil {
			logger.Logger.Warn("Failed to cache compiled program", "path", path, "error", err)
		}
	}
	return prog, false, key, nil
}

// TemplateRender handles template.TemplateRender RPC calls
func (s *Server) TemplateRender(r *http.Request, req *RenderRequest, resp *RenderResponse) error {
	if !s.authenticate(r) {
		return fmt.Errorf("unauthorized")
	}

	ctx := r.Context()
	tracer := telemetry.GetTracer()
	_, span := tracer.Start(ctx, "rpc_template_render")
	span.SetAttributes(attribute.String("template.path", req.Template))
	defer span.End()

	logger.Logger.Info("Processing template_render RPC", "template", req.Template)

	full, err := s.resolve(req.Template)
	if err != nil {
		span.RecordError(err)
		return err
	}

	started := time.Now()
	prog, hit, key, err := s.compile(full, req.Cache)
	if err != nil {
		span.RecordError(err)
		s.record(req.Template, key, "compile_error", err, started, 0, false)
		return err
	}

	out, err := render.RenderJSON(prog, req.Data)
	if err != nil {
		span.RecordError(err)
		s.record(req.Template, key, "render_error", err, started, 0, hit)
		return err
	}

	*resp = RenderResponse{
		Template:   req.Template,
		Output:     out,
		Cached:     hit,
		DurationMS: time.Since(started).Milliseconds(),
	}
	s.record(req.Template, key, "ok", nil, started, int64(len(out)), hit)
	return nil
}

// TemplateCheck handles template.TemplateCheck RPC calls
func (s *Server) TemplateCheck(r *http.Request, req *CheckRequest, resp *CheckResponse) error {
	if !s.authenticate(r) {
		return fmt.Errorf("unauthorized")
	}

	ctx := r.Context()
	tracer := telemetry.GetTracer()
	_, span := tracer.Start(ctx, "rpc_template_check")
	span.SetAttributes(attribute.String("template.path", req.Template))
	defer span.End()

	full, err := s.resolve(req.Template)
	if err != nil {
		span.RecordError(err)
		return err
	}
	prog, err := mustache.CompileFile(full)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var partials []string
	for i, e := range prog.Templates() {
		if i == 0 {
			continue
		}
		partials = append(partials, e.Name)
	}
	*resp = CheckResponse{
		Template:     req.Template,
		Instructions: len(prog.Instructions()),
		DataBytes:    prog.DataLen(),
		Partials:     partials,
	}
	return nil
}

func (s *Server) record(template, key, status string, cause error, started time.Time, bytesOut int64, cached bool) {
	if s.history == nil {
		return
	}
	rec := &store.Render{
		Template:   template,
		SourceHash: key,
		Status:     status,
		DurationMS: time.Since(started).Milliseconds(),
		BytesOut:   bytesOut,
		Cached:     cached,
	}
	if cause != nil {
		rec.ErrorMsg = cause.Error()
	}
	if err := s.history.Save(rec); err != nil {
		logger.Logger.Warn("Failed to record render", "error", err)
	}
}

// Start starts the JSON-RPC server
func (s *Server) Start(ctx context.Context, port string) error {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")

	if err := server.RegisterService(s, "template"); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	logger.Logger.Info("Starting JSON-RPC server", "port", port, "root", s.root)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("Shutting down JSON-RPC server")
	return srv.Shutdown(context.Background())
}
