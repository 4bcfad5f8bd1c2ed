// Package webui serves the chat web interface: static assets under a
// configured base path, a JSON configuration document for the browser
// client, and a single-page-app index fallback. The handler is predicate
// guarded so it can be chained with sibling handlers.
package webui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/qidu/webot/internal/infra/logger"
)

// RouteHandler claims requests it can serve. Returning false passes the
// request to the next handler in the chain.
type RouteHandler interface {
	Handle(w http.ResponseWriter, r *http.Request) bool
}

// Chain composes route handlers first-handled-wins, answering 404 when
// none claims the request.
func Chain(handlers ...RouteHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range handlers {
			if h.Handle(w, r) {
				return
			}
		}
		http.NotFound(w, r)
	})
}

// ClientConfig is the document served at <basePath>/api/config. The
// gateway token is withheld unless exposure is explicitly enabled.
type ClientConfig struct {
	GatewayURL   string `json:"gatewayUrl"`
	GatewayToken string `json:"gatewayToken,omitempty"`
}

// Handler serves the web chat UI under a base path.
type Handler struct {
	basePath     string
	assetsDir    string
	gatewayURL   string
	gatewayToken string
	exposeToken  bool
	logger       *slog.Logger
}

// Options configures a Handler.
type Options struct {
	BasePath     string // e.g. "/chat"
	AssetsDir    string // directory holding index.html and static assets
	GatewayURL   string
	GatewayToken string
	// ExposeToken includes the raw gateway token in the config document.
	// Off by default: the token grants gateway access to anyone who can
	// reach this server.
	ExposeToken bool
}

// NewHandler creates a web UI handler.
func NewHandler(opts Options, log *slog.Logger) *Handler {
	basePath := strings.TrimSuffix(opts.BasePath, "/")
	if basePath == "" {
		basePath = "/"
	}
	return &Handler{
		basePath:     basePath,
		assetsDir:    opts.AssetsDir,
		gatewayURL:   opts.GatewayURL,
		gatewayToken: opts.GatewayToken,
		exposeToken:  opts.ExposeToken,
		logger:       logger.Component(log, "webui"),
	}
}

// Handle claims requests under the base path: the config and health API
// endpoints, static assets, and the SPA index fallback. Requests outside
// the base path are left for sibling handlers.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) bool {
	rel, ok := h.relativePath(r.URL.Path)
	if !ok {
		return false
	}

	switch rel {
	case "api/config":
		h.serveConfig(w)
	case "api/health":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	default:
		h.serveAsset(w, r, rel)
	}
	return true
}

// relativePath strips the base path, returning false for paths outside it.
func (h *Handler) relativePath(p string) (string, bool) {
	if h.basePath == "/" {
		return strings.TrimPrefix(path.Clean(p), "/"), true
	}
	if p != h.basePath && !strings.HasPrefix(p, h.basePath+"/") {
		return "", false
	}
	rel := strings.TrimPrefix(p, h.basePath)
	return strings.TrimPrefix(path.Clean("/"+rel), "/"), true
}

func (h *Handler) serveConfig(w http.ResponseWriter) {
	cfg := ClientConfig{GatewayURL: h.gatewayURL}
	if h.exposeToken {
		cfg.GatewayToken = h.gatewayToken
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Warn("writing config response", "error", err)
	}
}

// serveAsset serves a static file under the assets dir, falling back to
// the SPA index document for unknown paths.
func (h *Handler) serveAsset(w http.ResponseWriter, r *http.Request, rel string) {
	if rel == "" || rel == "." {
		rel = "index.html"
	}

	// path.Clean in relativePath already collapsed any "..", but the
	// containment check stays as the final word.
	full := filepath.Join(h.assetsDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, filepath.Clean(h.assetsDir)+string(os.PathSeparator)) &&
		full != filepath.Clean(h.assetsDir) {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		// SPA fallback: unknown client-side routes get the index page.
		index := filepath.Join(h.assetsDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
		return
	}
	http.ServeFile(w, r, full)
}
