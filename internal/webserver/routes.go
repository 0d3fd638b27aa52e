package webserver

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microsoft/evallabel/internal/webapi"
)

// registerRoutes sets up the API, the pages and the static assets.
func registerRoutes(mux *http.ServeMux, h *webapi.Handlers, cfg Config) error {
	h.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	p, err := newPages(h, cfg.API.Project.Labelling.Instructions, cfg.Logger)
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /{$}", p.handleLabelling)
	mux.HandleFunc("GET /analytics", p.handleAnalytics)

	static, err := fs.Sub(assets, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub filesystem for static assets: %w", err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	return nil
}
