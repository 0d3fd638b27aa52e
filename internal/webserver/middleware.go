package webserver

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/klauspost/compress/gzhttp"

	"github.com/microsoft/evallabel/internal/utils"
	"github.com/microsoft/evallabel/internal/webapi"
)

// withMiddleware wraps the mux with request logging, optional CORS and gzip.
// Gzip sits outermost so the logged status is the handler's own.
func withMiddleware(mux http.Handler, cfg Config) http.Handler {
	h := logRequests(cfg.Logger, mux)
	if len(cfg.AllowedOrigins) > 0 {
		h = webapi.CORSMiddleware(h, cfg.AllowedOrigins...)
	}
	return gzhttp.GzipHandler(h)
}

// logRequests logs every request. Successful ones go out at debug level,
// client and server errors at warn and error.
func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		req := utils.Request{
			Method:  r.Method,
			Path:    r.URL.Path,
			Status:  m.Code,
			Elapsed: m.Duration,
		}
		if c, err := r.Cookie(webapi.SessionCookie); err == nil {
			req.Session = utils.Ptr(c.Value)
		}

		if level := utils.StatusLevel(m.Code); level > slog.LevelDebug {
			logger.Log(r.Context(), level, "Request failed",
				"method", req.Method, "path", req.Path, "status", req.Status, "elapsed", req.Elapsed)
			return
		}
		utils.RequestToSlog(logger, req)
	})
}
