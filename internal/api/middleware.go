package api

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// loggingMiddleware logs one line per API request with method, path, status
// and latency.
func (s *Server) loggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	s.logger.Debug("Request handled",
		"method", ctx.Method(),
		"path", ctx.URL().Path,
		"status", ctx.Status(),
		"duration", time.Since(start),
	)
}
