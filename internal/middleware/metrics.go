package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so scanners
// cannot blow up label cardinality with arbitrary paths.
const unmatchedRoute = "unmatched"

// Metrics observes every request under its route template. Paths listed in
// skip (for example the scrape endpoint) are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
