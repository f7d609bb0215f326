// Package security hardens the monitor's HTTP responses. The dashboard is
// server-rendered HTML with inline styles and no scripts; everything under
// the API prefixes is JSON and gets a stricter policy.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	dashboardCSP = "default-src 'self'; script-src 'none'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'"
	apiCSP       = "default-src 'none'; frame-ancestors 'none'"
)

// DefaultAPIPrefixes are the JSON surfaces of the server.
var DefaultAPIPrefixes = []string{"/v1", "/rpc", "/health", "/metrics"}

// Headers sets the hardening headers on every response. Responses under
// apiPrefixes also get the JSON policy and are marked uncacheable, since
// their numbers change as soon as a load completes.
func Headers(apiPrefixes ...string) gin.HandlerFunc {
	if len(apiPrefixes) == 0 {
		apiPrefixes = DefaultAPIPrefixes
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if hasPrefix(c.Request.URL.Path, apiPrefixes) {
			h.Set("Content-Security-Policy", apiCSP)
			h.Set("Cache-Control", "no-store")
		} else {
			h.Set("Content-Security-Policy", dashboardCSP)
		}
		c.Next()
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// CORS lets browser clients on allowedOrigins call the read-only API. "*"
// allows any origin and is answered with a literal "*" so responses stay
// cacheable across origins. Preflight requests are answered directly.
func CORS(allowedOrigins ...string) gin.HandlerFunc {
	anyOrigin := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			switch {
			case anyOrigin:
				c.Header("Access-Control-Allow-Origin", "*")
			case ok:
				c.Header("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}

		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""
		if preflight {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
