package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type SecurityHeadersConfig struct {
	HSTS       bool
	HSTSMaxAge int
}

// SecurityHeaders sets the headers every JSON response carries. Responses may contain
// clinical data, so nothing is cacheable.
func SecurityHeaders(cfg SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if cfg.HSTS {
		maxAge := cfg.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 31536000
		}
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", maxAge)
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
