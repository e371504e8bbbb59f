package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/jwalitptl/clinic-api/internal/config"
)

func corsOptions(cfg config.CORSConfig) cors.Options {
	opts := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: cfg.AllowedMethods,
		AllowedHeaders: cfg.AllowedHeaders,
		ExposedHeaders: []string{HeaderXRequestID},
		MaxAge:         86400,
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderXRequestID}
	}
	// Tokens travel in the Authorization header, never in cookies.
	opts.AllowCredentials = false
	return opts
}

// CORS adapts rs/cors to gin. Preflight requests are answered here and not passed on.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	handler := cors.New(corsOptions(cfg))

	return func(c *gin.Context) {
		handler.HandlerFunc(c.Writer, c.Request)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
