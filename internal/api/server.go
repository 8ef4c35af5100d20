package api

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// NewServer wraps handler with CORS and the timeouts a slow upstream conversion needs.
// With no allowed origins every origin is accepted.
func NewServer(addr string, handler http.Handler, allowedOrigins []string) *http.Server {
	var c *cors.Cors
	if len(allowedOrigins) == 0 {
		c = cors.Default()
	} else {
		c = cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		})
	}
	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
