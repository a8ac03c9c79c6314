// Package httpserver builds the process's HTTP server. Tuning lives here so
// main stays declarative.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server. Read and write stay generous because artifact
// uploads arrive as multi-megabyte multiparts from mobile networks, and the
// memory blob backend streams those same bytes back out to the scorers.
// Per-request deadlines are the timeout middleware's job.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
		MaxHeaderBytes:    64 << 10,
	}
}
