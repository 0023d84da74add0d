package api

import (
	"net/http"
	"time"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// NewServer returns an http.Server listening on addr, or on the configured
// port when addr is empty.
func NewServer(cfg *config.Config, addr string, handler http.Handler) *http.Server {
	if addr == "" {
		addr = ":" + cfg.App.Port
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
