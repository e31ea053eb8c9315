package http

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewServer returns a server whose request contexts derive from base, so
// cancelling base ends long-lived requests such as notification streams
// and lets Shutdown finish.
func NewServer(addr string, h http.Handler, base context.Context) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}
