package wsnotify

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/nanolattice/nanod/nlog"
)

type serverLogger interface {
	Warnf(format string, args ...interface{})
}

// Server is a standalone HTTP server exposing a Hub's upgrade endpoint,
// matching the rpc.Server start/stop shape so cmd/node wires the two
// identically.
type Server struct {
	hub  *Hub
	addr string
	log  serverLogger
	srv  *http.Server
	ln   net.Listener
}

// NewServer creates a Server on addr serving hub's websocket.Handler at "/".
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.Handle("/", hub.Handler())
	return &Server{
		hub:  hub,
		addr: addr,
		log:  nlog.For("wsnotify"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the port synchronously then serves upgrades in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Warnf("server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listener's address. Useful when started on ":0".
func (s *Server) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
