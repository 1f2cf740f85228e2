// Package ipc exposes the daemon's control socket: a unix socket
// speaking one JSON request and one JSON response per connection.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

// DefaultSocketPath is where the daemon listens when no path is given.
const DefaultSocketPath = "/tmp/gideon.sock"

// Request is one command from gideon-ctl.
type Request struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

// Response carries the command outcome back to the client.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler runs one command and returns its response.
type Handler func(Request) Response

// Server accepts control connections until closed.
type Server struct {
	ln   net.Listener
	path string
}

// StartServer listens on path and serves each connection with handler.
// Malformed requests get an error response without disturbing the
// accept loop.
func StartServer(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	srv := &Server{ln: ln, path: path}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			go srv.handle(conn, handler)
		}
	}()

	log.Info("Control socket up", "path", path)
	return srv, nil
}

func (s *Server) handle(conn net.Conn, handler Handler) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{Error: "malformed request"})
		return
	}
	resp := handler(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debug("Control reply failed", "err", err)
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

// Send connects to the daemon socket, issues req and waits for the
// response. The read is unbounded so slow commands like ask can finish.
func Send(path string, req Request) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read reply: %w", err)
	}
	return resp, nil
}
