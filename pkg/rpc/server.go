// Package rpc implements the control channel between dedupctl and the
// dedup worker: newline-delimited JSON request/response pairs over a
// persistent TCP connection.
//
// The wire format is a minimal envelope. A request carries a method name
// in "Service.Method" form, a caller-chosen correlation id, and raw
// params; the response echoes the id and carries either a data payload
// or an error string.
//
// Server side:
//
//	s := rpc.NewServer()
//	s.Register("Dedup.TriggerRun", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var trigger wire.TriggerRunRequest
//	    json.Unmarshal(req, &trigger)
//	    // ... start the run ...
//	    return &wire.TriggerRunResponse{...}, nil
//	})
//	s.Serve(":7600")
//
// Client side:
//
//	c, _ := rpc.Dial("localhost:7600")
//	var resp wire.TriggerRunResponse
//	c.Call("Dedup.TriggerRun", &wire.TriggerRunRequest{}, &resp)
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc processes a single RPC request. The returned value is
// JSON-encoded into the response payload.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the client-to-server envelope.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the server-to-client envelope. Exactly one of Data or
// Error is set.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Server accepts TCP connections and dispatches decoded requests to
// registered handlers. Each connection is served by its own goroutine;
// requests on a single connection are handled in order.
type Server struct {
	mu       sync.RWMutex
	methods  map[string]HandlerFunc
	listener net.Listener
	log      *slog.Logger
	conns    sync.WaitGroup
	closing  chan struct{}
}

// NewServer returns a server with no methods registered.
func NewServer() *Server {
	return &Server{
		methods: make(map[string]HandlerFunc),
		log:     slog.Default().With("component", "rpc-server"),
		closing: make(chan struct{}),
	}
}

// Register binds handler to method. Registering the same method twice
// replaces the earlier handler.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	s.methods[method] = handler
	s.mu.Unlock()
	s.log.Debug("method registered", "method", method)
}

// Serve listens on addr and blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Info("rpc server listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
			}
			s.log.Error("accept failed", "error", err)
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(conn)
		}()
	}
}

// serveConn reads requests off one connection until it closes.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(&req)
		if err := enc.Encode(resp); err != nil {
			s.log.Error("response write failed", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req *Request) Response {
	s.mu.RLock()
	handler, ok := s.methods[req.Method]
	s.mu.RUnlock()

	if !ok {
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	data, err := handler(context.Background(), req.Params)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return Response{ID: req.ID, Error: fmt.Sprintf("encoding response: %v", err)}
	}
	return Response{ID: req.ID, Data: payload}
}

// MethodCount reports how many methods are registered.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.methods)
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	close(s.closing)
	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	s.log.Info("rpc server stopped")
}
