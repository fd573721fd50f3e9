// Copyright (c) 2023 BVK Chaitanya

// Package httputil implements an http server with handlers that can be added
// and removed at runtime. It is used to serve the supervisor status.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bvk/rangebot/ctxutil"
	"github.com/google/uuid"
)

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	mutex      sync.Mutex
	nextID     int64
	servers    map[int64]*http.Server
	routes     map[string]http.Handler

	mux atomic.Pointer[http.ServeMux]
}

// New creates a http server.
func New(opts *Options) (*Server, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	s := &Server{
		opts:    *opts,
		servers: make(map[int64]*http.Server),
		routes:  make(map[string]http.Handler),
	}
	s.mux.Store(http.NewServeMux())
	return s, nil
}

// Close stops all listeners and waits for the serving goroutines to exit.
func (s *Server) Close() error {
	s.mutex.Lock()
	for id, svr := range s.servers {
		svr.Close()
		delete(s.servers, id)
	}
	s.mutex.Unlock()

	s.cg.Close()
	return nil
}

// StartTCP starts serving on the input address and returns after verifying
// that the server is responding. Zero port in the address is updated with the
// allocated port number.
func (s *Server) StartTCP(ctx context.Context, addr *net.TCPAddr) (id int64, status error) {
	if err := context.Cause(s.cg.Context()); err != nil {
		return -1, fmt.Errorf("http server is closed: %w", os.ErrClosed)
	}

	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return -1, err
	}
	defer func() {
		if status != nil {
			l.Close()
		}
	}()

	if addr.Port == 0 {
		laddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return -1, fmt.Errorf("created listener addr is not *net.TCPAddr type")
		}
		addr.Port = laddr.Port
	}

	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return s.cg.Context()
		},
	}
	defer func() {
		if status != nil {
			server.Close()
		}
	}()

	s.cg.Go(func(ctx context.Context) {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server failed", "addr", addr, "err", err)
		}
	})

	if err := s.waitReady(ctx, l.Addr().String()); err != nil {
		return -1, fmt.Errorf("http server on %s is not responding: %w", addr, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	id = s.nextID
	s.nextID++
	s.servers[id] = server
	return id, nil
}

// waitReady polls a temporary handler with a random path till the server at
// hostport responds or the check timeout expires.
func (s *Server) waitReady(ctx context.Context, hostport string) error {
	probePath := "/" + uuid.New().String()
	s.AddHandler(probePath, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer s.RemoveHandler(probePath)

	ctx, cancel := context.WithTimeout(ctx, s.opts.ServerCheckTimeout)
	defer cancel()

	client := &http.Client{Timeout: s.opts.ServerCheckTimeout}
	probeURL := (&url.URL{Scheme: "http", Host: hostport, Path: probePath}).String()
	probe := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("probe request returned http status %d", resp.StatusCode)
		}
		return nil
	}
	return ctxutil.Retry(ctx, s.opts.ServerCheckRetryInterval, probe)
}

// Stop closes the listener started by StartTCP.
func (s *Server) Stop(id int64) error {
	s.mutex.Lock()
	svr, ok := s.servers[id]
	delete(s.servers, id)
	s.mutex.Unlock()

	if !ok {
		return fmt.Errorf("http server %d not found: %w", id, os.ErrNotExist)
	}
	_ = svr.Close()
	return nil
}

// AddHandler adds or replaces the handler for a pattern.
func (s *Server) AddHandler(pattern string, handler http.Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.routes[pattern] = handler
	s.updateHandlerMux()
}

func (s *Server) RemoveHandler(pattern string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.routes[pattern]; !ok {
		return false
	}
	delete(s.routes, pattern)
	s.updateHandlerMux()
	return true
}

// updateHandlerMux replaces the request multiplexer. ServeMux doesn't support
// removing a pattern, so a new one is built for every change.
func (s *Server) updateHandlerMux() {
	m := http.NewServeMux()
	for pattern, h := range s.routes {
		m.Handle(pattern, h)
	}
	s.mux.Store(m)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}

// JSONHandler returns a GET handler that responds with the json encoding of
// the value returned by the input function.
func JSONHandler[T any](get func(ctx context.Context) (T, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		v, err := get(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			slog.WarnContext(r.Context(), "could not write json response", "path", r.URL.Path, "err", err)
		}
	})
}
