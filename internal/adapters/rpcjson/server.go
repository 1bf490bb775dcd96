package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/buildorder"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/domain"
)

const (
	codeBadRequest    = 40000
	codeNotFound      = 40400
	codeConflict      = 40900
	codeUnprocessable = 42200
	codeInternal      = 50000
)

type Server struct {
	service  *application.BuildService
	logger   *slog.Logger
	listener net.Listener
	path     string
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Start listens on the unix socket at path and serves newline-delimited
// JSON-RPC 2.0 requests until Close is called.
func Start(path string, service *application.BuildService, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{service: service, logger: logger, listener: ln, path: path, ctx: ctx, cancel: cancel, conns: map[net.Conn]struct{}{}}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Close stops accepting, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	err := s.listener.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(s.ctx, req)
		if resp.Error != nil && resp.Error.Code == codeInternal {
			s.logger.ErrorContext(s.ctx, "rpc call failed", "method", req.Method, "error", resp.Error.Message)
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

type raceParams struct {
	Race  string   `json:"race"`
	Units []string `json:"units"`
}

type buildParams struct {
	Key   string `json:"key"`
	Unit  string `json:"unit"`
	Race  string `json:"race"`
	Limit int    `json:"limit"`
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "catalog.races":
		return result(req.ID, s.service.Races())
	case "catalog.entities":
		var p raceParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		items, err := s.service.Entities(p.Race)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, items)
	case "catalog.entity":
		var p struct {
			Name string `json:"name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.Entity(p.Name)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	case "orders.validate":
		var p raceParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.Validate(p.Race, p.Units)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	case "orders.tech":
		var p raceParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.Tech(p.Race, p.Units)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	case "builds.create":
		var p raceParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.CreateBuild(ctx, p.Race, p.Units)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	case "builds.list":
		var p buildParams
		if len(req.Params) > 0 && !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.ListBuilds(ctx, p.Race, p.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	case "builds.get", "builds.branch", "builds.features", "builds.tech", "builds.events":
		var p buildParams
		if !decodeParams(req.Params, &p) || strings.TrimSpace(p.Key) == "" {
			return invalidParams(req.ID)
		}
		v, err := s.buildQuery(ctx, req.Method, p)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	case "builds.add_unit":
		var p buildParams
		if !decodeParams(req.Params, &p) || strings.TrimSpace(p.Key) == "" || strings.TrimSpace(p.Unit) == "" {
			return invalidParams(req.ID)
		}
		v, err := s.service.AddUnit(ctx, p.Key, p.Unit)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, v)
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func (s *Server) buildQuery(ctx context.Context, method string, p buildParams) (any, error) {
	switch method {
	case "builds.get":
		return s.service.GetBuild(ctx, p.Key)
	case "builds.branch":
		return s.service.Branch(ctx, p.Key)
	case "builds.features":
		return s.service.Features(ctx, p.Key)
	case "builds.tech":
		return s.service.BuildTech(ctx, p.Key)
	default:
		return s.service.ListEvents(ctx, p.Key, p.Limit)
	}
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func result(id any, v any) response {
	return response{JSONRPC: "2.0", Result: v, ID: id}
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

func appError(id any, err error) response {
	var notMet *buildorder.RequirementsNotMetError
	if errors.As(err, &notMet) {
		return response{JSONRPC: "2.0", Error: &rpcError{
			Code:    codeUnprocessable,
			Message: err.Error(),
			Data:    map[string]any{"entity": notMet.Entity, "missing": notMet.Missing},
		}, ID: id}
	}
	var unknown *catalog.UnknownEntityError
	if errors.As(err, &unknown) {
		return response{JSONRPC: "2.0", Error: &rpcError{
			Code:    codeNotFound,
			Message: err.Error(),
			Data:    map[string]any{"entity": unknown.Name, "suggestions": unknown.Suggestions},
		}, ID: id}
	}

	switch {
	case errors.Is(err, catalog.ErrUnknownRace), errors.Is(err, domain.ErrNotFound):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeNotFound, Message: err.Error()}, ID: id}
	case errors.Is(err, domain.ErrBuildModified):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeConflict, Message: err.Error()}, ID: id}
	case errors.Is(err, domain.ErrEmptySequence), errors.Is(err, application.ErrInvalidInput):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeBadRequest, Message: err.Error()}, ID: id}
	}
	return internalError(id, err)
}

func internalError(id any, err error) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: codeInternal, Message: fmt.Sprintf("internal error: %v", err)}, ID: id}
}
