package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fundvault/core"
	"fundvault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server exposes the node over JSON-RPC 2.0 plus a Prometheus metrics
// endpoint.
type Server struct {
	node *core.Node
}

func NewServer(node *core.Node) *Server {
	return &Server{node: node}
}

// Router builds the HTTP routing surface: the JSON-RPC endpoint at / and
// Prometheus metrics at /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, errorResponse(nil, codeParseError, "unable to read request body"))
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, errorResponse(nil, codeParseError, "invalid JSON"))
		return
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		writeResponse(w, errorResponse(req.ID, codeInvalidRequest, "invalid JSON-RPC request"))
		return
	}

	started := time.Now()
	resp := s.dispatch(&req)
	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	observability.RPCMetrics().Observe(req.Method, outcome, time.Since(started))
	writeResponse(w, resp)
}

func (s *Server) dispatch(req *RPCRequest) RPCResponse {
	switch req.Method {
	case "fv_sendTransaction":
		return s.handleSendTransaction(req)
	case "fv_getAmountFunded":
		return s.handleGetAmountFunded(req)
	case "fv_getFunder":
		return s.handleGetFunder(req)
	case "fv_getFunderCount":
		return s.handleGetFunderCount(req)
	case "fv_getOwner":
		return s.handleGetOwner(req)
	case "fv_getFeedVersion":
		return s.handleGetFeedVersion(req)
	case "fv_getHeldBalance":
		return s.handleGetHeldBalance(req)
	case "fv_getBalance":
		return s.handleGetBalance(req)
	case "fv_getEvents":
		return s.handleGetEvents(req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found")
	}
}

func resultResponse(id interface{}, result interface{}) RPCResponse {
	return RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func errorResponse(id interface{}, code int, message string) RPCResponse {
	return RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}

func writeResponse(w http.ResponseWriter, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
