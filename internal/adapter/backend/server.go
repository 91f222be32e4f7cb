package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// Server exposes a Backend over JSON-RPC so domain services can run out of process.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *zap.Logger
	done      chan struct{}
}

// NewServer wraps b in a JSON-RPC server.
func NewServer(b Backend, logger *zap.Logger) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Backend", &Handler{backend: b}); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}
	return &Server{
		rpcServer: rpcServer,
		logger:    logging.OrNop(logger),
		done:      make(chan struct{}),
	}, nil
}

// Listen binds addr. Serve must be called afterwards.
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", zap.Error(err))
			continue
		}
		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the Backend RPC methods.
type Handler struct {
	backend Backend
}

// Call performs one domain action.
func (h *Handler) Call(req *Request, resp *Response) error {
	if req == nil {
		return errors.New("request is required")
	}
	if req.Domain == "" || req.Action == "" {
		return errors.New("domain and action are required")
	}
	result, err := h.backend.Call(context.Background(), *req)
	if err != nil {
		return err
	}
	if resp != nil && result != nil {
		*resp = *result
	}
	return nil
}
