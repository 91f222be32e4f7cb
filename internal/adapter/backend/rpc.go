package backend

import (
	"context"
	"fmt"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"
)

// RPCMethod is the JSON-RPC method served by domain backends.
const RPCMethod = "Backend.Call"

// RPCClient calls a domain backend over JSON-RPC, one connection per call.
type RPCClient struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
}

// NewRPCClient creates a client for addr ("host:port" or a URL).
func NewRPCClient(addr string, callTimeout time.Duration) *RPCClient {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &RPCClient{
		addr:        resolveRPCAddr(addr),
		dialTimeout: 5 * time.Second,
		callTimeout: callTimeout,
	}
}

// Call implements Backend.
func (c *RPCClient) Call(ctx context.Context, req Request) (*Response, error) {
	if c.addr == "" {
		return nil, fmt.Errorf("backend rpc address is not configured")
	}
	var resp Response
	if err := c.call(ctx, RPCMethod, &req, &resp); err != nil {
		return nil, fmt.Errorf("backend %s.%s: %w", req.Domain, req.Action, err)
	}
	return &resp, nil
}

func (c *RPCClient) call(ctx context.Context, method string, args, reply interface{}) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
