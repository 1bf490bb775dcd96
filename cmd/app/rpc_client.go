package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// remoteError is a failure reported by the server over either transport.
// Entity, Missing and Suggestions are filled for validation and lookup errors.
type remoteError struct {
	Code        int      `json:"code"`
	Message     string   `json:"message"`
	Entity      string   `json:"entity,omitempty"`
	Missing     []string `json:"missing,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (e *remoteError) Error() string {
	msg := fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

type rpcClient struct {
	socket  string
	timeout time.Duration
}

func newRPCClient(socket string) *rpcClient {
	return &rpcClient{socket: socket, timeout: 20 * time.Second}
}

type rpcCall struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcReply struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

// call sends one request per connection and decodes the result into out.
func (c *rpcClient) call(ctx context.Context, method string, params any, out any) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.socket, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(rpcCall{JSONRPC: "2.0", ID: 1, Method: method, Params: params}); err != nil {
		return err
	}

	var reply rpcReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("%s: read reply: %w", method, err)
	}
	if reply.Error != nil {
		rerr := &remoteError{Code: reply.Error.Code, Message: reply.Error.Message}
		if len(reply.Error.Data) > 0 {
			_ = json.Unmarshal(reply.Error.Data, rerr)
		}
		return rerr
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Result, out)
}
