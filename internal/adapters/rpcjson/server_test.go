package rpcjson

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagoof/sc-buildorders/internal/adapters/db/memory"
	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/trie"
)

type testResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

func startTestServer(t *testing.T) net.Conn {
	t.Helper()
	_, conn := startServerAt(t, filepath.Join(t.TempDir(), "rpc.sock"))
	return conn
}

func startServerAt(t *testing.T, path string) (*Server, net.Conn) {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	svc := application.NewBuildService(c, repo, trie.New(repo, logger), logger)

	srv, err := Start(path, svc, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func call(t *testing.T, conn net.Conn, id int, method string, params any) testResponse {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	require.NoError(t, json.NewEncoder(conn).Encode(req))

	var resp testResponse
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.Equal(t, id, resp.ID)
	return resp
}

func TestBuildMethods(t *testing.T) {
	conn := startTestServer(t)

	resp := call(t, conn, 1, "builds.create", map[string]any{"race": "Protoss"})
	require.Nil(t, resp.Error)
	var created application.BuildSummary
	require.NoError(t, json.Unmarshal(resp.Result, &created))
	assert.Equal(t, "Protoss", created.Race)

	resp = call(t, conn, 2, "builds.add_unit", map[string]any{"key": created.Key, "unit": "Pylon"})
	require.Nil(t, resp.Error)

	resp = call(t, conn, 3, "builds.add_unit", map[string]any{"key": created.Key, "unit": "Stalker"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeUnprocessable, resp.Error.Code)

	resp = call(t, conn, 4, "builds.get", map[string]any{"key": created.Key})
	require.Nil(t, resp.Error)
	var got application.BuildSummary
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Equal(t, "Pylon", got.UnitOrder[len(got.UnitOrder)-1])

	resp = call(t, conn, 5, "builds.get", map[string]any{"key": "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotFound, resp.Error.Code)
}

func TestDispatchErrors(t *testing.T) {
	conn := startTestServer(t)

	resp := call(t, conn, 1, "builds.teleport", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)

	resp = call(t, conn, 2, "catalog.entity", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)

	resp = call(t, conn, 3, "catalog.races", nil)
	require.Nil(t, resp.Error)
	var races []string
	require.NoError(t, json.Unmarshal(resp.Result, &races))
	assert.Contains(t, races, "Terran")
}

func TestCloseDropsOpenConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpc.sock")
	srv, conn := startServerAt(t, path)

	resp := call(t, conn, 1, "catalog.races", nil)
	require.Nil(t, resp.Error)

	done := make(chan error, 1)
	go func() { done <- srv.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close blocked on an idle connection")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection should be closed by the server, not time out")
	}

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, srv.Close())
}
