package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagoof/sc-buildorders/internal/adapters/db/memory"
	rpcadapter "github.com/dagoof/sc-buildorders/internal/adapters/rpcjson"
	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/trie"
)

func startSocketServer(t *testing.T) cliConfig {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	logger := newLogger("error", "text", io.Discard)
	repo := memory.NewRepository()
	svc := application.NewBuildService(c, repo, trie.New(repo, logger), logger)

	socket := filepath.Join(t.TempDir(), "bo.sock")
	srv, err := rpcadapter.Start(socket, svc, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return cliConfig{Transport: "uds", Socket: socket}
}

func TestSocketBuildFlow(t *testing.T) {
	ctx := context.Background()
	cfg := startSocketServer(t)

	var created application.BuildSummary
	require.NoError(t, doCreateBuild(ctx, cfg, "Terran", nil, &created))
	require.NotEmpty(t, created.Key)

	var added application.BuildSummary
	require.NoError(t, doAddUnit(ctx, cfg, created.Key, "Supply Depot", &added))
	assert.Equal(t, "Supply Depot", added.UnitOrder[len(added.UnitOrder)-1])

	var events []application.BuildEvent
	require.NoError(t, doListEvents(ctx, cfg, created.Key, 1, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Supply Depot", events[0].Unit)
}

func TestSocketErrorsCarryDetails(t *testing.T) {
	ctx := context.Background()
	cfg := startSocketServer(t)

	var view catalog.EntityView
	err := newRPCClient(cfg.Socket).call(ctx, "catalog.entity", map[string]any{"name": "Spawning Pol"}, &view)
	var rerr *remoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "Spawning Pol", rerr.Entity)
	assert.Contains(t, rerr.Suggestions, "Spawning Pool")
	assert.Contains(t, rerr.Error(), "did you mean")

	var created application.BuildSummary
	require.NoError(t, doCreateBuild(ctx, cfg, "Protoss", []string{"Nexus"}, &created))
	err = doAddUnit(ctx, cfg, created.Key, "Stalker", nil)
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "Stalker", rerr.Entity)
	assert.NotEmpty(t, rerr.Missing)
}

func TestDecodeAPIError(t *testing.T) {
	err := decodeAPIError(http.StatusNotFound, []byte(`{"error":"unknown entity","entity":"Hydra","suggestions":["Hydralisk"]}`))
	var rerr *remoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusNotFound, rerr.Code)
	assert.Equal(t, []string{"Hydralisk"}, rerr.Suggestions)

	err = decodeAPIError(http.StatusBadGateway, []byte("upstream down\n"))
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "upstream down", rerr.Message)
	assert.Empty(t, rerr.Suggestions)
}
