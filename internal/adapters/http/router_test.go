package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagoof/sc-buildorders/internal/adapters/db/memory"
	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/trie"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	svc := application.NewBuildService(c, repo, trie.New(repo, logger), logger)

	srv := httptest.NewServer(NewRouter(svc, logger))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestBuildLifecycle(t *testing.T) {
	srv := newTestServer(t)

	var created application.BuildSummary
	status := doJSON(t, http.MethodPost, srv.URL+"/api/builds", map[string]any{"race": "Zerg"}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.Key)
	assert.Len(t, created.UnitOrder, 8)

	var extended application.BuildSummary
	status = doJSON(t, http.MethodPost, srv.URL+"/api/builds/"+created.Key+"/units", map[string]any{"unit": "Spawning Pool"}, &extended)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, extended.UnitOrder, 9)

	var rejected map[string]any
	status = doJSON(t, http.MethodPost, srv.URL+"/api/builds/"+created.Key+"/units", map[string]any{"unit": "Hive"}, &rejected)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Hive", rejected["entity"])

	var features []application.Feature
	status = doJSON(t, http.MethodGet, srv.URL+"/api/builds/"+created.Key+"/features", nil, &features)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, features, 1)
	assert.Equal(t, "Spawning Pool", features[0].Unit)

	var branched application.BuildSummary
	status = doJSON(t, http.MethodPost, srv.URL+"/api/builds/"+created.Key+"/branch", nil, &branched)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, extended.TipNodeID, branched.TipNodeID)

	var list []application.BuildRecord
	status = doJSON(t, http.MethodGet, srv.URL+"/api/builds?race=Zerg", nil, &list)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 2)

	var events []application.BuildEvent
	status = doJSON(t, http.MethodGet, srv.URL+"/api/builds/"+created.Key+"/events?limit=1", nil, &events)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, events, 1)
	assert.Equal(t, "Spawning Pool", events[0].Unit)
}

func TestErrorStatuses(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	status := doJSON(t, http.MethodGet, srv.URL+"/api/builds/01J00000000000000000000000", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodGet, srv.URL+"/api/entities/Spawning%20Pol", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["suggestions"], "Spawning Pool")

	status = doJSON(t, http.MethodGet, srv.URL+"/api/races/Xel'Naga/entities", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/races/Protoss/validate", map[string]any{"units": []string{"Nexus", "Stalker"}}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Stalker", body["entity"])
}

func TestCatalogRoutes(t *testing.T) {
	srv := newTestServer(t)

	var races []string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/races", nil, &races))
	assert.Equal(t, []string{"Protoss", "Terran", "Zerg"}, races)

	var view catalog.EntityView
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/entities/Spawning%20Pool", nil, &view))
	assert.Equal(t, []string{"Hatchery"}, view.FullRequirements)

	var tech application.TechSummary
	status := doJSON(t, http.MethodPost, srv.URL+"/api/races/Terran/tech", map[string]any{"units": []string{"Command Center"}}, &tech)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, tech.Available, "SCV")
	assert.NotContains(t, tech.Available, "Barracks")
}
