package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	engine := server.New(server.Options{Workers: 1, Logger: logging.Discard()})
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)
	engine.SetMaintenance(true)

	upgraded := false
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		upgraded = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	srv := httptest.NewServer(newRouter(engine, ws, logging.Discard()))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, true, stats["maintenance"])
	assert.Equal(t, float64(0), stats["active_matches"])

	rec := httptest.NewRecorder()
	newRouter(engine, ws, logging.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, upgraded)
}
