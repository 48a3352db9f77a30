package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/logging"
)

func TestErrorsRenderAsJSON(t *testing.T) {
	srv, err := New(config.Config{AppName: "test", AppEnv: "development"}, nil, nil, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/wallets/abc/balance", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid account number", body["message"])
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	srv, err := New(config.Config{AppName: "test", AppEnv: "development"}, nil, nil, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
