package transfer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)

	app := fiber.New()
	app.Post("/wallets", h.Open)
	app.Get("/wallets/:account/balance", h.Balance)
	app.Get("/wallets/:account/history", h.History)
	app.Get("/wallets/:account/statement", h.Statement)
	app.Get("/wallets/:account/reconcile", h.Reconcile)
	app.Post("/wallets/:account/deposit", h.Deposit)
	app.Post("/wallets/:account/withdraw", h.Withdraw)
	app.Post("/transfers", h.Transfer)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHandlerDepositFlow(t *testing.T) {
	app := newTestApp(t)

	status, opened := do(t, app, http.MethodPost, "/wallets", `{"account_number": 10}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "0.00", opened["balance"])
	version := opened["version"].(string)

	status, body := do(t, app, http.MethodPost, "/wallets/10/deposit", `{"amount": "25.50", "version": "`+version+`"}`)
	require.Equal(t, http.StatusCreated, status)
	w := body["wallet"].(map[string]any)
	assert.Equal(t, "25.50", w["balance"])
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "deposit", entry["kind"])
	assert.Equal(t, "25.50", entry["credit"])
	assert.Nil(t, entry["debit"])

	status, body = do(t, app, http.MethodPost, "/wallets/10/deposit", `{"amount": 1, "version": "`+version+`"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(KindVersionConflict), body["error"])

	status, body = do(t, app, http.MethodGet, "/wallets/10/reconcile", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])
}

func TestHandlerErrorStatuses(t *testing.T) {
	app := newTestApp(t)
	_, opened := do(t, app, http.MethodPost, "/wallets", `{"account_number": 1}`)
	version := opened["version"].(string)
	do(t, app, http.MethodPost, "/wallets", `{"account_number": 2}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate wallet", http.MethodPost, "/wallets", `{"account_number": 1}`, http.StatusConflict},
		{"unknown wallet", http.MethodGet, "/wallets/404/balance", "", http.StatusNotFound},
		{"bad account param", http.MethodGet, "/wallets/abc/history", "", http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/wallets/1/deposit", `{"amount": "-1", "version": "` + version + `"}`, http.StatusBadRequest},
		{"overdraft", http.MethodPost, "/wallets/1/withdraw", `{"amount": "5", "version": "` + version + `"}`, http.StatusUnprocessableEntity},
		{"self transfer", http.MethodPost, "/transfers", `{"source_account": 1, "destination_account": 1, "amount": "1", "version": "` + version + `"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/transfers", `{"amount": "ten"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := do(t, app, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, status)
		})
	}
}

func TestHandlerTransfer(t *testing.T) {
	app := newTestApp(t)
	_, opened := do(t, app, http.MethodPost, "/wallets", `{"account_number": 1}`)
	do(t, app, http.MethodPost, "/wallets", `{"account_number": 2}`)

	_, body := do(t, app, http.MethodPost, "/wallets/1/deposit", `{"amount": "100", "version": "`+opened["version"].(string)+`"}`)
	version := body["wallet"].(map[string]any)["version"].(string)

	status, body := do(t, app, http.MethodPost, "/transfers", `{"source_account": 1, "destination_account": 2, "amount": "40", "version": "`+version+`"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "60.00", body["source"].(map[string]any)["balance"])
	out := body["entry"].(map[string]any)
	assert.Equal(t, "transfer_out", out["kind"])
	assert.Equal(t, body["paired_entry"], out["paired_entry"])

	status, body = do(t, app, http.MethodGet, "/wallets/2/history", "")
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "40.00", entries[0].(map[string]any)["credit"])
}

func TestHandlerStatement(t *testing.T) {
	app := newTestApp(t)
	_, opened := do(t, app, http.MethodPost, "/wallets", `{"account_number": 7}`)
	do(t, app, http.MethodPost, "/wallets/7/deposit", `{"amount": "12.5", "version": "`+opened["version"].(string)+`"}`)

	status, body := do(t, app, http.MethodGet, "/wallets/7/statement", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12.50", body["wallet"].(map[string]any)["balance"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "12.50", entries[0].(map[string]any)["resulting_balance"])
}
