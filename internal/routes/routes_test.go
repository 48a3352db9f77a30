package routes

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/logging"
)

func devConfig() config.Config {
	return config.Config{AppName: "test", AppEnv: "development", LockBackend: config.LockBackendMemory}
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	cfg := devConfig()
	cfg.AppEnv = "production"

	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	require.Error(t, err)
}

func TestSetupRejectsRedisLockWithoutClient(t *testing.T) {
	cfg := devConfig()
	cfg.LockBackend = config.LockBackendRedis

	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	require.Error(t, err)
}

func TestSetupServesHealthAndMetrics(t *testing.T) {
	app := fiber.New()
	require.NoError(t, Setup(app, Deps{Cfg: devConfig(), Logger: logging.Discard()}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets", strings.NewReader(`{"account_number": 5}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `walletledger_operations_total{op="open_wallet",outcome="committed"} 1`)
}

func TestSetupWithRedisUsesIdempotencyAndRedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	cfg := devConfig()
	cfg.LockBackend = config.LockBackendRedis
	cfg.LockTTL = 5 * time.Second
	cfg.IdempotencyTTL = time.Minute

	app := fiber.New()
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()}))

	open := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets", strings.NewReader(`{"account_number": 8}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "open-8")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusCreated, open())
	assert.Equal(t, http.StatusCreated, open(), "a retried request replays the first response")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
