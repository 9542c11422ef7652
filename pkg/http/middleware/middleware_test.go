package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	e.GET("/payload", func(c echo.Context) error {
		return c.String(http.StatusOK, strings.Repeat("surface ", 100))
	})
	e.GET("/empty", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("boom")
	})
	return e
}

func serve(e *echo.Echo, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestZstd(t *testing.T) {
	e := newEcho(Zstd())

	t.Run("compresses when accepted", func(t *testing.T) {
		rec := serve(e, "/payload", map[string]string{echo.HeaderAcceptEncoding: "gzip, zstd"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "zstd", rec.Header().Get(echo.HeaderContentEncoding))

		dec, err := zstd.NewReader(rec.Body)
		require.NoError(t, err)
		defer dec.Close()
		body, err := io.ReadAll(dec)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("surface ", 100), string(body))
	})

	t.Run("passes through otherwise", func(t *testing.T) {
		rec := serve(e, "/payload", nil)
		assert.Empty(t, rec.Header().Get(echo.HeaderContentEncoding))
		assert.Equal(t, strings.Repeat("surface ", 100), rec.Body.String())
	})

	t.Run("empty body stays empty", func(t *testing.T) {
		rec := serve(e, "/empty", map[string]string{echo.HeaderAcceptEncoding: "zstd"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Zero(t, rec.Body.Len())
	})
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(string) bool {
	d.n--
	return d.n >= 0
}

func TestRateLimit(t *testing.T) {
	e := newEcho(RateLimit(&denyAfter{n: 1}))
	assert.Equal(t, http.StatusOK, serve(e, "/payload", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, "/payload", nil).Code)
}

func TestRecover(t *testing.T) {
	e := newEcho(Recover(nil), RequestLogging(nil))
	rec := serve(e, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(0))
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	e := echo.New()
	e.Use(m.Middleware(nil, 0))
	e.GET("/api/options/surface/:symbol", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve(e, "/api/options/surface/SPY", nil)
	serve(e, "/api/options/surface/QQQ", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/options/surface/:symbol", http.MethodGet, "2xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}
