package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundErrorf("no %s", "thing"))
	})
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_RoutesAndMiddleware(t *testing.T) {
	s := NewServer(routes{}, WithRegistry(prometheus.NewRegistry()))

	rec := serve(s, "/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":"pong"`)

	rec = serve(s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(s, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	rec = serve(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `confluence_http_requests_total{method="GET",route="/ok",status="200"} 1`)
	assert.Contains(t, body, `route="/boom",status="500"`)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := NewServer(routes{},
		WithHost("127.0.0.1"),
		WithPort(0),
		WithRegistry(prometheus.NewRegistry()),
		WithTimeouts(time.Second, time.Second, time.Second),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
