package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	"Confluence/internal/service/executor"
	"Confluence/internal/services/activity"
	"Confluence/internal/services/resources"
	xhttp "Confluence/pkg/http"
)

type fakeViews struct {
	snaps   map[string]models.Snapshot
	results map[string]models.ConfluenceResult
}

func (f *fakeViews) Snapshot(symbol string) (models.Snapshot, bool) {
	s, ok := f.snaps[symbol]
	return s, ok
}

func (f *fakeViews) Latest(_ context.Context, symbol string) (models.ConfluenceResult, bool) {
	r, ok := f.results[symbol]
	return r, ok
}

func (f *fakeViews) Breakdown(_ context.Context, symbol string) (models.Breakdown, bool) {
	r, ok := f.results[symbol]
	if !ok {
		return models.Breakdown{}, false
	}
	return models.Breakdown{Symbol: symbol, BaseScore: r.Score}, true
}

type breakerList []executor.BreakerSnapshot

func (b breakerList) Snapshot() []executor.BreakerSnapshot { return b }

type intervalList []activity.IntervalView

func (i intervalList) Snapshot() []activity.IntervalView { return i }

type resourceList []resources.ComponentView

func (r resourceList) Components() []resources.ComponentView { return r }

func newTestServer(t *testing.T) (*echo.Echo, *OpsHandler) {
	t.Helper()
	views := &fakeViews{
		snaps: map[string]models.Snapshot{"BTC/USDT": {Symbol: "BTC/USDT", UpdatedAt: time.Unix(100, 0)}},
		results: map[string]models.ConfluenceResult{
			"BTC/USDT": {Symbol: "BTC/USDT", Score: 72.5, Sentiment: models.Bullish},
		},
	}
	h := NewOpsHandler(nil,
		breakerList{{Endpoint: "ticker", State: "CLOSED"}},
		intervalList{{Symbol: "BTC/USDT", Base: "10s"}},
		resourceList{{Name: "poller:ticker", InFlight: 1}},
		views, views,
	)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, h
}

func get(e *echo.Echo, target string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var body xhttp.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestOps_Confluence(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := get(e, "/api/confluence?symbol=BTC/USDT")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 72.5, data["score"])
	assert.Equal(t, "BULLISH", data["sentiment"])

	rec, _ = get(e, "/api/confluence?symbol=ETH/USDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(e, "/api/confluence")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOps_Breakdown(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := get(e, "/api/confluence/breakdown?symbol=BTC/USDT")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, 72.5, data["base_score"])
}

func TestOps_DebugViews(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := get(e, "/debug/breakers")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body.Data.([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "CLOSED", rows[0].(map[string]interface{})["state"])

	rec, body = get(e, "/debug/intervals")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body.Data.([]interface{}), 1)

	rec, body = get(e, "/debug/resources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "poller:ticker", body.Data.([]interface{})[0].(map[string]interface{})["name"])

	rec, _ = get(e, "/debug/snapshot?symbol=BTC/USDT")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = get(e, "/debug/snapshot?symbol=DOGE/USDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOps_Health(t *testing.T) {
	e, h := newTestServer(t)

	rec, _ := get(e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	h.AddCheck("stream", func(context.Context) error { return errors.New("disconnected") })
	rec, body := get(e, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disconnected", body.Data.(map[string]interface{})["stream"])
}
