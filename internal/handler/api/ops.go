package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"Confluence/internal/domain/models"
	"Confluence/internal/service/executor"
	"Confluence/internal/services/activity"
	"Confluence/internal/services/resources"
	xhttp "Confluence/pkg/http"
	xlogger "Confluence/pkg/logger"
)

type BreakerLister interface {
	Snapshot() []executor.BreakerSnapshot
}

type IntervalLister interface {
	Snapshot() []activity.IntervalView
}

type ResourceLister interface {
	Components() []resources.ComponentView
}

type SnapshotReader interface {
	Snapshot(symbol string) (models.Snapshot, bool)
}

type ResultReader interface {
	Latest(ctx context.Context, symbol string) (models.ConfluenceResult, bool)
	Breakdown(ctx context.Context, symbol string) (models.Breakdown, bool)
}

// HealthCheck reports a non-nil error while a dependency is unusable.
type HealthCheck func(ctx context.Context) error

// OpsHandler serves the confluence read API and the operational views.
type OpsHandler struct {
	logger    *xlogger.Logger
	breakers  BreakerLister
	intervals IntervalLister
	resources ResourceLister
	snapshots SnapshotReader
	results   ResultReader
	checks    map[string]HealthCheck
}

func NewOpsHandler(
	logger *xlogger.Logger,
	breakers BreakerLister,
	intervals IntervalLister,
	resources ResourceLister,
	snapshots SnapshotReader,
	results ResultReader,
) *OpsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OpsHandler{
		logger:    logger,
		breakers:  breakers,
		intervals: intervals,
		resources: resources,
		snapshots: snapshots,
		results:   results,
		checks:    make(map[string]HealthCheck),
	}
}

// AddCheck registers a named health probe for /healthz.
func (h *OpsHandler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/confluence", h.Confluence)
	g.GET("/confluence/breakdown", h.Breakdown)

	d := e.Group("/debug")
	d.GET("/breakers", h.Breakers)
	d.GET("/intervals", h.Intervals)
	d.GET("/resources", h.Resources)
	d.GET("/snapshot", h.Snapshot)
}

func (h *OpsHandler) Health(c echo.Context) error {
	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(c.Request().Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.logger.Warn("health check failed", xlogger.Any("checks", failed))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, failed)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *OpsHandler) Confluence(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, ok := h.results.Latest(c.Request().Context(), req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no confluence result for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *OpsHandler) Breakdown(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	bd, ok := h.results.Breakdown(c.Request().Context(), req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no breakdown for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, bd)
}

func (h *OpsHandler) Breakers(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.breakers.Snapshot())
}

func (h *OpsHandler) Intervals(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.intervals.Snapshot())
}

func (h *OpsHandler) Resources(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.resources.Components())
}

func (h *OpsHandler) Snapshot(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, ok := h.snapshots.Snapshot(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s is not polled", req.Symbol))
	}
	return xhttp.SuccessResponse(c, snap)
}

var _ xhttp.Handler = (*OpsHandler)(nil)
