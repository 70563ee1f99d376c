package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/service/ratelimit"
	"BrentShift/internal/usecase"
	xhttp "BrentShift/pkg/http"
	xlogger "BrentShift/pkg/logger"
)

// ChangePointsHandler serves the dashboard API: prices, events, change points and analyses.
type ChangePointsHandler struct {
	logger    *xlogger.Logger
	dashboard *usecase.Dashboard
	analyses  *usecase.AnalysisService
	limiter   *ratelimit.Limiter
}

func NewChangePointsHandler(logger *xlogger.Logger, dashboard *usecase.Dashboard, analyses *usecase.AnalysisService, limiter *ratelimit.Limiter) *ChangePointsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ChangePointsHandler{logger: logger, dashboard: dashboard, analyses: analyses, limiter: limiter}
}

func (h *ChangePointsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/prices", h.Prices)
	g.GET("/events", h.Events)
	g.GET("/changepoints", h.ChangePoints)
	g.GET("/summary", h.Summary)
	g.POST("/analyses", h.SubmitAnalysis, h.rateLimited)
	g.GET("/analyses/:id", h.GetAnalysis)
}

func (h *ChangePointsHandler) rateLimited(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.limiter.Allow(c.RealIP()) {
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many analysis requests").WithParam("client", c.RealIP()))
		}
		return next(c)
	}
}

func (h *ChangePointsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ChangePointsHandler) Prices(c echo.Context) error {
	req := &models.PricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	prices, err := h.dashboard.Prices(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("prices usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.ListResponse(c, prices, int64(len(prices)))
}

func (h *ChangePointsHandler) Events(c echo.Context) error {
	req := &models.EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	evs, err := h.dashboard.Events(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("events usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, evs, int64(len(evs)))
}

func (h *ChangePointsHandler) ChangePoints(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	view, err := h.dashboard.ChangePoints(c.Request().Context(), req.Series)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *ChangePointsHandler) Summary(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sum, err := h.dashboard.Summary(c.Request().Context(), req.Series)
	if err != nil {
		h.logger.Error("summary usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sum)
}

// SubmitAnalysis answers 202 with the pending record when the job was queued, 200 with the
// result when it ran inline.
func (h *ChangePointsHandler) SubmitAnalysis(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.ID = ""
	res, err := h.analyses.Submit(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("analysis submit failed", xlogger.String("series", req.Series), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if res.Status == models.AnalysisPending {
		return xhttp.AcceptedResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ChangePointsHandler) GetAnalysis(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("id is required"))
	}
	res, err := h.analyses.Get(c.Request().Context(), id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
