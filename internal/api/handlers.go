package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dashboard/internal/bootstrap"
	"dashboard/internal/dashboard"
	"dashboard/internal/engine"
	"dashboard/internal/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const unmountTimeout = 10 * time.Second

type Handler struct {
	reg    *dashboard.Registry
	logger *zap.Logger
}

func NewHandler(reg *dashboard.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reg: reg, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	api := e.Group("/api/dashboards")
	api.GET("", h.ListDashboards)
	api.POST("", h.MountDashboard)
	api.GET("/:anchor", h.GetView)
	api.DELETE("/:anchor", h.UnmountDashboard)
	api.PUT("/:anchor/country", h.SetCountry)
	api.PUT("/:anchor/tab", h.SetTab)
	api.PUT("/:anchor/indicator", h.SelectIndicator)
	api.PUT("/:anchor/orientation", h.SetOrientation)
	api.POST("/:anchor/sidebar/toggle", h.ToggleSidebar)
	api.GET("/:anchor/options", h.GetOptions)
	api.GET("/:anchor/ranking", h.GetRanking)
}

// --- REQUESTS ---

type mountRequest struct {
	Country string `json:"country"`
	Anchor  string `json:"anchor"`
}

type countryRequest struct {
	Country string `json:"country"`
}

type tabRequest struct {
	Tab models.Tab `json:"tab"`
}

type indicatorRequest struct {
	Value string `json:"value"`
}

type orientationRequest struct {
	Orientation models.Orientation `json:"orientation"`
}

// --- HANDLERS ---

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"mounted": len(h.reg.Anchors()),
	})
}

func (h *Handler) ListDashboards(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reg.Anchors())
}

func (h *Handler) MountDashboard(c echo.Context) error {
	var req mountRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctrl, err := h.reg.Mount(req.Anchor, req.Country)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ctrl.Render())
}

func (h *Handler) GetView(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctrl.Render())
}

func (h *Handler) UnmountDashboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), unmountTimeout)
	defer cancel()
	if err := h.reg.Unmount(ctx, c.Param("anchor")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetCountry(c echo.Context) error {
	var req countryRequest
	return h.update(c, &req, func(ctrl *dashboard.Controller) error {
		return ctrl.SetCountry(req.Country)
	})
}

func (h *Handler) SetTab(c echo.Context) error {
	var req tabRequest
	return h.update(c, &req, func(ctrl *dashboard.Controller) error {
		return ctrl.SetTab(req.Tab)
	})
}

func (h *Handler) SelectIndicator(c echo.Context) error {
	var req indicatorRequest
	return h.update(c, &req, func(ctrl *dashboard.Controller) error {
		_, err := ctrl.SelectIndicator(req.Value)
		return err
	})
}

func (h *Handler) SetOrientation(c echo.Context) error {
	var req orientationRequest
	return h.update(c, &req, func(ctrl *dashboard.Controller) error {
		return ctrl.SetOrientation(req.Orientation)
	})
}

func (h *Handler) ToggleSidebar(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	ctrl.ToggleSidebar()
	return c.JSON(http.StatusOK, ctrl.Render())
}

func (h *Handler) GetOptions(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctrl.Options())
}

// GetRanking returns the regions ranked by the selected indicator, paginated.
func (h *Handler) GetRanking(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	ranking, err := ctrl.Ranking()
	if err != nil {
		return httpError(err)
	}

	items := ranking.Items
	total := len(items)
	limit, offset := getPaginationParams(c, total)
	if offset >= total {
		items = []models.RankedItem{}
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		items = items[offset:end]
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"indicator": ranking.Indicator,
		"summary":   ranking.Summary,
		"data":      items,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// --- HELPERS ---

func (h *Handler) controller(c echo.Context) (*dashboard.Controller, error) {
	ctrl, err := h.reg.Get(c.Param("anchor"))
	if err != nil {
		return nil, httpError(err)
	}
	return ctrl, nil
}

// update binds req, applies fn and answers with the re-rendered view.
func (h *Handler) update(c echo.Context, req any, fn func(*dashboard.Controller) error) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := c.Bind(req); err != nil {
		return err
	}
	if err := fn(ctrl); err != nil {
		h.logger.Debug("update rejected", zap.String("anchor", ctrl.Anchor()), zap.String("path", c.Path()), zap.Error(err))
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ctrl.Render())
}

func httpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, bootstrap.ErrInvalidCode),
		errors.Is(err, dashboard.ErrUnknownTab),
		errors.Is(err, dashboard.ErrUnknownOrientation):
		code = http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNotMounted),
		errors.Is(err, dashboard.ErrUnknownIndicator):
		code = http.StatusNotFound
	case errors.Is(err, dashboard.ErrAlreadyMounted),
		errors.Is(err, dashboard.ErrOrientationUnavailable),
		errors.Is(err, dashboard.ErrUnmounted):
		code = http.StatusConflict
	case errors.Is(err, engine.ErrMissingColumn):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, dashboard.ErrNotReady),
		errors.Is(err, dashboard.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}
