package api

import (
	"dashboard/internal/dashboard"
	"dashboard/internal/logging"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// NewServer wires middleware and routes. A non-empty dataDir is served
// under /data so the browser widgets can fetch the same resources.
func NewServer(reg *dashboard.Registry, logger *zap.Logger, dataDir string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(logging.RequestLogger(logger))

	if dataDir != "" {
		e.Static("/data", dataDir)
	}

	NewHandler(reg, logger).RegisterRoutes(e)
	return e
}
