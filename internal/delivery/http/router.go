package http

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	custommiddleware "trailbot/internal/middleware"
)

// SetupRoutes configures the operator API routes.
func SetupRoutes(e *echo.Echo, handler *OperatorHandler, jwtSecret string) {
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Secure())

	e.POST("/api/login", handler.Login)

	api := e.Group("/api", custommiddleware.Auth(jwtSecret))
	api.GET("/status", handler.GetStatus)
	api.GET("/positions", handler.GetPositions)
	api.GET("/positions/closed", handler.GetClosedPositions)
	api.POST("/pause", handler.Pause)
	api.POST("/resume", handler.Resume)
}
