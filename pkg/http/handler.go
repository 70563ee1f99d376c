package http

import "github.com/labstack/echo/v4"

// Handler mounts a group of routes, such as the change-point API, on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
