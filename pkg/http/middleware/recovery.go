package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"BrentShift/pkg/logger"
)

// Recover turns handler panics into a logged 500 response.
func Recover(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				log.Error("http handler panic",
					logger.String("path", c.Path()),
					logger.String("panic", fmt.Sprint(r)),
					logger.String("stack", string(debug.Stack())))
				err = c.JSON(http.StatusInternalServerError, map[string]any{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}
