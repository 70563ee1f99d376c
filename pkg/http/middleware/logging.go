package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"BrentShift/pkg/logger"
)

// RequestLogging logs one line per request at debug level, or warn for 4xx and 5xx responses.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("uri", req.RequestURI),
				logger.Int("status", res.Status),
				logger.Duration("latency", time.Since(start)),
				logger.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			}
			if res.Status >= 400 {
				log.Warn("http request", fields...)
			} else {
				log.Debug("http request", fields...)
			}
			return nil
		}
	}
}
