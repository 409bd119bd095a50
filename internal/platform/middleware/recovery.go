package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 carrying the request id, so a
// caller can quote it when reporting the failure. The stack goes to the log
// only.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				rid := requestIDOf(c)
				req := c.Request()
				logger.Error().
					Str("request_id", rid).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				body := map[string]string{"message": "internal server error"}
				if rid != "" {
					body["request_id"] = rid
					if !c.Response().Committed {
						c.Response().Header().Set(RequestIDHeader, rid)
					}
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, body)
			}()
			return next(c)
		}
	}
}

// requestIDOf prefers the id stored by RequestID and falls back to the
// inbound header when Recovery runs outside it.
func requestIDOf(c echo.Context) string {
	if rid, ok := c.Get("request_id").(string); ok && rid != "" {
		return rid
	}
	if rid := c.Request().Header.Get(RequestIDHeader); len(rid) <= 128 {
		return rid
	}
	return ""
}
