package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "FxRollup/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 response.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					l.Error("http handler panic",
						applogger.String("path", c.Path()),
						applogger.String("panic", fmt.Sprint(r)),
						applogger.String("stack", string(debug.Stack())))
					_ = c.JSON(http.StatusInternalServerError, map[string]any{
						"status":  http.StatusInternalServerError,
						"message": "Internal Server Error",
					})
				}
			}()
			return next(c)
		}
	}
}
