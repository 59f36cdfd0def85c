package api

import (
	"context"
	"net/http"
	"time"

	xhttp "FxRollup/pkg/http"
	applogger "FxRollup/pkg/logger"

	"github.com/labstack/echo/v4"
)

const readinessTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports 200 when every backend answers, 503 otherwise.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, rc := range h.checks {
		if err := rc.check(ctx); err != nil {
			h.l.Warn("readiness check failed", applogger.String("check", rc.name), applogger.Error(err))
			resp.Checks[rc.name] = err.Error()
			resp.Status, status = "unavailable", http.StatusServiceUnavailable
			continue
		}
		resp.Checks[rc.name] = "ok"
	}
	return xhttp.DataResponse(c, status, resp)
}
