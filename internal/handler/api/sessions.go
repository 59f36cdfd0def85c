package api

import (
	"FxRollup/internal/domain/models"
	xhttp "FxRollup/pkg/http"

	"github.com/labstack/echo/v4"
)

func (h *Handler) ListSessions(c echo.Context) error {
	req := &models.SessionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	defs := h.sessions.List(req.Symbol)
	return xhttp.ListResponse(c, defs, len(defs))
}

// sessionBody defaults an omitted "enabled" to true.
type sessionBody struct {
	models.SessionDefinition
	Enabled *bool `json:"enabled"`
}

// UpsertSession creates (id 0) or replaces a definition.
func (h *Handler) UpsertSession(c echo.Context) error {
	done, fail := observe("session_upsert")
	defer done()

	body := &sessionBody{}
	if err := c.Bind(body); err != nil {
		fail()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("body", err.Error()))
	}
	def := body.SessionDefinition
	def.Enabled = body.Enabled == nil || *body.Enabled
	saved, err := h.sessions.Upsert(c.Request().Context(), def)
	if err != nil {
		fail()
		return h.errorResponse(c, "session_upsert", err)
	}
	return xhttp.SuccessResponse(c, saved)
}

func (h *Handler) DisableSession(c echo.Context) error {
	req := &models.DisableSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.sessions.Disable(c.Request().Context(), req.ID); err != nil {
		return h.errorResponse(c, "session_disable", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"id": req.ID, "enabled": false})
}
