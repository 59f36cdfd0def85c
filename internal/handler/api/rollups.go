package api

import (
	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/internal/usecase"
	xhttp "FxRollup/pkg/http"

	"github.com/labstack/echo/v4"
)

// Rollups returns live rollups: materialised rows merged with the still
// open buckets past the watermark.
func (h *Handler) Rollups(c echo.Context) error {
	done, fail := observe("rollups")
	defer done()

	req := &models.RollupsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		fail()
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := xhttp.ParseRange(req.From, req.To)
	if err != nil {
		fail()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", err.Error()))
	}
	rows, err := h.rollups.Rollups(c.Request().Context(), usecase.RollupQuery{
		Symbol:     req.Symbol,
		Session:    req.Session,
		Resolution: domrepo.Resolution(req.Resolution),
		Mode:       domrepo.Mode(req.Mode),
		From:       from,
		To:         to,
		Limit:      req.Limit,
	})
	if err != nil {
		fail()
		return h.errorResponse(c, "rollups", err)
	}
	return xhttp.ListResponse(c, rows, len(rows))
}

// Snapshot returns QC-filtered rows of one snapshot, newest first.
func (h *Handler) Snapshot(c echo.Context) error {
	done, fail := observe("snapshot")
	defer done()

	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		fail()
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := xhttp.ParseRange(req.From, req.To)
	if err != nil {
		fail()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", err.Error()))
	}
	rows, err := h.rollups.Snapshot(c.Request().Context(), usecase.RollupQuery{
		Symbol:     req.Symbol,
		Session:    req.Session,
		Resolution: domrepo.Resolution(req.Resolution),
		Mode:       domrepo.ModeSession,
		From:       from,
		To:         to,
		Limit:      req.Limit,
	})
	if err != nil {
		fail()
		return h.errorResponse(c, "snapshot", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, len(rows))
}

// RefreshSnapshots runs refresh_all synchronously. Partial failure answers
// 207 with the per-resolution report.
func (h *Handler) RefreshSnapshots(c echo.Context) error {
	done, fail := observe("snapshot_refresh")
	defer done()

	if !h.limiter.Allow(c.RealIP() + ":refresh") {
		fail()
		h.l.Warn("snapshot refresh rate limited")
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh rate limited"))
	}
	report, err := h.refresher.RefreshAll(c.Request().Context())
	if report == nil {
		fail()
		return h.errorResponse(c, "snapshot_refresh", err)
	}
	if err != nil {
		fail()
		return xhttp.MultiStatusResponse(c, report)
	}
	return xhttp.SuccessResponse(c, report)
}
