package api

import (
	"FxRollup/internal/domain/models"
	xhttp "FxRollup/pkg/http"

	"github.com/labstack/echo/v4"
)

// Quality returns the hourly audit records with pass/fail/gap counts.
func (h *Handler) Quality(c echo.Context) error {
	done, fail := observe("quality")
	defer done()

	req := &models.QualityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		fail()
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := xhttp.ParseRange(req.From, req.To)
	if err != nil {
		fail()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", err.Error()))
	}
	report, err := h.quality.Records(c.Request().Context(), req.Symbol, req.Session, from, to)
	if err != nil {
		fail()
		return h.errorResponse(c, "quality", err)
	}
	return xhttp.SuccessResponse(c, report)
}

// QualityGaps lists runs of in-session minutes with no bar.
func (h *Handler) QualityGaps(c echo.Context) error {
	done, fail := observe("quality_gaps")
	defer done()

	req := &models.QualityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		fail()
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := xhttp.ParseRange(req.From, req.To)
	if err != nil {
		fail()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", err.Error()))
	}
	gaps, err := h.quality.Gaps(c.Request().Context(), req.Symbol, req.Session, from, to)
	if err != nil {
		fail()
		return h.errorResponse(c, "quality_gaps", err)
	}
	return xhttp.ListResponse(c, gaps, len(gaps))
}
