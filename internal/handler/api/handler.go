package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FxRollup/internal/domain/models"
	svcmetrics "FxRollup/internal/service/metrics"
	"FxRollup/internal/service/ratelimit"
	"FxRollup/internal/usecase"
	xhttp "FxRollup/pkg/http"
	applogger "FxRollup/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Handler serves the rollup, snapshot, quality and session endpoints.
type Handler struct {
	rollups   *usecase.RollupsUseCase
	quality   *usecase.QualityUseCase
	sessions  *usecase.SessionsUseCase
	refresher *usecase.SnapshotRefresher
	limiter   *ratelimit.Limiter
	checks    []readinessCheck
	l         *applogger.Logger
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// WithReadinessCheck adds a dependency checked by GET /api/health.
func (h *Handler) WithReadinessCheck(name string, check func(ctx context.Context) error) *Handler {
	h.checks = append(h.checks, readinessCheck{name: name, check: check})
	return h
}

// NewHandler builds the API. refreshPerMinute caps POST /snapshots/refresh
// per client.
func NewHandler(
	rollups *usecase.RollupsUseCase,
	quality *usecase.QualityUseCase,
	sessions *usecase.SessionsUseCase,
	refresher *usecase.SnapshotRefresher,
	refreshPerMinute int,
	l *applogger.Logger,
) *Handler {
	if l == nil {
		l = applogger.Nop()
	}
	rate := float64(max(refreshPerMinute, 1))
	return &Handler{
		rollups:   rollups,
		quality:   quality,
		sessions:  sessions,
		refresher: refresher,
		limiter:   ratelimit.New(rate, rate/60),
		l:         l,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/rollups", h.Rollups)
	g.GET("/snapshots/:resolution", h.Snapshot)
	g.POST("/snapshots/refresh", h.RefreshSnapshots)
	g.GET("/quality", h.Quality)
	g.GET("/quality/gaps", h.QualityGaps)
	g.GET("/sessions", h.ListSessions)
	g.PUT("/sessions", h.UpsertSession)
	g.POST("/sessions/:id/disable", h.DisableSession)
}

// observe records latency for endpoint and returns a func to call on error.
func observe(endpoint string) (done func(), fail func()) {
	start := time.Now()
	return func() {
			svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}, func() {
			svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
}

// errorResponse maps domain errors onto HTTP statuses.
func (h *Handler) errorResponse(c echo.Context, endpoint string, err error) error {
	var (
		cfgErr *models.ConfigurationError
		tzErr  *models.TimezoneResolutionError
	)
	switch {
	case errors.As(err, &cfgErr):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(cfgErr.Field, cfgErr.Error()).WithError(err))
	case errors.As(err, &tzErr):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("tz", tzErr.Error()).WithError(err))
	case errors.Is(err, models.ErrSessionNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("%v", err))
	}
	h.l.Error("api request failed", applogger.String("endpoint", endpoint), applogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_INTERNAL", "", http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError).WithError(err))
}
