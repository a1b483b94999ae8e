package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"comunidad-service/internal/service"
	"comunidad-service/internal/util"
)

// DashboardHandler handles HTTP requests for the social indicator dashboard
type DashboardHandler struct {
	indicatorService *service.IndicatorService
	logger           *zap.Logger
}

func NewDashboardHandler(indicatorService *service.IndicatorService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		indicatorService: indicatorService,
		logger:           logger,
	}
}

// RegisterRoutes registers dashboard routes
func (h *DashboardHandler) RegisterRoutes(router chi.Router) {
	router.Route("/indicadores", func(r chi.Router) {
		r.Get("/dashboard", h.GetDashboard)
	})
}

// GetDashboard computes KPIs and per-project indicators over all monitored
// projects
// @Summary Get social indicator dashboard
// @Tags indicadores
// @Produce json
// @Success 200 {object} Response
// @Failure 500 {object} Response
// @Router /indicadores/dashboard [get]
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	dashboard, err := h.indicatorService.Dashboard(ctx)
	if err != nil {
		respondWithServiceError(w, err, "Failed to compute dashboard")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(dashboard, "Dashboard computed successfully"))
	h.logger.Info("Dashboard computed via HTTP",
		util.Int("projects", dashboard.KPIs.ComunidadesMonitoreadas),
		util.Int("residents", dashboard.TotalResidents),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetDashboard"),
	)
}
