package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comunidad-service/internal/service"
	"comunidad-service/internal/util"
)

// RegistrationHandler handles HTTP requests for signup, profiles, and the
// admin approval flow
type RegistrationHandler struct {
	registrationService *service.RegistrationService
	logger              *zap.Logger
}

func NewRegistrationHandler(registrationService *service.RegistrationService, logger *zap.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		registrationService: registrationService,
		logger:              logger,
	}
}

// RegisterRoutes registers registration, profile, and admin routes
func (h *RegistrationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/registro", func(r chi.Router) {
		r.Post("/poblador", h.RegisterPoblador)
		r.Post("/empresa", h.RegisterEmpresa)
	})

	router.Route("/perfil", func(r chi.Router) {
		r.Get("/{userID}", h.GetProfile)
		r.Put("/{userID}", h.UpdateProfile)
	})

	router.Route("/admin", func(r chi.Router) {
		// Add admin auth middleware here in production
		r.Get("/empresas/pendientes", h.ListPendingCompanies)
		r.Post("/empresas/{userID}/aprobar", h.ApproveCompany)
		r.Post("/empresas/{userID}/rechazar", h.RejectCompany)
		r.Get("/buscar", h.SearchAccounts)
	})
}

// RegisterPoblador creates an active resident account from a verified
// identifier plus survey answers
// @Summary Register poblador
// @Tags registro
// @Accept json
// @Produce json
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 412 {object} Response
// @Router /registro/poblador [post]
func (h *RegistrationHandler) RegisterPoblador(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.PobladorRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	account, err := h.registrationService.RegisterPoblador(ctx, &req)
	if err != nil {
		respondWithServiceError(w, err, "Failed to register poblador")
		return
	}

	sanitizeAccount(account)
	respondWithJSON(w, http.StatusCreated, successResponse(account, "Poblador registered successfully"))
	h.logger.Info("Poblador registered via HTTP",
		util.String("user_id", account.UserID.String()),
		util.String("project_id", account.ProjectID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RegisterPoblador"),
	)
}

// RegisterEmpresa creates a pending company account
// @Summary Register empresa
// @Tags registro
// @Accept json
// @Produce json
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 412 {object} Response
// @Router /registro/empresa [post]
func (h *RegistrationHandler) RegisterEmpresa(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.EmpresaRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	account, err := h.registrationService.RegisterEmpresa(ctx, &req)
	if err != nil {
		respondWithServiceError(w, err, "Failed to register empresa")
		return
	}

	sanitizeAccount(account)
	respondWithJSON(w, http.StatusCreated, successResponse(account, "Empresa registered, pending approval"))
	h.logger.Info("Empresa registered via HTTP",
		util.String("user_id", account.UserID.String()),
		util.String("company_name", account.CompanyName),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RegisterEmpresa"),
	)
}

// GetProfile retrieves an account and its survey record
// @Summary Get profile
// @Tags perfil
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /perfil/{userID} [get]
func (h *RegistrationHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	profile, err := h.registrationService.GetProfile(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get profile")
		return
	}

	sanitizeAccount(profile.Account)
	respondWithJSON(w, http.StatusOK, successResponse(profile, "Profile retrieved successfully"))
	h.logger.Debug("Profile retrieved via HTTP",
		util.String("user_id", userID.String()),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetProfile"),
	)
}

// UpdateProfile applies a partial profile update
// @Summary Update profile
// @Tags perfil
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /perfil/{userID} [put]
func (h *RegistrationHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	var req service.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	profile, err := h.registrationService.UpdateProfile(ctx, userID, &req)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update profile")
		return
	}

	sanitizeAccount(profile.Account)
	respondWithJSON(w, http.StatusOK, successResponse(profile, "Profile updated successfully"))
	h.logger.Info("Profile updated via HTTP",
		util.String("user_id", userID.String()),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "UpdateProfile"),
	)
}

// ListPendingCompanies returns empresa accounts awaiting review
// @Summary List pending companies
// @Tags admin
// @Produce json
// @Param limit query int false "Page size (default: 100, max: 1000)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /admin/empresas/pendientes [get]
func (h *RegistrationHandler) ListPendingCompanies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > 1000 {
			respondWithError(w, http.StatusBadRequest, errors.New("invalid limit"), "Limit must be between 1 and 1000")
			return
		}
		limit = parsedLimit
	}

	accounts, err := h.registrationService.ListPendingCompanies(ctx, limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list pending companies")
		return
	}

	for _, account := range accounts {
		sanitizeAccount(account)
	}

	response := successResponse(accounts, "Pending companies retrieved successfully")
	response.Meta = &Meta{Total: len(accounts), PageSize: limit}

	respondWithJSON(w, http.StatusOK, response)
	h.logger.Debug("Pending companies listed via HTTP",
		util.Int("count", len(accounts)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ListPendingCompanies"),
	)
}

// ApproveCompany moves a pending company to active
// @Summary Approve company
// @Tags admin
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /admin/empresas/{userID}/aprobar [post]
func (h *RegistrationHandler) ApproveCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	account, err := h.registrationService.ApproveCompany(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to approve company")
		return
	}

	sanitizeAccount(account)
	respondWithJSON(w, http.StatusOK, successResponse(account, "Company approved successfully"))
	h.logger.Info("Company approved via HTTP",
		util.String("user_id", userID.String()),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ApproveCompany"),
	)
}

// RejectCompany moves a pending company to rejected with a reason
// @Summary Reject company
// @Tags admin
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /admin/empresas/{userID}/rechazar [post]
func (h *RegistrationHandler) RejectCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	account, err := h.registrationService.RejectCompany(ctx, userID, req.Reason)
	if err != nil {
		respondWithServiceError(w, err, "Failed to reject company")
		return
	}

	sanitizeAccount(account)
	respondWithJSON(w, http.StatusOK, successResponse(account, "Company rejected"))
	h.logger.Info("Company rejected via HTTP",
		util.String("user_id", userID.String()),
		util.String("reason", req.Reason),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RejectCompany"),
	)
}

// SearchAccounts runs an admin query against the search index
// @Summary Search accounts
// @Tags admin
// @Produce json
// @Param q query string true "Search query"
// @Param limit query int false "Page size (default: 25, max: 100)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /admin/buscar [get]
func (h *RegistrationHandler) SearchAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	query := r.URL.Query().Get("q")

	limit := 25
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > 100 {
			respondWithError(w, http.StatusBadRequest, errors.New("invalid limit"), "Limit must be between 1 and 100")
			return
		}
		limit = parsedLimit
	}

	docs, err := h.registrationService.SearchAccounts(ctx, query, limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to search accounts")
		return
	}

	response := successResponse(docs, "Search completed successfully")
	response.Meta = &Meta{Total: len(docs), PageSize: limit}

	respondWithJSON(w, http.StatusOK, response)
	h.logger.Debug("Account search via HTTP",
		util.Int("hits", len(docs)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SearchAccounts"),
	)
}
