package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"comunidad-service/internal/service"
	"comunidad-service/internal/util"
)

// AuthHandler handles HTTP requests for code verification and login
type AuthHandler struct {
	otpService          *service.OTPService
	registrationService *service.RegistrationService
	logger              *zap.Logger
}

func NewAuthHandler(otpService *service.OTPService, registrationService *service.RegistrationService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		otpService:          otpService,
		registrationService: registrationService,
		logger:              logger,
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/otp/send", h.SendCode)
		r.Post("/otp/verify", h.VerifyCode)
		r.Post("/login", h.Login)
	})
}

// SendCode issues a verification code for an email or phone identifier
// @Summary Send verification code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 429 {object} Response
// @Router /auth/otp/send [post]
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.otpService.SendCode(ctx, req.Identifier)
	if err != nil {
		respondWithServiceError(w, err, "Failed to send verification code")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(result, "Verification code sent"))
	h.logger.Info("Verification code sent via HTTP",
		util.String("channel", string(result.Channel)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SendCode"),
	)
}

// VerifyCode checks a candidate code against the pending challenge
// @Summary Verify code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Failure 410 {object} Response
// @Failure 429 {object} Response
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Identifier string `json:"identifier"`
		Code       string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.otpService.VerifyCode(ctx, req.Identifier, req.Code)
	if err != nil {
		respondWithServiceError(w, err, "Failed to verify code")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(result, "Code verified successfully"))
	h.logger.Info("Code verified via HTTP",
		util.Bool("account_exists", result.AccountExists),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyCode"),
	)
}

// Login authenticates a password-bearing account
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 403 {object} Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	account, err := h.registrationService.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		respondWithServiceError(w, err, "Failed to login")
		return
	}

	sanitizeAccount(account)
	respondWithJSON(w, http.StatusOK, successResponse(account, "Login successful"))
	h.logger.Info("Login via HTTP",
		util.String("user_id", account.UserID.String()),
		util.String("user_type", string(account.UserType)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}
