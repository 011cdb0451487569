package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/httpx"
)

type Accounts interface {
	Register(ctx context.Context, fullName, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	VerifyEmail(ctx context.Context, token string) error
	SendPhoneOTP(ctx context.Context, userID int64, phone string) error
	VerifyPhoneOTP(ctx context.Context, userID int64, otp string) error
}

type registerRequest struct {
	FullName string `json:"fullName" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type registerResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

type sendOTPRequest struct {
	Phone string `json:"phone" validate:"required,min=10,max=20"`
}

type verifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewHandler(accounts Accounts, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, logger: logger}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	u, err := h.accounts.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			httpx.WriteError(h.logger, w, http.StatusConflict, err.Error())
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to register user", err)
		return
	}

	httpx.WriteJSON(h.logger, w, http.StatusCreated, registerResponse{ID: u.ID, FullName: u.FullName, Email: u.Email})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			httpx.WriteError(h.logger, w, http.StatusUnauthorized, err.Error())
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to log in", err)
		return
	}

	httpx.WriteJSON(h.logger, w, http.StatusOK, loginResponse{AccessToken: token})
}

func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		httpx.WriteError(h.logger, w, http.StatusBadRequest, "invalid verification token")
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), token); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			httpx.WriteError(h.logger, w, http.StatusBadRequest, "invalid verification token")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to verify email", err)
		return
	}

	httpx.WriteJSON(h.logger, w, http.StatusOK, messageResponse{Message: "email verified successfully"})
}

// HandleProfile echoes the identity carried by the caller's token.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}
	httpx.WriteJSON(h.logger, w, http.StatusOK, claims)
}

func (h *Handler) HandleSendPhoneOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req sendOTPRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	if err := h.accounts.SendPhoneOTP(r.Context(), claims.ID, req.Phone); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpx.WriteError(h.logger, w, http.StatusNotFound, "user not found")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to send phone otp", err, "user_id", claims.ID)
		return
	}

	httpx.WriteJSON(h.logger, w, http.StatusOK, messageResponse{Message: "OTP sent successfully"})
}

func (h *Handler) HandleVerifyPhoneOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req verifyOTPRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	err := h.accounts.VerifyPhoneOTP(r.Context(), claims.ID, req.OTP)
	switch {
	case err == nil:
		httpx.WriteJSON(h.logger, w, http.StatusOK, messageResponse{Message: "phone number verified successfully"})
	case errors.Is(err, domain.ErrInvalidOTP):
		httpx.WriteError(h.logger, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(h.logger, w, http.StatusNotFound, "user not found")
	default:
		httpx.WriteInternal(h.logger, w, "failed to verify phone otp", err, "user_id", claims.ID)
	}
}
