package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/repositories"
)

const pendingStatus = "PENDING"

// AuthHandler implements registration, login and the email driven account flows.
type AuthHandler struct {
	Users           AccountStore
	Sessions        SessionManager
	Tokens          TokenStore
	Mail            Mailer
	Limiter         RateLimiter
	BaseURL         string
	DailyCredits    int
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	NowFunc         func() time.Time
}

// Register handles POST /auth/register requests.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Tokens == nil || h.Mail == nil {
		logger.Error("registration dependencies unavailable", "hasUsers", h.Users != nil, "hasTokens", h.Tokens != nil, "hasMail", h.Mail != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}
	if throttled(w, r, h.Limiter, scopeRegister) {
		return
	}

	var req registerRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}
	req.Email = normalizeEmail(req.Email)

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		respondError(ctx, w, http.StatusBadRequest, "email address already exists")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		respondFailure(ctx, w, err, "unable to verify existing accounts")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondFailure(ctx, w, err, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:               uuid.NewString(),
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Email:            req.Email,
		Password:         hashed,
		Location:         strings.TrimSpace(req.Location),
		Profession:       strings.TrimSpace(req.Profession),
		DailyPostCredits: h.DailyCredits,
		LastCreditReset:  now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusBadRequest, "email address already exists")
			return
		}
		respondFailure(ctx, w, err, "failed to create account")
		return
	}

	link, err := h.issueLink(r, user.ID, models.TokenEmailVerification, h.VerificationTTL, "verify")
	if err != nil {
		logger.Error("verification token not stored", "userId", user.ID, "error", err)
	} else if err := h.Mail.SendVerification(ctx, user, link); err != nil {
		logger.Error("verification email not sent", "userId", user.ID, "error", err)
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{
		"success": pendingStatus,
		"message": "Verification email has been sent to your account. Check your email for further instructions.",
	})
}

// Login handles POST /auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}
	if throttled(w, r, h.Limiter, scopeLogin) {
		return
	}

	var req loginRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}
	req.Email = normalizeEmail(req.Email)

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, err, "unable to sign in")
			return
		}
		logger.Warn("login unknown email", "email", req.Email)
		respondError(ctx, w, http.StatusBadRequest, "invalid email or password")
		return
	}

	if err := auth.ComparePassword(user.Password, req.Password); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusBadRequest, "invalid email or password")
		return
	}

	if !user.Verified {
		respondError(ctx, w, http.StatusBadRequest, "user email is not verified. Check your email account and verify your email")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{
		Success:      true,
		Message:      "Login successfully",
		User:         user,
		Token:        tokens.AccessToken,
		ExpiresAt:    tokens.AccessExpiresAt,
		RefreshToken: tokens.RefreshToken,
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req refreshRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			logger.Warn("refresh rejected", "error", err)
			respondError(ctx, w, http.StatusUnauthorized, "unable to refresh session")
			return
		}
		respondFailure(ctx, w, err, "unable to refresh session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"tokens": tokens})
}

// Logout revokes the session behind a refresh token. Access tokens already issued stay valid
// until they expire.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Sessions == nil {
		logging.FromContext(ctx).Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req refreshRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	if err := h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, "session not found")
			return
		}
		respondFailure(ctx, w, err, "unable to sign out")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

// VerifyEmail handles GET /users/verify/{userId}/{token}.
func (h AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Users == nil || h.Tokens == nil {
		logging.FromContext(ctx).Error("verification dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	userID := r.PathValue("userId")
	if ok := h.checkLink(w, r, userID, r.PathValue("token"), models.TokenEmailVerification); !ok {
		return
	}

	if err := h.Users.MarkVerified(ctx, userID, h.now()); err != nil {
		respondFailure(ctx, w, err, "unable to verify email")
		return
	}
	if err := h.Tokens.Delete(ctx, userID, models.TokenEmailVerification); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Warn("verification token not removed", "userId", userID, "error", err)
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "Email verified successfully"})
}

// RequestPasswordReset handles POST /users/request-passwordreset.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Tokens == nil || h.Mail == nil {
		logger.Error("password reset dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}
	if throttled(w, r, h.Limiter, scopePasswordReset) {
		return
	}

	var req passwordResetRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.Users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "email address not found")
			return
		}
		respondFailure(ctx, w, err, "unable to process password reset")
		return
	}

	pending := map[string]string{
		"success": pendingStatus,
		"message": "Password reset link has been sent to your account.",
	}

	existing, err := h.Tokens.Find(ctx, user.ID, models.TokenPasswordReset)
	switch {
	case err == nil && h.now().Before(existing.ExpiresAt):
		respondJSON(ctx, w, http.StatusCreated, pending)
		return
	case err != nil && !errors.Is(err, repositories.ErrNotFound):
		respondFailure(ctx, w, err, "unable to process password reset")
		return
	}

	link, err := h.issueLink(r, user.ID, models.TokenPasswordReset, h.ResetTTL, "reset-password")
	if err != nil {
		respondFailure(ctx, w, err, "unable to process password reset")
		return
	}
	if err := h.Mail.SendPasswordReset(ctx, user, link); err != nil {
		logger.Error("password reset email not sent", "userId", user.ID, "error", err)
		if delErr := h.Tokens.Delete(ctx, user.ID, models.TokenPasswordReset); delErr != nil {
			logger.Warn("password reset token not removed", "userId", user.ID, "error", delErr)
		}
		respondError(ctx, w, http.StatusInternalServerError, "unable to send password reset email")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, pending)
}

// ValidateResetLink handles GET /users/reset-password/{userId}/{token}.
func (h AuthHandler) ValidateResetLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Tokens == nil {
		logging.FromContext(ctx).Error("token store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	userID := r.PathValue("userId")
	if ok := h.checkLink(w, r, userID, r.PathValue("token"), models.TokenPasswordReset); !ok {
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "userId": userID})
}

// ResetPassword handles POST /users/reset-password.
func (h AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Users == nil || h.Tokens == nil {
		logging.FromContext(ctx).Error("password reset dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req resetPasswordRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	if ok := h.checkLink(w, r, req.UserID, req.Token, models.TokenPasswordReset); !ok {
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondFailure(ctx, w, err, "failed to secure password")
		return
	}
	if err := h.Users.SetPassword(ctx, req.UserID, hashed, h.now()); err != nil {
		respondFailure(ctx, w, err, "unable to reset password")
		return
	}
	if err := h.Tokens.Delete(ctx, req.UserID, models.TokenPasswordReset); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Warn("password reset token not removed", "userId", req.UserID, "error", err)
	}
	if h.Sessions != nil {
		if _, err := h.Sessions.RevokeAll(ctx, req.UserID); err != nil {
			logging.FromContext(ctx).Warn("sessions not revoked after password reset", "userId", req.UserID, "error", err)
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "Password successfully reset"})
}

// issueLink stores a fresh hashed token and returns the link mailed to the user.
func (h AuthHandler) issueLink(r *http.Request, userID, purpose string, ttl time.Duration, path string) (string, error) {
	token, hash, err := auth.NewOneTimeToken()
	if err != nil {
		return "", err
	}
	now := h.now()
	record := models.OneTimeToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := h.Tokens.Save(r.Context(), record); err != nil {
		return "", fmt.Errorf("save %s token: %w", purpose, err)
	}
	return fmt.Sprintf("%s/users/%s/%s/%s", strings.TrimRight(h.BaseURL, "/"), path, userID, token), nil
}

// checkLink writes an error response and returns false when token is not the live token for userID.
func (h AuthHandler) checkLink(w http.ResponseWriter, r *http.Request, userID, token, purpose string) bool {
	ctx := r.Context()
	if userID == "" || token == "" {
		respondError(ctx, w, http.StatusBadRequest, "invalid link")
		return false
	}

	record, err := h.Tokens.Find(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusBadRequest, "invalid link")
			return false
		}
		respondFailure(ctx, w, err, "unable to validate link")
		return false
	}
	if !h.now().Before(record.ExpiresAt) {
		respondError(ctx, w, http.StatusBadRequest, "link has expired")
		return false
	}
	if err := auth.ComparePassword(record.TokenHash, token); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid link")
		return false
	}
	return true
}

type registerRequest struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	Location   string `json:"location"`
	Profession string `json:"profession"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginResponse struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message"`
	User         models.User `json:"user"`
	Token        string      `json:"token"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	RefreshToken string      `json:"refreshToken"`
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
