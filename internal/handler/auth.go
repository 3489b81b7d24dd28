package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/plant-maintenance/internal/auth"
	"github.com/iliyamo/plant-maintenance/internal/model"
	"github.com/iliyamo/plant-maintenance/internal/repository"
	"github.com/iliyamo/plant-maintenance/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Creds *auth.CredentialStore
}

func NewAuthHandler(creds *auth.CredentialStore) *AuthHandler {
	return &AuthHandler{Creds: creds}
}

// ----- DTOs -----

type registerReq struct {
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	AssignedPlant *string `json:"assignedPlant"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type userPart struct {
	ID             uint64  `json:"id"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	AssignedPlant  *string `json:"assignedPlant"`
	ApprovalStatus string  `json:"approvalStatus"`
	IsActive       bool    `json:"isActive"`
}
type loginResp struct {
	User         userPart `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

func publicUser(u *model.User) userPart {
	return userPart{
		ID:             u.ID,
		Email:          u.Email,
		Role:           u.Role,
		AssignedPlant:  u.AssignedPlant,
		ApprovalStatus: u.ApprovalStatus,
		IsActive:       u.IsActive,
	}
}

// Register: create a self-service account, auto-approved.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Creds.Register(ctx, req.Email, req.Password, req.AssignedPlant, c.RealIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail),
			errors.Is(err, utils.ErrPasswordTooShort),
			errors.Is(err, utils.ErrPasswordUpper),
			errors.Is(err, utils.ErrPasswordLower),
			errors.Is(err, utils.ErrPasswordDigit),
			errors.Is(err, utils.ErrPasswordSpecial):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "user already exists"})
		default:
			return internalError(c, err)
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": publicUser(u)})
}

// Login: run the credential state machine and return a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Creds.Login(ctx, req.Email, req.Password, c.RealIP())
	if err != nil {
		return loginErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, loginResp{
		User:         publicUser(out.User),
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	})
}

// Refresh: exchange a live refresh token for a new access token only.
// The refresh token is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	access, _, err := h.Creds.Refresh(ctx, req.RefreshToken, c.RealIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		case errors.Is(err, auth.ErrAccountInactive):
			return c.JSON(http.StatusForbidden, echo.Map{"error": auth.ErrAccountInactive.Error()})
		default:
			return internalError(c, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"accessToken": access})
}

// Logout: delete the presented refresh token. Idempotent; an unknown or
// already-deleted token still yields 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.RefreshToken != "" {
		if err := h.Creds.Logout(ctx, req.RefreshToken, c.RealIP()); err != nil {
			return internalError(c, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me: return the authenticated user's public record.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Creds.Me(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": publicUser(u)})
}

// loginErrorResponse maps credential-store errors for the login paths.
// Credential failures stay generic; account-state failures are explicit
// by design.
func loginErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		return c.JSON(http.StatusLocked, echo.Map{"error": auth.ErrAccountLocked.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		// err.Error() carries the graduated remaining-attempts wording
		// when three or fewer attempts are left.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, auth.ErrAccountPending),
		errors.Is(err, auth.ErrAccountRejected),
		errors.Is(err, auth.ErrAccountInactive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	default:
		return internalError(c, err)
	}
}

func internalError(c echo.Context, err error) error {
	c.Logger().Errorf("internal error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
