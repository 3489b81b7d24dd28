package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/plant-maintenance/internal/auth"
	"github.com/iliyamo/plant-maintenance/internal/repository"
)

// QRHandler serves the admin QR-code endpoint and the passwordless
// qr-login endpoint used by field devices.
type QRHandler struct {
	QR    *auth.QRTokenService
	Creds *auth.CredentialStore
}

func NewQRHandler(qr *auth.QRTokenService, creds *auth.CredentialStore) *QRHandler {
	return &QRHandler{QR: qr, Creds: creds}
}

type qrLoginReq struct {
	QRToken string `json:"qrToken"`
}

// QRCode generates a fresh QR token for the target user and renders it
// as a PNG. Restricted to ADMIN and MANAGER by middleware; each call
// replaces the user's previous QR credential.
func (h *QRHandler) QRCode(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || userID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token, err := h.QR.Generate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return internalError(c, err)
	}

	png, err := qrcode.Encode(token, qrcode.Medium, 256)
	if err != nil {
		return internalError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// QRLogin validates a device token and returns the same response shape
// as a password login. Unknown and expired tokens share one generic 401
// so token existence never leaks; a deactivated or unapproved owner is
// reported distinctly.
func (h *QRHandler) QRLogin(c echo.Context) error {
	var req qrLoginReq
	if err := c.Bind(&req); err != nil || req.QRToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "qrToken required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Creds.QRLogin(ctx, req.QRToken, c.RealIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountInactive):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account not active"})
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		default:
			return internalError(c, err)
		}
	}
	return c.JSON(http.StatusOK, loginResp{
		User:         publicUser(out.User),
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	})
}
