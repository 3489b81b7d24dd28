// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/plant-maintenance/internal/auth"
	"github.com/iliyamo/plant-maintenance/internal/handler"
	"github.com/iliyamo/plant-maintenance/internal/middleware"
	"github.com/iliyamo/plant-maintenance/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the auth endpoints. The unauthenticated endpoints
// (register, login, refresh, qr-login) run behind the rate limiter;
// logout and me require a valid access token. The QR code endpoint is
// additionally restricted to ADMIN and MANAGER.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, q *handler.QRHandler, issuer *auth.Issuer, limiter echo.MiddlewareFunc) {
	public := e.Group("", limiter)
	public.POST("/auth/register", a.Register)
	public.POST("/auth/login", a.Login)
	public.POST("/auth/refresh", a.Refresh)
	public.POST("/qr-login", q.QRLogin)

	protected := e.Group("", middleware.JWTAuth(issuer))
	protected.POST("/auth/logout", a.Logout)
	protected.GET("/auth/me", a.Me)

	admin := e.Group("/qr", middleware.JWTAuth(issuer), middleware.RequireRole(model.RoleAdmin, model.RoleManager))
	admin.GET("/users/:userId/qr-code", q.QRCode)
}
