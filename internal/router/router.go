// Package router registers the HTTP routes of the API and the middleware
// each group runs.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cafeteria-prebooking/internal/config"
	"github.com/iliyamo/cafeteria-prebooking/internal/handler"
	"github.com/iliyamo/cafeteria-prebooking/internal/middleware"
	"github.com/iliyamo/cafeteria-prebooking/internal/model"
)

// Handlers bundles the route targets.
type Handlers struct {
	Auth     *handler.AuthHandler
	Slots    *handler.SlotHandler
	Bookings *handler.BookingHandler
	Payments *handler.PaymentHandler
}

// Options carries what the middleware needs.  A nil Redis disables both
// the slot cache and the payment rate limiter.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
}

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers every /api route.
func RegisterAPI(e *echo.Echo, h Handlers, o Options) {
	jwt := middleware.JWTAuth(o.JWTSecret)
	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	// logout accepts either a refresh_token body or a bearer token, so it
	// sits outside JWTAuth.
	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/profile", h.Auth.Profile, jwt)

	slots := api.Group("/meal-slots")
	cache := middleware.NewRedisCache(o.Cache, o.Redis)
	slots.GET("", h.Slots.List, cache)
	slots.GET("/:id", h.Slots.Get, cache)
	slots.POST("", h.Slots.Create, jwt, middleware.RequireRole(model.RoleStaff))

	bookings := api.Group("/bookings", jwt)
	bookings.GET("/my-bookings", h.Bookings.MyBookings)
	bookings.GET("/:id", h.Bookings.Get)
	bookings.GET("/:id/payment-state", h.Bookings.PaymentState)

	payments := api.Group("/payments", jwt)
	limit := middleware.NewTokenBucket(o.RateLimit, o.Redis)
	payments.POST("/wallet/contribute", h.Payments.Contribute, limit)
	payments.POST("/settle/:bookingId", h.Payments.Settle, limit)
	payments.GET("/personal-wallet/balance", h.Payments.Balance)
	payments.GET("/personal-wallet/transactions", h.Payments.Transactions)
}
