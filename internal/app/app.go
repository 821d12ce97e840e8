package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"mealduty-service/internal/events"
	"mealduty-service/internal/store"
)

type App struct {
	Store  store.Store
	Events events.Publisher
	Stats  StatsConfig
	Gate   *Gate
	// Sessions is nil when no session secret is configured.
	Sessions *Sessions
	// OAuth is nil when no provider credentials are configured.
	OAuth *OAuthLogin

	StoreTimeout time.Duration
	Now          func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.StoreTimeout)
}

// Register mounts every route on router.
func (a *App) Register(router *gin.Engine) {
	router.GET("/healthz", a.HealthHandler)

	api := router.Group("/api")
	{
		book := api.Group("/book")
		{
			book.GET("", a.ListBookingsHandler)
			book.POST("", a.Gate.Require(), a.SaveBookingHandler)
			book.PATCH("", a.Gate.Require(), a.ReimburseBookingHandler)
			book.DELETE("", a.Gate.Require(), a.DeleteBookingHandler)
		}

		auth := api.Group("/auth")
		{
			if a.OAuth != nil {
				auth.GET("/login", a.LoginHandler)
				auth.GET("/callback", a.OAuthCallbackHandler)
			}
			auth.GET("/session", a.SessionHandler)
			auth.POST("/logout", a.LogoutHandler)
		}
	}
}
