package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mealduty-service/internal/app"
	"mealduty-service/internal/config"
	"mealduty-service/internal/events"
	"mealduty-service/internal/obs"
	"mealduty-service/internal/server"
	"mealduty-service/internal/statestore"
	"mealduty-service/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracer, err := obs.InitTracer(ctx, "mealduty-service", cfg.AppEnv, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer shutdownTracer(context.Background())

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close(context.Background())

	var pub events.Publisher = events.Nop{}
	if cfg.RabbitURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitURL, cfg.BookingExchange)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		pub = rp
	}
	defer pub.Close()

	loc, _ := time.LoadLocation(cfg.StatsTimezone) // checked by config.Validate

	var sessions *app.Sessions
	if cfg.SessionSecret != "" {
		sessions = app.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure)
	}

	appInstance := &app.App{
		Store:  db,
		Events: pub,
		Stats: app.StatsConfig{
			Location:   loc,
			Reasons:    cfg.PresetReasons,
			People:     cfg.PresetPeople,
			Breakdowns: cfg.StatsBreakdowns,
		},
		Gate: &app.Gate{
			Allow:    app.NewAllowList(cfg.AuthMatch, cfg.AllowedEmails),
			Sessions: sessions,
			Bypass:   cfg.DevBypassAuth,
		},
		Sessions:     sessions,
		StoreTimeout: cfg.StoreTimeout,
	}
	if cfg.DevBypassAuth {
		log.Println("[auth] DEV_BYPASS_AUTH enabled: mutating routes are unauthenticated")
	}

	if cfg.OAuthConfigured() {
		var states statestore.Store = statestore.NewMemory()
		if cfg.RedisURL != "" {
			rs, err := statestore.NewRedis(ctx, cfg.RedisURL)
			if err != nil {
				log.Fatalf("redis: %v", err)
			}
			defer rs.Close()
			states = rs
		}
		login, err := app.NewOAuthLogin(cfg.OAuthProvider, cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURL, states)
		if err != nil {
			log.Fatalf("oauth: %v", err)
		}
		login.AfterLogin = cfg.PostLoginRedirect
		appInstance.OAuth = login
	} else {
		log.Println("[auth] oauth not configured, login routes disabled")
	}

	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	appInstance.Register(router)

	if err := server.Run(router, cfg.Port, cfg.ShutdownTimeout); err != nil {
		log.Fatalf("server: %v", err)
	}
}
