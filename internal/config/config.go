package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	// Store
	DatabaseURL  string        `envconfig:"DATABASE_URL" required:"true"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	// Authorization gate
	AllowedEmails []string `envconfig:"ALLOWED_EMAILS"`
	AuthMatch     string   `envconfig:"AUTH_MATCH" default:"fold"` // exact|fold
	DevBypassAuth bool     `envconfig:"DEV_BYPASS_AUTH" default:"false"`

	// OAuth login
	OAuthProvider     string `envconfig:"OAUTH_PROVIDER" default:"github"` // github|google
	OAuthClientID     string `envconfig:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `envconfig:"OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL  string `envconfig:"OAUTH_REDIRECT_URL"`
	PostLoginRedirect string `envconfig:"POST_LOGIN_REDIRECT" default:"/"`

	// Session
	SessionSecret string        `envconfig:"SESSION_SECRET"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	CookieSecure  bool          `envconfig:"COOKIE_SECURE" default:"false"`

	RedisURL string `envconfig:"REDIS_URL"`

	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// Statistics
	StatsTimezone   string   `envconfig:"STATS_TIMEZONE" default:"UTC"`
	StatsBreakdowns []string `envconfig:"STATS_BREAKDOWNS" default:"reason,person,meal,month"`
	PresetReasons   []string `envconfig:"PRESET_REASONS" default:"Examens,Voyage,Malade,Travail,Sortie"`
	PresetPeople    []string `envconfig:"PRESET_PEOPLE" default:"Julien,Papa,Maman"`

	OTLPEndpoint    string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c Config) Production() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL required")
	}
	if c.DevBypassAuth && c.Production() {
		return errors.New("DEV_BYPASS_AUTH cannot be enabled when APP_ENV=production")
	}
	switch c.AuthMatch {
	case "exact", "fold":
	default:
		return fmt.Errorf("AUTH_MATCH must be exact or fold, got %q", c.AuthMatch)
	}
	switch c.OAuthProvider {
	case "github", "google":
	default:
		return fmt.Errorf("OAUTH_PROVIDER must be github or google, got %q", c.OAuthProvider)
	}
	if !c.DevBypassAuth && c.SessionSecret == "" {
		return errors.New("SESSION_SECRET required")
	}
	if _, err := time.LoadLocation(c.StatsTimezone); err != nil {
		return fmt.Errorf("STATS_TIMEZONE: %w", err)
	}
	for _, b := range c.StatsBreakdowns {
		switch b {
		case "reason", "person", "meal", "month":
		default:
			return fmt.Errorf("unknown stats breakdown %q", b)
		}
	}
	return nil
}

// OAuthConfigured reports whether the login routes can be served.
func (c Config) OAuthConfigured() bool {
	return c.OAuthClientID != "" && c.OAuthClientSecret != "" && c.OAuthRedirectURL != ""
}
