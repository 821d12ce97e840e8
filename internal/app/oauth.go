package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"mealduty-service/internal/statestore"
)

// EmailFetcher returns the provider-verified email of the user owning client's token.
type EmailFetcher func(ctx context.Context, client *http.Client) (string, error)

// OAuthLogin runs the authorization-code flow against one provider.
type OAuthLogin struct {
	Config     *oauth2.Config
	FetchEmail EmailFetcher
	States     statestore.Store
	StateTTL   time.Duration
	// AfterLogin is where the browser lands once the session cookie is set.
	AfterLogin string
}

// NewOAuthLogin configures the github or google provider.
func NewOAuthLogin(provider, clientID, clientSecret, redirectURL string, states statestore.Store) (*OAuthLogin, error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}
	l := &OAuthLogin{Config: cfg, States: states, StateTTL: 10 * time.Minute, AfterLogin: "/"}

	switch provider {
	case "github":
		cfg.Endpoint = github.Endpoint
		cfg.Scopes = []string{"read:user", "user:email"}
		l.FetchEmail = GitHubEmail("https://api.github.com")
	case "google":
		cfg.Endpoint = google.Endpoint
		cfg.Scopes = []string{googleoauth2.OpenIDScope, googleoauth2.UserinfoEmailScope}
		l.FetchEmail = GoogleEmail
	default:
		return nil, fmt.Errorf("unsupported oauth provider %q", provider)
	}
	return l, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubEmail reads the primary verified address from /user/emails.
func GitHubEmail(apiBase string) EmailFetcher {
	return func(ctx context.Context, client *http.Client) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/user/emails", nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("github emails: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("github emails: status %d", resp.StatusCode)
		}

		var emails []githubEmail
		if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
			return "", fmt.Errorf("decode github emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				return e.Email, nil
			}
		}
		return "", errors.New("no verified primary email on github account")
	}
}

// GoogleEmail reads the userinfo endpoint through the Google API client.
func GoogleEmail(ctx context.Context, client *http.Client) (string, error) {
	srv, err := googleoauth2.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google userinfo: %w", err)
	}
	if info.VerifiedEmail == nil || !*info.VerifiedEmail {
		return "", errors.New("google email not verified")
	}
	return info.Email, nil
}

// GET /api/auth/login
func (a *App) LoginHandler(c *gin.Context) {
	state := uuid.NewString()
	if err := a.OAuth.States.Save(c.Request.Context(), state, a.OAuth.StateTTL); err != nil {
		log.Printf("[auth] save state: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgInternal})
		return
	}
	c.Redirect(http.StatusFound, a.OAuth.Config.AuthCodeURL(state))
}

// GET /api/auth/callback
func (a *App) OAuthCallbackHandler(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "authorization code and state required"})
		return
	}

	ok, err := a.OAuth.States.Consume(ctx, state)
	if err != nil {
		log.Printf("[auth] consume state: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgInternal})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid or expired state"})
		return
	}

	token, err := a.OAuth.Config.Exchange(ctx, code)
	if err != nil {
		log.Printf("[auth] exchange: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to exchange code for token"})
		return
	}

	email, err := a.OAuth.FetchEmail(ctx, a.OAuth.Config.Client(ctx, token))
	if err != nil {
		log.Printf("[auth] fetch email: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no verified email"})
		return
	}

	if a.Sessions == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "sessions not configured"})
		return
	}
	session, err := a.Sessions.Issue(email)
	if err != nil {
		log.Printf("[auth] issue session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgInternal})
		return
	}
	a.Sessions.SetCookie(c, session)
	log.Printf("[auth] signed in %s", email)
	c.Redirect(http.StatusFound, a.OAuth.AfterLogin)
}

// GET /api/auth/session
func (a *App) SessionHandler(c *gin.Context) {
	claims, err := a.Sessions.FromRequest(c.Request)
	if err != nil {
		if a.Gate.Bypass {
			c.JSON(http.StatusOK, SessionResponse{Allowed: true, DevMode: true})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, SessionResponse{
		Email:   claims.Email,
		Allowed: a.Gate.Bypass || a.Gate.Allow.Allowed(claims.Email),
		DevMode: a.Gate.Bypass,
	})
}

// POST /api/auth/logout
func (a *App) LogoutHandler(c *gin.Context) {
	if a.Sessions != nil {
		a.Sessions.ClearCookie(c)
	}
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}
