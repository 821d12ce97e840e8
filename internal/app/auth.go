package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const msgUnauthorized = "Authentication required or not allowed."

// EmailMatcher decides whether a verified email may mutate bookings.
type EmailMatcher interface {
	Allowed(email string) bool
}

// ExactAllowList matches emails byte for byte.
type ExactAllowList map[string]struct{}

func NewExactAllowList(emails []string) ExactAllowList {
	l := ExactAllowList{}
	for _, e := range emails {
		if e != "" {
			l[e] = struct{}{}
		}
	}
	return l
}

func (l ExactAllowList) Allowed(email string) bool {
	if email == "" {
		return false
	}
	_, ok := l[email]
	return ok
}

// FoldAllowList matches trimmed emails case-insensitively.
type FoldAllowList map[string]struct{}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func NewFoldAllowList(emails []string) FoldAllowList {
	l := FoldAllowList{}
	for _, e := range emails {
		if n := normalizeEmail(e); n != "" {
			l[n] = struct{}{}
		}
	}
	return l
}

func (l FoldAllowList) Allowed(email string) bool {
	n := normalizeEmail(email)
	if n == "" {
		return false
	}
	_, ok := l[n]
	return ok
}

// NewAllowList builds the matcher named by strategy ("exact" or "fold").
func NewAllowList(strategy string, emails []string) EmailMatcher {
	if strategy == "exact" {
		return NewExactAllowList(emails)
	}
	return NewFoldAllowList(emails)
}

// Gate guards mutating routes. Bypass is only ever set outside production.
type Gate struct {
	Allow    EmailMatcher
	Sessions *Sessions
	Bypass   bool
}

func (g *Gate) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.Bypass {
			c.Next()
			return
		}
		claims, err := g.Sessions.FromRequest(c.Request)
		if err != nil || !g.Allow.Allowed(claims.Email) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgUnauthorized})
			return
		}
		c.Set("email", claims.Email)
		c.Next()
	}
}
