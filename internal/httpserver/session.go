package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tinytelemetry/mailnav/internal/model"
)

const (
	// SessionCookie carries the signed session token.
	SessionCookie = "mailnav_session"

	issuer     = "mailnav"
	claimsKey  = "mailnav.claims"
	bearerAuth = "Bearer "
)

// Claims is the session token payload.
type Claims struct {
	Role   string `json:"role"`
	Domain string `json:"domain"`
	jwt.RegisteredClaims
}

// Username returns the account the session belongs to.
func (c *Claims) Username() string { return c.Subject }

// Sessions issues and verifies HMAC-signed session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions returns a token issuer. The secret must not be empty.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("httpserver: session secret is empty")
	}
	if ttl <= 0 {
		ttl = model.DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for account and returns it with its expiry.
func (s *Sessions) Issue(account model.Account) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role:   account.Role,
		Domain: account.Domain,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   account.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("httpserver: sign session: %w", err)
	}
	return token, exp, nil
}

// Verify parses a token and checks its signature, issuer and expiry.
func (s *Sessions) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("httpserver: session has no subject")
	}
	return claims, nil
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerAuth) {
		return strings.TrimPrefix(h, bearerAuth)
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return v
	}
	return ""
}

// requireSession rejects requests without a valid session using the
// session-expired status, which clients treat as "go to the login page".
func (s *Server) requireSession(c *gin.Context) {
	token := tokenFrom(c)
	if token == "" {
		c.AbortWithStatus(s.cfg.SessionExpiredStatus)
		return
	}
	claims, err := s.sessions.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
		}
		c.AbortWithStatus(s.cfg.SessionExpiredStatus)
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

func claimsOf(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func (s *Server) setSessionCookie(c *gin.Context, token string, exp time.Time) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, token, int(time.Until(exp).Seconds()), "/", "", false, true)
}
