package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"donationdesk/internal/workflow"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenCookie = "access_token"
	actorKey          = "actor"
)

// RoleLookup returns the stored role of a user, or workflow.ErrNotFound once the user is gone.
type RoleLookup func(ctx context.Context, id uuid.UUID) (string, error)

// Auth validates HS256 access tokens issued at login.
type Auth struct {
	secret []byte
	ttl    time.Duration
	// secure switches cookies to SameSite=None; Secure for cross-origin deployments.
	secure bool
	lookup RoleLookup
}

func NewAuth(secret []byte, ttl time.Duration, secureCookies bool) *Auth {
	return &Auth{secret: secret, ttl: ttl, secure: secureCookies}
}

// WithRoleLookup makes every request re-read the caller's role, so deleted or demoted
// users lose access before their token expires.
func (a *Auth) WithRoleLookup(lookup RoleLookup) *Auth {
	a.lookup = lookup
	return a
}

// SetTokenCookie stores the access token as an HttpOnly cookie.
func (a *Auth) SetTokenCookie(c *gin.Context, token string) {
	a.cookie(c, token, int(a.ttl.Seconds()))
}

// ClearTokenCookie removes the access token cookie.
func (a *Auth) ClearTokenCookie(c *gin.Context) {
	a.cookie(c, "", -1)
}

func (a *Auth) cookie(c *gin.Context, value string, maxAge int) {
	sameSite := http.SameSiteLaxMode
	if a.secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, value, maxAge, "/", "", a.secure, true)
}

// RequireAuth accepts any valid token and stores the caller as a workflow.Actor.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return a.RequireRole()
}

// RequireRole validates the JWT and checks the role claim against allowedRoles.
// With no roles given every authenticated user passes.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := a.authenticate(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		if a.lookup != nil {
			role, err := a.lookup(c.Request.Context(), actor.ID)
			switch {
			case errors.Is(err, workflow.ErrNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User no longer exists"))
				return
			case err != nil:
				slog.ErrorContext(c.Request.Context(), "role lookup failed", "user_id", actor.ID, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
				return
			}
			actor.Role = role
		}

		if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, actor.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(actorKey, actor)
		c.Set("userID", actor.ID.String())
		c.Set("userRole", actor.Role)
		c.Next()
	}
}

func (a *Auth) authenticate(c *gin.Context) (workflow.Actor, error) {
	// Cookie first, then the Authorization header.
	tokenString, cookieErr := c.Cookie(accessTokenCookie)
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			return workflow.Actor{}, errors.New("Authorization is missing")
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return workflow.Actor{}, errors.New("Invalid authorization format. Expected 'Bearer <token>'")
		}
		tokenString = parts[1]
	}

	return ParseToken(tokenString, a.secret)
}

// ParseToken verifies tokenString and returns the actor named by its sub and role claims.
func ParseToken(tokenString string, secret []byte) (workflow.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return workflow.Actor{}, errors.New("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return workflow.Actor{}, errors.New("Invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return workflow.Actor{}, errors.New("Invalid token subject")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return workflow.Actor{}, errors.New("Role not found in token")
	}
	return workflow.Actor{ID: id, Role: role}, nil
}

// ActorFrom returns the caller stored by RequireRole.
func ActorFrom(c *gin.Context) (workflow.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return workflow.Actor{}, false
	}
	actor, ok := v.(workflow.Actor)
	return actor, ok
}
