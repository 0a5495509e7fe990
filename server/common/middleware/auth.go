package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"s4/server/common/apperr"
	"s4/server/common/transport/httpresp"
)

const (
	ContextPrincipalID = "auth_principal_id"
	ContextRole        = "auth_role"
)

type tokenAuth interface {
	ParseAuthContext(token string) (userID, role string, err error)
}

func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.CodeUnauthorized, httpresp.ErrMissingBearerToken))
			return
		}
		userID, role, err := auth.ParseAuthContext(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.CodeUnauthorized, httpresp.ErrInvalidToken))
			return
		}
		c.Set(ContextPrincipalID, userID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[strings.TrimSpace(role)] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if _, ok := allowed[role]; !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewErrorResponse(apperr.CodeAuthorizationDenied, httpresp.ErrInsufficientRole))
			return
		}
		c.Next()
	}
}

// StaticBearer guards machine-to-machine hooks with a shared token. An empty token
// disables the check.
func StaticBearer(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		token, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.CodeUnauthorized, httpresp.ErrInvalidToken))
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal set by AuthRequired.
func PrincipalFrom(c *gin.Context) (string, bool) {
	principal := c.GetString(ContextPrincipalID)
	return principal, principal != ""
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
