package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dm-chat/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware exige un access token válido en el header Authorization
// y deja los claims en el contexto para los handlers protegidos.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	if jwtSvc == nil {
		panic("http: JWTAuthMiddleware requires a JWTService")
	}
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// bearerToken extrae el token de un header Authorization con esquema Bearer,
// sin distinguir mayúsculas en el esquema.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// GetAuthClaims obtiene los claims que el middleware dejó en el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
