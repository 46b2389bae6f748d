package middleware

import (
	"net/http"
	"strings"

	jwtutil "github.com/DeafHustle/vrs-live-final/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// Context keys
const (
	ContextIdentity = "identity"
	ContextRole     = "role"
	ContextVerified = "verified"
)

// Auth JWT 인증 미들웨어. 검증된 identity 를 context 에 저장한다.
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authorization 헤더에서 토큰 추출
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		// "Bearer <token>" 형식 파싱
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		// 토큰 검증
		claims, err := jwtManager.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(ContextIdentity, strings.ToLower(claims.Identity))
		c.Set(ContextRole, claims.Role)
		c.Set(ContextVerified, claims.Verified)

		c.Next()
	}
}
