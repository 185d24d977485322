package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/community-messaging/pkg/response"
)

const currentEmailKey = "current_email"

// TokenIssuer 签发与校验 HS256 token，subject 为用户 email
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *TokenIssuer) Issue(email string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse 返回 token 中的 email
func (t *TokenIssuer) Parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Auth 从 Authorization: Bearer 或 token 查询参数（websocket 握手用）读取 token
func Auth(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
		if raw == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}
		email, err := issuer.Parse(raw)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(currentEmailKey, email)
		c.Next()
	}
}

// CurrentEmail 当前登录用户的 email，未经过 Auth 时为空
func CurrentEmail(c *gin.Context) string {
	return c.GetString(currentEmailKey)
}
