// Package auth 用户认证：JWT 令牌管理、密码哈希、HTTP 中间件
package auth

import (
	"context"
	"fmt"
	"time"

	"learning-platform/internal/shared/model"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// contextKey context 键类型
type contextKey string

const ctxKeyAuthUser contextKey = "auth_user"

// AuthUser 中间件解析出的请求身份
// 由 JWT subject 经数据库回查得到（密码字段已排除）
type AuthUser struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      model.UserRole
}

// Config 认证配置
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration // 令牌有效期，默认 7 天
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{
		TokenTTL: 7 * 24 * time.Hour,
	}
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码（bcrypt 比对本身是常数时间的）
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明，subject 为用户 ID
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken 签发时限令牌
func GenerateToken(cfg Config, userID string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT
// 过期、签名错误、格式错误都在这里失败；不确认用户是否仍然存在
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithAuthUser 将认证用户信息注入 context
// 身份只通过 context 向下游传递，绝不放在任何全局状态里
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, ctxKeyAuthUser, user)
}

// GetAuthUser 从 context 获取认证用户
func GetAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(ctxKeyAuthUser).(*AuthUser)
	return user
}
