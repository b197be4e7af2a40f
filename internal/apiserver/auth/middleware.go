package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"learning-platform/internal/shared/model"
)

// UserLookup 中间件回查用户所需的最小存储接口
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// 免认证路由白名单（前缀匹配）
var publicPrefixes = []string{
	"/api/users/register",
	"/api/users/login",
	"/health",
	"/metrics",
}

func isPublicRoute(method, path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	// 根路径欢迎信息
	if path == "/" {
		return true
	}
	// 课程浏览（列表 + 详情）公开，其他方法需要认证
	if method == http.MethodGet &&
		(path == "/api/courses" || strings.HasPrefix(path, "/api/courses/")) {
		return true
	}
	return false
}

// Middleware 创建 JWT 认证中间件
//
// 受保护路由的处理链：提取 Bearer Token → 验证 JWT →
// 按 subject 回查用户（排除密码字段）→ 将身份注入 context。
// 任何一步失败都以 401 终止请求。
func Middleware(cfg Config, store UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 公开路由：直接放行
			if isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 提取 Bearer Token
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if authHeader == "" || len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}

			// 解析 JWT
			claims, err := ParseToken(cfg, parts[1])
			if err != nil {
				log.Printf("[auth] token parse error: %v", err)
				writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
				return
			}

			// 回查用户，确认身份仍然有效（令牌本身不保证用户存在）
			user, err := store.GetUserByID(r.Context(), claims.Subject)
			if err != nil {
				log.Printf("[auth] user lookup error: %v", err)
				writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, user not found")
				return
			}

			// 注入 auth user 到 context
			authUser := &AuthUser{
				ID:        user.ID,
				Email:     user.Email,
				FirstName: user.FirstName,
				LastName:  user.LastName,
				Role:      user.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
		})
	}
}

// RequireRole 角色授权检查，按路由组合使用
// 在认证中间件之后执行：身份缺失返回 401，角色不在允许集合内返回 403
func RequireRole(roles ...model.UserRole) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := GetAuthUser(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden,
				"User role "+string(user.Role)+" is not authorized to access this route")
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
