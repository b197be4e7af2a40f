// Package server 路由配置与核心基础设施
//
// 本文件定义 HTTP API 路由，将请求分发到各领域独立包。
package server

import (
	"encoding/json"
	"net/http"

	"learning-platform/internal/apiserver/auth"
	"learning-platform/internal/apiserver/course"
	"learning-platform/internal/apiserver/user"
	"learning-platform/internal/shared/storage"
)

// Handler 聚合路由所需的依赖
type Handler struct {
	store   storage.PersistentStore
	authCfg auth.Config
	metrics *Metrics
}

// NewHandler 创建顶层 HTTP 处理器
func NewHandler(store storage.PersistentStore, authCfg auth.Config) *Handler {
	return &Handler{
		store:   store,
		authCfg: authCfg,
		metrics: NewMetrics("learning_platform"),
	}
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 用户 (User):
//   - POST /api/users/register  - 注册（公开）
//   - POST /api/users/login     - 登录（公开）
//   - GET  /api/users/profile   - 当前用户资料
//   - PUT  /api/users/profile   - 更新资料
//
// 课程 (Course):
//   - GET    /api/courses              - 分页列表（公开）
//   - GET    /api/courses/{id}         - 详情（公开）
//   - POST   /api/courses              - 创建（instructor/admin）
//   - PUT    /api/courses/{id}         - 更新（讲师本人）
//   - DELETE /api/courses/{id}         - 删除（讲师本人）
//   - POST   /api/courses/{id}/reviews - 提交评价（已登录任意角色）
//
// 中间件顺序：CORS → 认证 → 指标 → 业务路由
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 欢迎信息与健康检查
	mux.HandleFunc("GET /{$}", h.Welcome)
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// User 接口
	userHandler := user.NewHandler(h.store, h.authCfg)
	userHandler.RegisterRoutes(mux)

	// Course 接口
	courseHandler := course.NewHandler(h.store)
	courseHandler.RegisterRoutes(mux)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	authedHandler := auth.Middleware(h.authCfg, h.store)(apiHandler)

	// 应用 CORS 中间件
	return corsMiddleware(authedHandler)
}

// Welcome 根路径欢迎信息
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Learning Platform API",
	})
}

// Health 服务健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
