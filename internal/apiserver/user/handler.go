// Package user 用户领域 - 注册/登录/个人资料 HTTP 处理
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"learning-platform/internal/apiserver/auth"
	"learning-platform/internal/shared/model"
	"learning-platform/internal/shared/storage"
)

// Store 用户处理器依赖的存储接口
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// Handler 用户领域 HTTP 处理器
type Handler struct {
	store Store
	cfg   auth.Config
}

// NewHandler 创建用户处理器
func NewHandler(store Store, cfg auth.Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes 注册用户相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users/register", h.Register)
	mux.HandleFunc("POST /api/users/login", h.Login)
	mux.HandleFunc("GET /api/users/profile", h.GetProfile)
	mux.HandleFunc("PUT /api/users/profile", h.UpdateProfile)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// userSummary 用户摘要 + 令牌，注册/登录/资料更新的响应体
type userSummary struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Role      model.UserRole `json:"role"`
	Token     string         `json:"token"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
// POST /api/users/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "email, password, firstName, lastName are required")
		return
	}
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	// 角色由客户端指定（默认 student），只做枚举校验
	role := model.UserRoleStudent
	if req.Role != "" {
		role = model.UserRole(req.Role)
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid role")
			return
		}
	}

	// 检查邮箱是否已注册（唯一索引兜底并发窗口）
	existing, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[user.register] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}

	// 哈希密码
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("[user.register] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:           generateID(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		log.Printf("[user.register] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	log.Printf("[user] Registered: %s (%s)", user.Email, user.ID)
	h.respondWithToken(w, http.StatusCreated, user)
}

// Login 用户登录
// POST /api/users/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		log.Printf("[user.login] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	// 邮箱不存在与密码错误返回同一消息，不泄露账号是否存在
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	log.Printf("[user] Logged in: %s", user.Email)
	h.respondWithToken(w, http.StatusOK, user)
}

// GetProfile 获取当前用户资料
// GET /api/users/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, no token")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil {
		log.Printf("[user.profile] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile 更新当前用户资料（部分更新：缺省字段保持原值）
// PUT /api/users/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, no token")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil {
		log.Printf("[user.profile] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" {
		email := normalizeEmail(req.Email)
		if !isValidEmail(email) {
			writeError(w, http.StatusBadRequest, "Invalid email format")
			return
		}
		user.Email = email
	}

	// 新密码在任何写入之前校验并哈希：
	// 校验失败时整个请求失败，资料字段不落库
	var passwordHash string
	if req.Password != "" {
		if len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			log.Printf("[user.profile] HashPassword error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		passwordHash = hash
	}

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Email already in use")
			return
		}
		log.Printf("[user.profile] UpdateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	if passwordHash != "" {
		if err := h.store.UpdateUserPassword(r.Context(), user.ID, passwordHash); err != nil {
			log.Printf("[user.profile] UpdateUserPassword error: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to update password")
			return
		}
	}

	h.respondWithToken(w, http.StatusOK, user)
}

// respondWithToken 输出用户摘要和新签发的令牌
func (h *Handler) respondWithToken(w http.ResponseWriter, status int, user *model.User) {
	token, err := auth.GenerateToken(h.cfg, user.ID)
	if err != nil {
		log.Printf("[user] GenerateToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, status, userSummary{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		Token:     token,
	})
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateID() string {
	return fmt.Sprintf("usr-%d", time.Now().UnixNano())
}
