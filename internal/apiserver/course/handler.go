// Package course 课程领域 - 课程 CRUD 与评价 HTTP 处理
package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"learning-platform/internal/apiserver/auth"
	"learning-platform/internal/shared/model"
	"learning-platform/internal/shared/storage"
)

// Store 课程处理器依赖的存储接口
// 用户查询用于填充讲师/评价人的公开字段
type Store interface {
	storage.CourseStore

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*model.User, error)
}

// Handler 课程领域 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建课程处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册课程相关路由
// 浏览公开；创建/修改/删除限 instructor 与 admin；评价对所有角色开放
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	instructorOnly := auth.RequireRole(model.UserRoleInstructor, model.UserRoleAdmin)
	anyRole := auth.RequireRole(model.UserRoleStudent, model.UserRoleInstructor, model.UserRoleAdmin)

	mux.HandleFunc("GET /api/courses", h.List)
	mux.HandleFunc("GET /api/courses/{id}", h.Get)
	mux.HandleFunc("POST /api/courses", instructorOnly(h.Create))
	mux.HandleFunc("PUT /api/courses/{id}", instructorOnly(h.Update))
	mux.HandleFunc("DELETE /api/courses/{id}", instructorOnly(h.Delete))
	mux.HandleFunc("POST /api/courses/{id}/reviews", anyRole(h.AddReview))
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type createCourseRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Level              string   `json:"level"`
	Price              float64  `json:"price"`
	Duration           float64  `json:"duration"`
	Topics             []string `json:"topics"`
	Requirements       []string `json:"requirements"`
	LearningObjectives []string `json:"learningObjectives"`
	IsPublished        bool     `json:"isPublished"`
}

// updateCourseRequest 部分更新：nil 字段保持原值
type updateCourseRequest struct {
	Title              *string   `json:"title"`
	Description        *string   `json:"description"`
	Category           *string   `json:"category"`
	Level              *string   `json:"level"`
	Price              *float64  `json:"price"`
	Duration           *float64  `json:"duration"`
	Topics             *[]string `json:"topics"`
	Requirements       *[]string `json:"requirements"`
	LearningObjectives *[]string `json:"learningObjectives"`
	IsPublished        *bool     `json:"isPublished"`
}

type addReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// publicUser 讲师/评价人的公开字段（无密码、无时间戳）
type publicUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

// courseListItem 列表项：讲师已填充，评价保持原始引用
type courseListItem struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Instructor         publicUser        `json:"instructor"`
	Category           string            `json:"category"`
	Level              model.CourseLevel `json:"level"`
	Price              float64           `json:"price"`
	Duration           float64           `json:"duration"`
	Topics             []string          `json:"topics"`
	Requirements       []string          `json:"requirements"`
	LearningObjectives []string          `json:"learningObjectives"`
	IsPublished        bool              `json:"isPublished"`
	EnrolledStudents   int               `json:"enrolledStudents"`
	Rating             float64           `json:"rating"`
	Reviews            []model.Review    `json:"reviews"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// reviewDetail 详情中的评价：评价人已填充（仅姓名）
type reviewDetail struct {
	User      publicUser `json:"user"`
	Rating    int        `json:"rating"`
	Comment   string     `json:"comment"`
	CreatedAt time.Time  `json:"createdAt"`
}

// courseDetail 详情：讲师与评价人都已填充
type courseDetail struct {
	courseListItem
	Reviews []reviewDetail `json:"reviews"`
}

type listResponse struct {
	Courses []courseListItem `json:"courses"`
	Page    int              `json:"page"`
	Pages   int              `json:"pages"`
	Total   int              `json:"total"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create 创建课程
// POST /api/courses
// 讲师强制为当前身份，请求体中的 instructor 字段被忽略（防冒名）
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, no token")
		return
	}

	var req createCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := time.Now()
	course := &model.Course{
		ID:                 generateID(),
		Title:              req.Title,
		Description:        req.Description,
		Instructor:         authUser.ID,
		Category:           req.Category,
		Level:              model.CourseLevel(req.Level),
		Price:              req.Price,
		Duration:           req.Duration,
		Topics:             req.Topics,
		Requirements:       req.Requirements,
		LearningObjectives: req.LearningObjectives,
		IsPublished:        req.IsPublished,
		EnrolledStudents:   0,
		Rating:             0,
		Reviews:            []model.Review{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := course.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateCourse(r.Context(), course); err != nil {
		log.Printf("[course] Create error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create course")
		return
	}

	log.Printf("[course] Created: %s by %s", course.ID, authUser.ID)
	writeJSON(w, http.StatusCreated, course)
}

// List 分页列出课程（新→旧）
// GET /api/courses?page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 10)
	offset := (page - 1) * limit

	courses, total, err := h.store.ListCourses(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[course] List error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list courses")
		return
	}

	instructors, err := h.lookupUsers(r.Context(), instructorIDs(courses))
	if err != nil {
		log.Printf("[course] List user lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list courses")
		return
	}

	items := make([]courseListItem, 0, len(courses))
	for _, c := range courses {
		items = append(items, toListItem(c, instructors))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Courses: items,
		Page:    page,
		Pages:   (total + limit - 1) / limit,
		Total:   total,
	})
}

// Get 获取课程详情，填充讲师和评价人公开字段
// GET /api/courses/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	course, err := h.store.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[course] Get error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get course")
		return
	}
	if course == nil {
		writeError(w, http.StatusNotFound, "Course not found")
		return
	}

	ids := []string{course.Instructor}
	for _, rv := range course.Reviews {
		ids = append(ids, rv.User)
	}
	users, err := h.lookupUsers(r.Context(), ids)
	if err != nil {
		log.Printf("[course] Get user lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get course")
		return
	}

	detail := courseDetail{
		courseListItem: toListItem(course, users),
		Reviews:        make([]reviewDetail, 0, len(course.Reviews)),
	}
	for _, rv := range course.Reviews {
		reviewer := publicUser{ID: rv.User}
		if u, ok := users[rv.User]; ok {
			// 评价人只暴露姓名
			reviewer.FirstName = u.FirstName
			reviewer.LastName = u.LastName
		}
		detail.Reviews = append(detail.Reviews, reviewDetail{
			User:      reviewer,
			Rating:    rv.Rating,
			Comment:   rv.Comment,
			CreatedAt: rv.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, detail)
}

// Update 更新课程（部分更新，校验重跑）
// PUT /api/courses/{id}
// 仅课程讲师本人可改；admin 角色也不例外
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	course, ok := h.ownedCourse(w, r, "update")
	if !ok {
		return
	}

	var req updateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Category != nil {
		course.Category = *req.Category
	}
	if req.Level != nil {
		course.Level = model.CourseLevel(*req.Level)
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.Duration != nil {
		course.Duration = *req.Duration
	}
	if req.Topics != nil {
		course.Topics = *req.Topics
	}
	if req.Requirements != nil {
		course.Requirements = *req.Requirements
	}
	if req.LearningObjectives != nil {
		course.LearningObjectives = *req.LearningObjectives
	}
	if req.IsPublished != nil {
		course.IsPublished = *req.IsPublished
	}

	if err := course.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 响应体与落库文档使用同一时间戳
	course.UpdatedAt = time.Now()

	if err := h.store.UpdateCourse(r.Context(), course); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Course not found")
			return
		}
		log.Printf("[course] Update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update course")
		return
	}

	writeJSON(w, http.StatusOK, course)
}

// Delete 删除课程，内嵌评价一并移除
// DELETE /api/courses/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	course, ok := h.ownedCourse(w, r, "delete")
	if !ok {
		return
	}

	if err := h.store.DeleteCourse(r.Context(), course.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Course not found")
			return
		}
		log.Printf("[course] Delete error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete course")
		return
	}

	log.Printf("[course] Deleted: %s", course.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Course removed"})
}

// AddReview 提交课程评价
// POST /api/courses/{id}/reviews
// 追加与平均分重算由存储层在同一原子写入中完成
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, no token")
		return
	}

	var req addReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	review := &model.Review{
		User:      authUser.ID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	}
	if err := review.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.store.AddCourseReview(r.Context(), r.PathValue("id"), review)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Course not found")
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusBadRequest, "Course already reviewed")
	case err != nil:
		log.Printf("[course] AddReview error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to add review")
	default:
		log.Printf("[course] Review added: %s by %s", r.PathValue("id"), authUser.ID)
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Review added"})
	}
}

// ============================================================================
// 辅助函数
// ============================================================================

// ownedCourse 读取路径中的课程并执行所有权检查
// 失败时已写出响应并返回 ok=false
func (h *Handler) ownedCourse(w http.ResponseWriter, r *http.Request, action string) (*model.Course, bool) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, no token")
		return nil, false
	}

	course, err := h.store.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[course] Get error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get course")
		return nil, false
	}
	if course == nil {
		writeError(w, http.StatusNotFound, "Course not found")
		return nil, false
	}

	// 所有权以讲师 ID 相等为准，角色不参与
	if course.Instructor != authUser.ID {
		writeError(w, http.StatusForbidden, "Not authorized to "+action+" this course")
		return nil, false
	}
	return course, true
}

// lookupUsers 批量查询用户并按 ID 建立索引
func (h *Handler) lookupUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	users, err := h.store.ListUsersByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func toListItem(c *model.Course, users map[string]*model.User) courseListItem {
	instructor := publicUser{ID: c.Instructor}
	if u, ok := users[c.Instructor]; ok {
		instructor.FirstName = u.FirstName
		instructor.LastName = u.LastName
		instructor.Email = u.Email
	}
	reviews := c.Reviews
	if reviews == nil {
		reviews = []model.Review{}
	}
	return courseListItem{
		ID:                 c.ID,
		Title:              c.Title,
		Description:        c.Description,
		Instructor:         instructor,
		Category:           c.Category,
		Level:              c.Level,
		Price:              c.Price,
		Duration:           c.Duration,
		Topics:             c.Topics,
		Requirements:       c.Requirements,
		LearningObjectives: c.LearningObjectives,
		IsPublished:        c.IsPublished,
		EnrolledStudents:   c.EnrolledStudents,
		Rating:             c.Rating,
		Reviews:            reviews,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func instructorIDs(courses []*model.Course) []string {
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.Instructor)
	}
	return ids
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// parsePositiveInt 解析正整数查询参数，缺失或非法时返回默认值
func parsePositiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func generateID() string {
	return fmt.Sprintf("crs-%d", time.Now().UnixNano())
}
