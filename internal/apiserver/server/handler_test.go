package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learning-platform/internal/apiserver/auth"
	"learning-platform/internal/shared/model"
	"learning-platform/internal/shared/storage"
)

// mockStore 内存版 PersistentStore，用于端到端路由测试
type mockStore struct {
	users   map[string]*model.User
	courses map[string]*model.Course
}

func newMockStore() *mockStore {
	return &mockStore{
		users:   make(map[string]*model.User),
		courses: make(map[string]*model.Course),
	}
}

func (m *mockStore) CreateUser(ctx context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockStore) ListUsersByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	out := []*model.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateUser(ctx context.Context, user *model.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockStore) UpdateUserPassword(ctx context.Context, id, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockStore) CreateCourse(ctx context.Context, course *model.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *mockStore) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	return m.courses[id], nil
}

func (m *mockStore) ListCourses(ctx context.Context, limit, offset int) ([]*model.Course, int, error) {
	out := []*model.Course{}
	for _, c := range m.courses {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockStore) UpdateCourse(ctx context.Context, course *model.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *mockStore) DeleteCourse(ctx context.Context, id string) error {
	delete(m.courses, id)
	return nil
}

func (m *mockStore) AddCourseReview(ctx context.Context, courseID string, review *model.Review) error {
	c, ok := m.courses[courseID]
	if !ok {
		return storage.ErrNotFound
	}
	if c.HasReviewBy(review.User) {
		return storage.ErrDuplicate
	}
	c.Reviews = append(c.Reviews, *review)
	return nil
}

func (m *mockStore) Close() error { return nil }

var _ storage.PersistentStore = (*mockStore)(nil)

// TestRouter 覆盖完整中间件链：CORS → 认证 → 指标 → 业务路由
// Metrics 使用全局 Prometheus 注册表，Handler 在测试二进制中只能创建一次
func TestRouter(t *testing.T) {
	store := newMockStore()
	cfg := auth.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
	router := NewHandler(store, cfg).Router()

	get := func(path, token string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", path, nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	t.Run("welcome", func(t *testing.T) {
		w := get("/", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["message"] != "Welcome to the Learning Platform API" {
			t.Errorf("unexpected welcome message: %q", resp["message"])
		}
	})

	t.Run("health", func(t *testing.T) {
		if w := get("/health", ""); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("metrics exposed", func(t *testing.T) {
		if w := get("/metrics", ""); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("course list public", func(t *testing.T) {
		if w := get("/api/courses", ""); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}
	})

	t.Run("profile requires token", func(t *testing.T) {
		if w := get("/api/users/profile", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("create course requires token", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/courses", bytes.NewBufferString("{}"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("student cannot create course", func(t *testing.T) {
		store.users["usr-stu"] = &model.User{
			ID: "usr-stu", Email: "s@example.com", Role: model.UserRoleStudent,
		}
		token, err := auth.GenerateToken(cfg, "usr-stu")
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		r := httptest.NewRequest("POST", "/api/courses", bytes.NewBufferString("{}"))
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403, body: %s", w.Code, w.Body.String())
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		r := httptest.NewRequest("OPTIONS", "/api/courses", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing CORS headers")
		}
	})
}
