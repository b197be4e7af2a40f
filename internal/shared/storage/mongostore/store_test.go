package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"learning-platform/internal/shared/model"
	"learning-platform/internal/shared/storage"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	dbName := "learning_platform_test"
	s, err := NewStore(uri, dbName)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	// 清空测试数据库
	ctx := context.Background()
	if err := s.db.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop test database: %v", err)
	}
	// 重新创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})

	return s
}

// Compile-time interface check
var _ storage.PersistentStore = (*Store)(nil)

func testUser(id, email string) *model.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.User{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$12$fakehashfakehashfakehash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         model.UserRoleInstructor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testCourse(id, instructor string, createdAt time.Time) *model.Course {
	return &model.Course{
		ID:          id,
		Title:       "Course " + id,
		Description: "desc",
		Instructor:  instructor,
		Category:    "programming",
		Level:       model.CourseLevelBeginner,
		Price:       10,
		Duration:    2,
		Reviews:     []model.Review{},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestUserCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u := testUser("usr-001", "ada@example.com")
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// 按邮箱查询包含密码哈希（登录比对用）
	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail == nil || byEmail.PasswordHash == "" {
		t.Fatal("GetUserByEmail must return the password hash")
	}

	// 按 ID 查询投影排除密码
	byID, err := s.GetUserByID(ctx, "usr-001")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID == nil {
		t.Fatal("GetUserByID returned nil")
	}
	if byID.PasswordHash != "" {
		t.Error("GetUserByID must exclude the password field")
	}

	// 不存在返回 (nil, nil)
	missing, err := s.GetUserByID(ctx, "usr-gone")
	if err != nil || missing != nil {
		t.Errorf("missing user = (%v, %v), want (nil, nil)", missing, err)
	}

	// 资料更新
	byID.FirstName = "Augusta"
	if err := s.UpdateUser(ctx, byID); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	updated, _ := s.GetUserByID(ctx, "usr-001")
	if updated.FirstName != "Augusta" {
		t.Errorf("FirstName = %q, want Augusta", updated.FirstName)
	}

	// 密码更新不影响其他字段
	if err := s.UpdateUserPassword(ctx, "usr-001", "$2a$12$newhash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}
	after, _ := s.GetUserByEmail(ctx, "ada@example.com")
	if after.PasswordHash != "$2a$12$newhash" {
		t.Error("password hash not updated")
	}
	if after.FirstName != "Augusta" {
		t.Error("password update must not touch profile fields")
	}
}

func TestUserEmailUnique(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("usr-001", "dup@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := s.CreateUser(ctx, testUser("usr-002", "dup@example.com"))
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate email error = %v, want ErrDuplicate", err)
	}
}

func TestListUsersByIDs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		u := testUser(fmt.Sprintf("usr-%03d", i), fmt.Sprintf("u%d@example.com", i))
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	users, err := s.ListUsersByIDs(ctx, []string{"usr-001", "usr-003", "usr-gone"})
	if err != nil {
		t.Fatalf("ListUsersByIDs: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Error("ListUsersByIDs must exclude the password field")
		}
	}

	empty, err := s.ListUsersByIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty id list = (%v, %v), want ([], nil)", empty, err)
	}
}

func TestCourseCRUDAndPagination(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		c := testCourse(fmt.Sprintf("crs-%03d", i), "usr-001", base.Add(time.Duration(i)*time.Hour))
		if err := s.CreateCourse(ctx, c); err != nil {
			t.Fatalf("CreateCourse: %v", err)
		}
	}

	// 第二页（limit=5）应为第 6..10 新，即 crs-007..crs-003
	page, total, err := s.ListCourses(ctx, 5, 5)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if total != 12 {
		t.Errorf("total = %d, want 12", total)
	}
	if len(page) != 5 {
		t.Fatalf("len(page) = %d, want 5", len(page))
	}
	if page[0].ID != "crs-007" || page[4].ID != "crs-003" {
		t.Errorf("page window = %s..%s, want crs-007..crs-003", page[0].ID, page[4].ID)
	}

	// 更新可变字段
	c := page[0]
	c.Price = 99
	c.IsPublished = true
	if err := s.UpdateCourse(ctx, c); err != nil {
		t.Fatalf("UpdateCourse: %v", err)
	}
	got, _ := s.GetCourse(ctx, c.ID)
	if got.Price != 99 || !got.IsPublished {
		t.Errorf("update not applied: %+v", got)
	}

	// 删除
	if err := s.DeleteCourse(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	gone, err := s.GetCourse(ctx, c.ID)
	if err != nil || gone != nil {
		t.Errorf("deleted course = (%v, %v), want (nil, nil)", gone, err)
	}
	if err := s.DeleteCourse(ctx, c.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestAddCourseReview(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	course := testCourse("crs-001", "usr-001", time.Now().UTC())
	if err := s.CreateCourse(ctx, course); err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	review := func(user string, rating int) *model.Review {
		return &model.Review{
			User:      user,
			Rating:    rating,
			Comment:   "comment with a $dollar prefix edge case",
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	// 第一条评价：平均分即该评分
	if err := s.AddCourseReview(ctx, "crs-001", review("usr-a", 4)); err != nil {
		t.Fatalf("AddCourseReview: %v", err)
	}
	got, _ := s.GetCourse(ctx, "crs-001")
	if len(got.Reviews) != 1 || got.Rating != 4 {
		t.Fatalf("after first review: reviews=%d rating=%v", len(got.Reviews), got.Rating)
	}

	// 第二条评价：精确平均值
	if err := s.AddCourseReview(ctx, "crs-001", review("usr-b", 5)); err != nil {
		t.Fatalf("AddCourseReview: %v", err)
	}
	got, _ = s.GetCourse(ctx, "crs-001")
	if got.Rating != 4.5 {
		t.Errorf("rating = %v, want exact mean 4.5", got.Rating)
	}
	if got.Reviews[1].Comment != "comment with a $dollar prefix edge case" {
		t.Errorf("review comment mangled: %q", got.Reviews[1].Comment)
	}

	// 同一用户重复评价被原子过滤拒绝，计数不变
	err := s.AddCourseReview(ctx, "crs-001", review("usr-a", 1))
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate review error = %v, want ErrDuplicate", err)
	}
	got, _ = s.GetCourse(ctx, "crs-001")
	if len(got.Reviews) != 2 || got.Rating != 4.5 {
		t.Errorf("duplicate must not change state: reviews=%d rating=%v", len(got.Reviews), got.Rating)
	}

	// 课程不存在
	err = s.AddCourseReview(ctx, "crs-gone", review("usr-a", 3))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing course error = %v, want ErrNotFound", err)
	}
}
