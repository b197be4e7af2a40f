package storage

import (
	"context"

	"learning-platform/internal/shared/model"
)

// UserStore 用户持久化接口
//
// GetUserByEmail 返回含密码哈希的完整文档（登录比对用）；
// GetUserByID 通过投影排除密码字段，供中间件与资料接口使用。
// 实体不存在时两者都返回 (nil, nil)。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// CourseStore 课程持久化接口
//
// AddCourseReview 在同一原子写入中追加评价并重算平均评分：
// 课程不存在返回 ErrNotFound，该用户已评价过返回 ErrDuplicate。
type CourseStore interface {
	CreateCourse(ctx context.Context, course *model.Course) error
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	ListCourses(ctx context.Context, limit, offset int) ([]*model.Course, int, error)
	UpdateCourse(ctx context.Context, course *model.Course) error
	DeleteCourse(ctx context.Context, id string) error
	AddCourseReview(ctx context.Context, courseID string, review *model.Review) error
}

// PersistentStore 聚合全部持久化接口
// 具体实现在 mongostore 子包，初始化时通过依赖注入传入
type PersistentStore interface {
	UserStore
	CourseStore

	Close() error
}
