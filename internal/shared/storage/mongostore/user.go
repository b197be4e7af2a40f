package mongostore

import (
	"context"
	"time"

	"learning-platform/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// UserStore
// ============================================================================

// excludePassword 投影：密码哈希不离开存储层（登录比对除外）
var excludePassword = bson.D{{Key: "password", Value: 0}}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

// GetUserByEmail 返回含密码哈希的完整文档，仅用于凭证比对
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "email", Value: email}})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "_id", Value: id}},
		options.FindOne().SetProjection(excludePassword))
}

// ListUsersByIDs 批量查询用户（课程详情填充讲师/评价人公开字段用）
func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	return findMany[model.User](ctx, s.col(ColUsers), filter,
		options.Find().SetProjection(excludePassword))
}

// UpdateUser 更新用户资料字段（不包括密码，密码走 UpdateUserPassword）
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	return updateFields(ctx, s.col(ColUsers), user.ID, bson.D{
		{Key: "email", Value: user.Email},
		{Key: "first_name", Value: user.FirstName},
		{Key: "last_name", Value: user.LastName},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "password", Value: passwordHash},
		{Key: "updated_at", Value: time.Now()},
	})
}
