package mongostore

import (
	"context"

	"learning-platform/internal/shared/model"
	"learning-platform/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// CourseStore
// ============================================================================

func (s *Store) CreateCourse(ctx context.Context, course *model.Course) error {
	return insertOne(ctx, s.col(ColCourses), course)
}

func (s *Store) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	return findOne[model.Course](ctx, s.col(ColCourses), bson.D{{Key: "_id", Value: id}})
}

// ListCourses 按创建时间倒序分页查询课程，返回 (课程, 总数)
//
// 总数由独立的 CountDocuments 查询得出，与分页读取之间没有快照一致性：
// 并发写入下 total 可能与当前页轻微不符，属本系统接受的一致性模型。
func (s *Store) ListCourses(ctx context.Context, limit, offset int) ([]*model.Course, int, error) {
	filter := bson.D{}

	total, err := s.col(ColCourses).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, wrapError(err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	courses, err := findMany[model.Course](ctx, s.col(ColCourses), filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return courses, int(total), nil
}

// UpdateCourse 更新课程可变字段
// instructor、rating、reviews、enrolled_students 不在此处更新：
// 讲师在创建时固定，派生/计数字段只由专用操作维护。
// updated_at 取自调用方传入的值，保证响应体与落库文档一致。
func (s *Store) UpdateCourse(ctx context.Context, course *model.Course) error {
	return updateFields(ctx, s.col(ColCourses), course.ID, bson.D{
		{Key: "title", Value: course.Title},
		{Key: "description", Value: course.Description},
		{Key: "category", Value: course.Category},
		{Key: "level", Value: course.Level},
		{Key: "price", Value: course.Price},
		{Key: "duration", Value: course.Duration},
		{Key: "topics", Value: course.Topics},
		{Key: "requirements", Value: course.Requirements},
		{Key: "learning_objectives", Value: course.LearningObjectives},
		{Key: "is_published", Value: course.IsPublished},
		{Key: "updated_at", Value: course.UpdatedAt},
	})
}

// DeleteCourse 删除课程，内嵌评价随单文档删除一并移除
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColCourses), id)
}

// AddCourseReview 追加评价并重算平均评分，单次原子写入
//
// 过滤条件 "reviews.user" $ne 排除了已评价用户，使“一人一评”检查
// 与写入在同一操作内完成，消除了读取-检查-写入的竞争窗口；
// 管道第二步在同一写入中把 rating 设为全部评分的精确平均值。
// MatchedCount == 0 时通过补查区分课程不存在与重复评价。
func (s *Store) AddCourseReview(ctx context.Context, courseID string, review *model.Review) error {
	filter := bson.D{
		{Key: "_id", Value: courseID},
		{Key: "reviews.user", Value: bson.D{{Key: "$ne", Value: review.User}}},
	}

	// $literal 防止评论内容中的 "$" 前缀被当作聚合表达式解析
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "reviews", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$reviews", bson.A{}}}},
				bson.A{bson.D{{Key: "$literal", Value: review}}},
			}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: bson.D{{Key: "$avg", Value: "$reviews.rating"}}},
			{Key: "updated_at", Value: "$$NOW"},
		}}},
	}

	res, err := s.col(ColCourses).UpdateOne(ctx, filter, update)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		existing, err := s.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if existing == nil {
			return storage.ErrNotFound
		}
		return storage.ErrDuplicate
	}
	return nil
}
