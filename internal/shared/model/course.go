// Package model 定义学习平台核心数据模型
package model

import (
	"fmt"
	"strings"
	"time"
)

// CourseLevel 课程难度级别
type CourseLevel string

const (
	CourseLevelBeginner     CourseLevel = "beginner"
	CourseLevelIntermediate CourseLevel = "intermediate"
	CourseLevelAdvanced     CourseLevel = "advanced"
)

// Valid 级别值是否合法
func (l CourseLevel) Valid() bool {
	switch l {
	case CourseLevelBeginner, CourseLevelIntermediate, CourseLevelAdvanced:
		return true
	}
	return false
}

// Review 课程评价，内嵌于 Course 文档，无独立生命周期
type Review struct {
	User      string    `json:"user" bson:"user"` // 评价人 ID（弱引用）
	Rating    int       `json:"rating" bson:"rating"`
	Comment   string    `json:"comment" bson:"comment"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Validate 校验评价输入
func (r *Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	if strings.TrimSpace(r.Comment) == "" {
		return fmt.Errorf("comment is required")
	}
	return nil
}

// Course 课程
//
// Rating 是派生字段：恒等于内嵌评价评分的算术平均值（无评价时为 0），
// 由存储层在写入评价的同一原子操作中重算，客户端不可直接设置。
type Course struct {
	ID                 string      `json:"id" bson:"_id"`
	Title              string      `json:"title" bson:"title"`
	Description        string      `json:"description" bson:"description"`
	Instructor         string      `json:"instructor" bson:"instructor"` // 讲师用户 ID（弱引用）
	Category           string      `json:"category" bson:"category"`
	Level              CourseLevel `json:"level" bson:"level"`
	Price              float64     `json:"price" bson:"price"`
	Duration           float64     `json:"duration" bson:"duration"` // 课时（小时）
	Topics             []string    `json:"topics" bson:"topics"`
	Requirements       []string    `json:"requirements" bson:"requirements"`
	LearningObjectives []string    `json:"learningObjectives" bson:"learning_objectives"`
	IsPublished        bool        `json:"isPublished" bson:"is_published"`
	EnrolledStudents   int         `json:"enrolledStudents" bson:"enrolled_students"`
	Rating             float64     `json:"rating" bson:"rating"`
	Reviews            []Review    `json:"reviews" bson:"reviews"`
	CreatedAt          time.Time   `json:"createdAt" bson:"created_at"`
	UpdatedAt          time.Time   `json:"updatedAt" bson:"updated_at"`
}

// Validate 校验课程字段（创建和更新时都会执行）
func (c *Course) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if !c.Level.Valid() {
		return fmt.Errorf("level must be one of beginner, intermediate, advanced")
	}
	if c.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// HasReviewBy 指定用户是否已评价过本课程
func (c *Course) HasReviewBy(userID string) bool {
	for _, r := range c.Reviews {
		if r.User == userID {
			return true
		}
	}
	return false
}
