// Package storage 定义持久化存储层的抽象接口与领域错误
//
// 这些错误用于隔离业务层与底层存储引擎的错误类型，
// 驱动实现（mongostore）负责将底层错误转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 mongo.ErrNoDocuments
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate 唯一性冲突（邮箱已注册、同一用户重复评价）
	ErrDuplicate = errors.New("duplicate: entity already exists")
)
