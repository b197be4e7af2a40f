package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	UserRoleStudent    UserRole = "student"
	UserRoleInstructor UserRole = "instructor"
	UserRoleAdmin      UserRole = "admin"
)

// Valid 角色值是否合法
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleInstructor, UserRoleAdmin:
		return true
	}
	return false
}

// User 用户
// PasswordHash 为 bcrypt 哈希，永远不出现在 JSON 响应中
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"` // 存储前统一小写
	PasswordHash string    `json:"-" bson:"password"`
	FirstName    string    `json:"firstName" bson:"first_name"`
	LastName     string    `json:"lastName" bson:"last_name"`
	Role         UserRole  `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}
