// models/user.go
package models

import "time"

// Role is the academic role a user holds within an institution.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleStaff     Role = "staff"
	RoleAdmin     Role = "admin"
)

// Identity is the authenticated identity derived from a bearer token at
// connect time. It is immutable for the lifetime of a connection.
type Identity struct {
	UserID        string `json:"userId"`
	Role          Role   `json:"role"`
	InstitutionID string `json:"institutionId,omitempty"`
	BranchID      string `json:"branchId,omitempty"`
}

// User represents a platform user as the audience resolver sees it.
type User struct {
	ID            string    `bson:"id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Email         string    `bson:"email" json:"email"`
	Phone         string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Role          Role      `bson:"role" json:"role"`
	InstitutionID string    `bson:"institutionId,omitempty" json:"institutionId,omitempty"`
	BranchID      string    `bson:"branchId,omitempty" json:"branchId,omitempty"`
	FCMToken      string    `bson:"fcmToken,omitempty" json:"-"`
	Active        bool      `bson:"active" json:"active"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Enrollment links a user to a course. Course-targeted audiences join
// through active enrollments only.
type Enrollment struct {
	UserID    string    `bson:"userId" json:"userId"`
	CourseID  string    `bson:"courseId" json:"courseId"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
