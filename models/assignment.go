package models

import "time"

// Assignment is the slice of the academic schema the reminder sweep reads:
// enough to compute due-date lookahead windows and target the course.
type Assignment struct {
	ID        string    `bson:"id" json:"id"`
	CourseID  string    `bson:"courseId" json:"courseId"`
	Title     string    `bson:"title" json:"title"`
	DueDate   time.Time `bson:"dueDate" json:"dueDate"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
