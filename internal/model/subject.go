package model

import (
	"time"

	"github.com/google/uuid"
)

// Subject groups questions inside a course.
type Subject struct {
	ID          uuid.UUID `json:"id"`
	CourseID    uuid.UUID `json:"course_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubjectInventory is the number of questions a subject currently holds.
type SubjectInventory struct {
	SubjectID     uuid.UUID `json:"subject_id"`
	Name          string    `json:"name"`
	QuestionCount int       `json:"question_count"`
}

// SaveSubjectRequest is the payload for creating or renaming a subject.
type SaveSubjectRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Description string `json:"description" binding:"omitempty,max=1000"`
}
