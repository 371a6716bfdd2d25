package model

import (
	"time"

	"github.com/google/uuid"
)

// Course is the top-level container for subjects and exams.
type Course struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveCourseRequest is the payload for creating or updating a course.
type SaveCourseRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=255"`
	Description string `json:"description" binding:"omitempty,max=2000"`
}
