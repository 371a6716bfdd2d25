package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
)

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	TotalCourses     int                                `json:"total_courses"`
	TotalSubjects    int                                `json:"total_subjects"`
	TotalQuestions   int                                `json:"total_questions"`
	TotalExams       int                                `json:"total_exams"`
	ActiveSessions   int                                `json:"active_sessions"`
	ExamStatusCounts map[model.ExamStatus]int           `json:"exam_status_counts"`
	UpcomingExams    []repository.DashboardUpcomingExam `json:"upcoming_exams"`
	RecentExams      []repository.ExamStats             `json:"recent_exams"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo *repository.DashboardRepository
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo *repository.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetDashboardData fetches all dashboard metrics sequentially.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	courses, subjects, questions, exams, active, err := s.repo.GetSummaryCounts(ctx)
	if err != nil {
		return nil, err
	}

	statusCounts, err := s.repo.GetExamStatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	upcoming, err := s.repo.GetUpcomingExams(ctx, 5)
	if err != nil {
		return nil, err
	}

	recent, err := s.repo.GetRecentExamStats(ctx, 5)
	if err != nil {
		return nil, err
	}

	return &DashboardData{
		TotalCourses:     courses,
		TotalSubjects:    subjects,
		TotalQuestions:   questions,
		TotalExams:       exams,
		ActiveSessions:   active,
		ExamStatusCounts: statusCounts,
		UpcomingExams:    upcoming,
		RecentExams:      recent,
	}, nil
}

// GetExamStats returns result aggregates for one exam.
func (s *DashboardService) GetExamStats(ctx context.Context, examID uuid.UUID) (*repository.ExamStats, error) {
	stats, err := s.repo.GetExamStats(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	return stats, err
}
