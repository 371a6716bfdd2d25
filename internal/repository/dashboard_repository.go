package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context) (courses, subjects, questions, exams, activeSessions int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM subjects),
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM exam_sessions WHERE status = 'in_progress')`,
	).Scan(&courses, &subjects, &questions, &exams, &activeSessions)
	return
}

// GetExamStatusCounts retrieves the distribution of exams by status.
func (r *DashboardRepository) GetExamStatusCounts(ctx context.Context) (map[model.ExamStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM exams GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ExamStatus]int)
	for rows.Next() {
		var status model.ExamStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DashboardUpcomingExam represents minimal data for upcoming scheduled exams.
type DashboardUpcomingExam struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	ScheduledStart *time.Time `json:"scheduled_start"`
	Duration       int        `json:"time_limit_minutes"`
}

// GetUpcomingExams retrieves the next N published exams whose window has not opened yet.
func (r *DashboardRepository) GetUpcomingExams(ctx context.Context, limit int) ([]DashboardUpcomingExam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, scheduled_start, time_limit_minutes
		 FROM exams
		 WHERE status = $1 AND scheduled_start > NOW()
		 ORDER BY scheduled_start ASC LIMIT $2`,
		model.ExamStatusPublished, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []DashboardUpcomingExam{}
	for rows.Next() {
		var e DashboardUpcomingExam
		if err := rows.Scan(&e.ID, &e.Title, &e.ScheduledStart, &e.Duration); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ExamStats aggregates persisted results of one exam.
type ExamStats struct {
	ExamID       uuid.UUID `json:"exam_id"`
	Title        string    `json:"title"`
	Participants int       `json:"participants"`
	Completed    int       `json:"completed"`
	Expired      int       `json:"expired"`
	Passed       int       `json:"passed"`
	AverageScore *float64  `json:"average_score"`
	AverageTime  *float64  `json:"average_time_taken"`
}

const examStatsSelect = `
	SELECT
		e.id,
		e.title,
		COUNT(r.exam_session_id),
		COUNT(r.exam_session_id) FILTER (WHERE r.status = 'completed'),
		COUNT(r.exam_session_id) FILTER (WHERE r.status = 'expired'),
		COUNT(r.exam_session_id) FILTER (WHERE r.passed),
		AVG(r.score),
		AVG(r.time_taken)::float8
	FROM exams e
	LEFT JOIN exam_results r ON r.exam_id = e.id`

// GetRecentExamStats returns stats for the most recently updated
// published or archived exams.
func (r *DashboardRepository) GetRecentExamStats(ctx context.Context, limit int) ([]ExamStats, error) {
	rows, err := r.pool.Query(ctx, examStatsSelect+`
		WHERE e.status IN ($1, $2)
		GROUP BY e.id, e.title, e.updated_at
		ORDER BY e.updated_at DESC
		LIMIT $3`,
		model.ExamStatusPublished, model.ExamStatusArchived, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []ExamStats{}
	for rows.Next() {
		var s ExamStats
		if err := rows.Scan(&s.ExamID, &s.Title, &s.Participants, &s.Completed, &s.Expired,
			&s.Passed, &s.AverageScore, &s.AverageTime); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetExamStats returns pgx.ErrNoRows when the exam does not exist.
func (r *DashboardRepository) GetExamStats(ctx context.Context, examID uuid.UUID) (*ExamStats, error) {
	s := &ExamStats{}
	err := r.pool.QueryRow(ctx, examStatsSelect+`
		WHERE e.id = $1
		GROUP BY e.id, e.title`, examID,
	).Scan(&s.ExamID, &s.Title, &s.Participants, &s.Completed, &s.Expired,
		&s.Passed, &s.AverageScore, &s.AverageTime)
	if err != nil {
		return nil, err
	}
	return s, nil
}
