package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/database"
	"github.com/stemsi/examcore/internal/logger"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/service"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examctl",
		Short:        "Operator tooling for examcore",
		SilenceUsage: true,
	}
	root.AddCommand(exportResultsCmd(), setAccessCodeCmd(), issueTokenCmd(), seedDemoCmd())
	return root
}

// ─── Shared setup ──────────────────────────────────────────────────────

type deps struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client
	exam *service.ExamService
}

func (d *deps) Close() {
	d.pool.Close()
	d.rdb.Close()
}

// connect opens Postgres and Redis and builds the exam service. Logs go to
// stderr so command output on stdout stays machine-readable.
func connect(ctx context.Context) (*deps, error) {
	cfg := config.Load()
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	exam := service.NewExamService(
		repository.NewExamRepository(pool),
		repository.NewQuestionRepository(pool),
		repository.NewSubjectRepository(pool),
		repository.NewExamResultRepository(pool),
		service.NewRedisFastLane(rdb),
		service.NewAuthService(cfg),
		log,
	)
	return &deps{cfg: cfg, log: log, pool: pool, rdb: rdb, exam: exam}, nil
}

func examIDFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("exam-id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --exam-id %q: %w", raw, err)
	}
	return id, nil
}

// ─── export-results ────────────────────────────────────────────────────

func exportResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-results",
		Short: "Export every persisted result of an exam as JSON",
		RunE:  runExportResults,
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Exam UUID (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

type resultsExport struct {
	ExamID     uuid.UUID          `json:"exam_id"`
	Title      string             `json:"title"`
	ExportedAt time.Time          `json:"exported_at"`
	Count      int                `json:"count"`
	Results    []model.ExamResult `json:"results"`
}

func runExportResults(cmd *cobra.Command, _ []string) error {
	examID, err := examIDFlag(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	exam, err := d.exam.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	results, err := d.exam.ExportResults(ctx, examID)
	if err != nil {
		return err
	}
	if results == nil {
		results = []model.ExamResult{}
	}

	out := io.Writer(os.Stdout)
	if path, _ := cmd.Flags().GetString("output"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resultsExport{
		ExamID:     exam.ID,
		Title:      exam.Title,
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	})
}

// ─── set-access-code ───────────────────────────────────────────────────

func setAccessCodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-access-code",
		Short: "Set or clear an exam's access code (read from the terminal)",
		RunE:  runSetAccessCode,
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Exam UUID (required)")
	f.Bool("clear", false, "Remove the access code")
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func runSetAccessCode(cmd *cobra.Command, _ []string) error {
	examID, err := examIDFlag(cmd)
	if err != nil {
		return err
	}

	code := ""
	if clearCode, _ := cmd.Flags().GetBool("clear"); !clearCode {
		if code, err = promptCode(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.exam.SetAccessCode(ctx, examID, code); err != nil {
		return err
	}
	if code == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Access code cleared")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Access code updated")
	}
	return nil
}

// promptCode reads the code twice without echo.
func promptCode(w io.Writer) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", errors.New("set-access-code needs an interactive terminal")
	}

	fmt.Fprint(w, "Access code: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read access code: %w", err)
	}
	fmt.Fprint(w, "Repeat: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read access code: %w", err)
	}

	code := strings.TrimSpace(string(first))
	if code != strings.TrimSpace(string(second)) {
		return "", errors.New("access codes do not match")
	}
	if len(code) < 4 || len(code) > 32 {
		return "", errors.New("access code must be 4 to 32 characters")
	}
	return code, nil
}

// ─── issue-token ───────────────────────────────────────────────────────

func issueTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign a JWT for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			name, _ := cmd.Flags().GetString("name")

			r := service.Role(role)
			if r != service.RoleCandidate && r != service.RoleAdmin {
				return fmt.Errorf("unknown role %q (candidate or admin)", role)
			}
			token, err := service.NewAuthService(config.Load()).GenerateToken(subject, r, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("subject", "", "Candidate or admin id (required)")
	f.String("role", string(service.RoleCandidate), "Token role (candidate, admin)")
	f.String("name", "", "Display name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// ─── seed-demo ─────────────────────────────────────────────────────────

func seedDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Create a demo course with questions and a published exam",
		RunE:  runSeedDemo,
	}
	cmd.Flags().IntP("questions", "n", 20, "Number of questions to create")
	return cmd
}

func runSeedDemo(cmd *cobra.Command, _ []string) error {
	n, _ := cmd.Flags().GetInt("questions")
	if n < 1 {
		return errors.New("--questions must be at least 1")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	subjectRepo := repository.NewSubjectRepository(d.pool)
	courses := service.NewCourseService(repository.NewCourseRepository(d.pool), subjectRepo, d.log)
	subjects := service.NewSubjectService(subjectRepo, d.log)
	questions := service.NewQuestionService(repository.NewQuestionRepository(d.pool))

	course, err := courses.Create(ctx, &model.SaveCourseRequest{
		Name:        "Demo Course " + time.Now().Format("20060102-150405"),
		Description: "Seeded by examctl",
	})
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	subject, err := subjects.Create(ctx, course.ID, &model.SaveSubjectRequest{Name: "Arithmetic"})
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}

	ids := make([]uuid.UUID, 0, n)
	for i := 1; i <= n; i++ {
		q, err := questions.Create(ctx, subject.ID, &model.SaveQuestionRequest{
			Text:       fmt.Sprintf("What is %d + %d?", i, i),
			Type:       string(model.QuestionTypeSingleChoice),
			Difficulty: string(model.DifficultyEasy),
			Options: []model.OptionInput{
				{ID: "A", Text: fmt.Sprint(i + i), IsCorrect: true},
				{ID: "B", Text: fmt.Sprint(i + i + 1)},
				{ID: "C", Text: fmt.Sprint(i * i * 3)},
			},
		})
		if err != nil {
			return fmt.Errorf("create question %d: %w", i, err)
		}
		ids = append(ids, q.ID)
	}

	passing := 60.0
	exam, err := d.exam.Create(ctx, &model.SaveExamRequest{
		CourseID:         course.ID,
		Title:            "Demo Exam",
		TimeLimitMinutes: 30,
		PassingScore:     &passing,
		QuestionIDs:      ids,
		Shuffle:          true,
	})
	if err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	if _, err := d.exam.Publish(ctx, exam.ID); err != nil {
		return fmt.Errorf("publish exam: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "course=%s subject=%s exam=%s questions=%d\n", course.ID, subject.ID, exam.ID, n)
	return nil
}
