package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
)

// ErrCacheMiss is returned when the fast lane does not hold the requested entry.
var ErrCacheMiss = errors.New("cache miss")

// FastLane is the Redis-backed hot path used while exams are running.
type FastLane interface {
	// PutPaper merges the candidate-facing form of questions into an exam's paper.
	PutPaper(ctx context.Context, examID uuid.UUID, questions []model.Question) error
	// GetPaper returns questions in the order of ids, or ErrCacheMiss if any is absent.
	GetPaper(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) ([]model.QuestionForCandidate, error)
	DropPaper(ctx context.Context, examID uuid.UUID) error

	PutActiveSession(ctx context.Context, examID uuid.UUID, candidateID string, sessionID uuid.UUID, ttl time.Duration) error
	GetActiveSession(ctx context.Context, examID uuid.UUID, candidateID string) (uuid.UUID, error)
	DropActiveSession(ctx context.Context, examID uuid.UUID, candidateID string) error

	// EnqueueResult stores the result for immediate reads and queues it for persistence.
	EnqueueResult(ctx context.Context, res model.ExamResult) error
	GetResult(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}

// ResultTTL bounds how long a graded result stays readable from Redis.
const ResultTTL = 24 * time.Hour

// RedisFastLane implements FastLane on go-redis.
type RedisFastLane struct {
	rdb *redis.Client
}

var _ FastLane = (*RedisFastLane)(nil)

func NewRedisFastLane(rdb *redis.Client) *RedisFastLane {
	return &RedisFastLane{rdb: rdb}
}

func (f *RedisFastLane) PutPaper(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	fields := make(map[string]interface{}, len(questions))
	for i := range questions {
		raw, err := json.Marshal(questions[i].ForCandidate())
		if err != nil {
			return fmt.Errorf("marshal question %s: %w", questions[i].ID, err)
		}
		fields[questions[i].ID.String()] = raw
	}

	if len(fields) == 0 {
		return nil
	}
	if err := f.rdb.HSet(ctx, config.CacheKey.ExamPaperKey(examID.String()), fields).Err(); err != nil {
		return fmt.Errorf("cache paper: %w", err)
	}
	return nil
}

func (f *RedisFastLane) GetPaper(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) ([]model.QuestionForCandidate, error) {
	if len(ids) == 0 {
		return []model.QuestionForCandidate{}, nil
	}
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = id.String()
	}

	vals, err := f.rdb.HMGet(ctx, config.CacheKey.ExamPaperKey(examID.String()), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("read paper: %w", err)
	}

	out := make([]model.QuestionForCandidate, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, ErrCacheMiss
		}
		if err := json.Unmarshal([]byte(s), &out[i]); err != nil {
			return nil, fmt.Errorf("decode cached question %s: %w", ids[i], err)
		}
	}
	return out, nil
}

func (f *RedisFastLane) DropPaper(ctx context.Context, examID uuid.UUID) error {
	return f.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}

func (f *RedisFastLane) PutActiveSession(ctx context.Context, examID uuid.UUID, candidateID string, sessionID uuid.UUID, ttl time.Duration) error {
	return f.rdb.Set(ctx, config.CacheKey.ActiveSessionKey(examID.String(), candidateID), sessionID.String(), ttl).Err()
}

func (f *RedisFastLane) GetActiveSession(ctx context.Context, examID uuid.UUID, candidateID string) (uuid.UUID, error) {
	val, err := f.rdb.Get(ctx, config.CacheKey.ActiveSessionKey(examID.String(), candidateID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrCacheMiss
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrCacheMiss
	}
	return id, nil
}

func (f *RedisFastLane) DropActiveSession(ctx context.Context, examID uuid.UUID, candidateID string) error {
	return f.rdb.Del(ctx, config.CacheKey.ActiveSessionKey(examID.String(), candidateID)).Err()
}

func (f *RedisFastLane) EnqueueResult(ctx context.Context, res model.ExamResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	pipe := f.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.SessionResultKey(res.ExamSessionID.String()), raw, ResultTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue result: %w", err)
	}
	return nil
}

func (f *RedisFastLane) GetResult(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	raw, err := f.rdb.Get(ctx, config.CacheKey.SessionResultKey(sessionID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var res model.ExamResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}
