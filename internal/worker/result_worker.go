package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWriter persists graded results.
type ResultWriter interface {
	InsertBatch(ctx context.Context, batch []*model.ExamResult) error
	InsertOne(ctx context.Context, res *model.ExamResult) error
}

// ResultWorker drains the result queue into Postgres in batches.
type ResultWorker struct {
	writer ResultWriter
	rdb    *redis.Client
	log    zerolog.Logger
}

func NewResultWorker(writer ResultWriter, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		writer: writer,
		rdb:    rdb,
		log:    log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ExamResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var res model.ExamResult
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload, moving to dead letter")
				w.rdb.RPush(ctx, config.WorkerKey.ResultsDeadLetter, item[1])
				continue
			}

			batch = append(batch, &res)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with per-item fallback
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ExamResult) {
	if len(batch) == 0 {
		return
	}

	err := w.writer.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Results persisted")
		return
	}
	w.log.Warn().Err(err).Msg("bulk result insert failed, using fallback")

	for _, res := range batch {
		err := w.writer.InsertOne(ctx, res)
		if err == nil {
			continue
		}
		raw, _ := json.Marshal(res)
		// A missing session or exam will never succeed on retry.
		if repository.IsForeignKeyViolation(err) {
			w.log.Error().Err(err).Str("session_id", res.ExamSessionID.String()).Msg("InsertOne rejected, moving to dead letter")
			w.rdb.RPush(ctx, config.WorkerKey.ResultsDeadLetter, raw)
			continue
		}
		w.log.Error().Err(err).Str("session_id", res.ExamSessionID.String()).Msg("InsertOne failed, requeueing")
		w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	}
}
