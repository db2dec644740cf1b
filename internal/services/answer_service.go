package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/cache"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
)

// Reply sources
const (
	SourceIgnored    = "ignored"
	SourceTooShort   = "too_short"
	SourceNonNumeric = "non_numeric"
	SourceCache      = "cache"
	SourcePipeline   = "pipeline"
	SourceEmpty      = "empty"
	SourceError      = "error"
)

// User-facing texts
const (
	MsgTooShort = "Ваш запрос слишком короткий.\n\n" +
		"Пожалуйста, сформулируйте вопрос подробнее (не менее %d символов).\n\n" +
		"Примеры:\n" +
		"• Сколько всего видео в базе?\n" +
		"• Среднее количество просмотров на видео\n" +
		"• Сколько видео опубликовано за ноябрь 2025?"

	MsgNonNumeric = "Я отвечаю только на количественные вопросы, которые можно ответить числом.\n\n" +
		"Не могу ответить на вопросы со словами: «какой», «какие», «кто», «что», «покажи», «топ», «список» и т.д.\n\n" +
		"Попробуйте спросить иначе, например:\n" +
		"• Сколько всего видео?\n" +
		"• Общее количество просмотров\n" +
		"• Среднее число лайков\n" +
		"• Максимальное количество комментариев"

	MsgCannotGenerate = "Не удалось сгенерировать запрос. Попробуйте сформулировать иначе."
	MsgInvalidSQL     = "Сгенерирован некорректный запрос."
	MsgNoRows         = "По вашему запросу данных не найдено."
	MsgGenericError   = "Произошла ошибка при обработке запроса"
)

// Querier runs a read-only query
type Querier interface {
	QueryRows(ctx context.Context, query string) (*database.ResultSet, error)
}

// Reply is the outcome of answering one question
type Reply struct {
	Text   string
	Source string
	SQL    string
	Err    error
}

// AnswerServiceConfig tunes the question pipeline
type AnswerServiceConfig struct {
	MinQueryLength    int
	CacheWriteTimeout time.Duration
}

// AnswerService answers a question from the cache or through the
// NL -> SQL -> database pipeline, then lets the cache gate decide whether
// to keep the answer.
type AnswerService struct {
	gate       *cache.Gate
	generator  SQLGenerator
	db         Querier
	classifier *QuestionClassifier
	metrics    *Metrics
	cfg        AnswerServiceConfig
	logger     *slog.Logger
}

// NewAnswerService wires the pipeline. gate may be cache.Disabled().
func NewAnswerService(
	gate *cache.Gate,
	generator SQLGenerator,
	db Querier,
	classifier *QuestionClassifier,
	metrics *Metrics,
	cfg AnswerServiceConfig,
	logger *slog.Logger,
) *AnswerService {
	if gate == nil {
		gate = cache.Disabled()
	}
	if classifier == nil {
		classifier = NewQuestionClassifier()
	}
	if cfg.CacheWriteTimeout <= 0 {
		cfg.CacheWriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AnswerService{
		gate:       gate,
		generator:  generator,
		db:         db,
		classifier: classifier,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Answer handles one question. beforeCompute, if set, runs once the cache
// has missed and the expensive path is about to start.
func (s *AnswerService) Answer(ctx context.Context, question string, beforeCompute func()) Reply {
	q := strings.TrimSpace(question)
	if q == "" {
		return Reply{Source: SourceIgnored}
	}

	if utf8.RuneCountInString(q) < s.cfg.MinQueryLength {
		return Reply{Text: fmt.Sprintf(MsgTooShort, s.cfg.MinQueryLength), Source: SourceTooShort}
	}
	if s.classifier.IsNonNumeric(q) {
		return Reply{Text: MsgNonNumeric, Source: SourceNonNumeric}
	}

	if answer, ok := s.gate.TryServe(ctx, q); ok {
		return Reply{Text: answer, Source: SourceCache}
	}

	if beforeCompute != nil {
		beforeCompute()
	}

	start := time.Now()
	reply := s.compute(ctx, q)
	s.metrics.ObservePipeline(time.Since(start))

	if reply.Err != nil {
		s.metrics.RecordPipelineError(StageOf(reply.Err))
		return reply
	}

	if reply.Source == SourcePipeline {
		// The write outlives the request so later askers benefit even if
		// this one was abandoned.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CacheWriteTimeout)
		state := s.gate.MaybeCache(writeCtx, q, reply.Text)
		cancel()
		s.logger.Debug("cache decision", "state", state.String())
	}
	return reply
}

func (s *AnswerService) compute(ctx context.Context, q string) Reply {
	sql, err := s.generator.GenerateSQL(ctx, q)
	if err != nil {
		text := MsgGenericError
		if errors.Is(err, ErrEmptySQL) {
			text = MsgCannotGenerate
		}
		s.logger.Error("❌ SQL generation failed", "error", err)
		return Reply{Text: text, Source: SourceError, Err: stageErr(StageGenerate, err)}
	}

	guarded, err := GuardSQL(sql)
	if err != nil {
		s.logger.Warn("⚠️  Rejected generated SQL", "sql", sql, "error", err)
		return Reply{Text: MsgInvalidSQL, Source: SourceError, SQL: sql, Err: stageErr(StageGuard, err)}
	}

	s.logger.Info("SQL query", "sql", guarded)

	rs, err := s.db.QueryRows(ctx, guarded)
	if err != nil {
		s.logger.Error("❌ Query failed", "sql", guarded, "error", err)
		return Reply{Text: MsgGenericError, Source: SourceError, SQL: guarded, Err: stageErr(StageQuery, err)}
	}
	if rs.Empty() {
		return Reply{Text: MsgNoRows, Source: SourceEmpty, SQL: guarded}
	}

	return Reply{Text: FormatResult(rs), Source: SourcePipeline, SQL: guarded}
}
