package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/cache"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

type fakeGenerator struct {
	sql   string
	err   error
	calls int32
}

func (f *fakeGenerator) GenerateSQL(ctx context.Context, question string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.sql, f.err
}

// cancelingQuerier cancels the request right after the query returns
type cancelingQuerier struct {
	inner  Querier
	cancel context.CancelFunc
}

func (c cancelingQuerier) QueryRows(ctx context.Context, query string) (*database.ResultSet, error) {
	rs, err := c.inner.QueryRows(ctx, query)
	c.cancel()
	return rs, err
}

type failingQuerier struct{}

func (failingQuerier) QueryRows(ctx context.Context, query string) (*database.ResultSet, error) {
	return nil, errors.New("connection lost")
}

func newVideoDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "videos.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	day := time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC)
	_, err = db.LoadDataset(ctx, &models.VideoDataset{Videos: []models.Video{
		{ID: "9f1c0a5e-2b4d-4c1e-8f00-000000000001", CreatorID: "c1", VideoCreatedAt: day, ViewsCount: 100},
		{ID: "9f1c0a5e-2b4d-4c1e-8f00-000000000002", CreatorID: "c1", VideoCreatedAt: day, ViewsCount: 300},
	}})
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}
	return db
}

type answerFixture struct {
	svc     *AnswerService
	gen     *fakeGenerator
	store   *cache.MemoryStore
	metrics *Metrics
}

func newAnswerFixture(t *testing.T, sql string, q Querier) *answerFixture {
	t.Helper()

	if q == nil {
		q = newVideoDB(t)
	}
	gen := &fakeGenerator{sql: sql}
	store := cache.NewMemoryStore(nil)
	metrics := NewMetrics(prometheus.NewRegistry())
	gate := cache.NewGate(store, cache.GateConfig{Enabled: true, TTL: time.Hour, Threshold: 2}, cache.WithRecorder(metrics))

	svc := NewAnswerService(gate, gen, q, nil, metrics, AnswerServiceConfig{MinQueryLength: 10}, nil)
	return &answerFixture{svc: svc, gen: gen, store: store, metrics: metrics}
}

func TestAnswerService_PipelineAndPromotion(t *testing.T) {
	f := newAnswerFixture(t, "SELECT SUM(views_count) FROM videos;", nil)
	ctx := context.Background()

	var computed int
	typing := func() { computed++ }

	first := f.svc.Answer(ctx, "Сколько всего просмотров?", typing)
	if first.Source != SourcePipeline || first.Text != "400" {
		t.Fatalf("Expected pipeline answer 400, got %+v", first)
	}

	second := f.svc.Answer(ctx, "  сколько всего просмотров?  ", typing)
	if second.Source != SourcePipeline {
		t.Fatalf("Expected second ask to compute (threshold 2), got %s", second.Source)
	}

	third := f.svc.Answer(ctx, "СКОЛЬКО ВСЕГО ПРОСМОТРОВ?", typing)
	if third.Source != SourceCache || third.Text != "400" {
		t.Fatalf("Expected cached 400, got %+v", third)
	}

	if f.gen.calls != 2 {
		t.Errorf("Expected 2 LLM calls, got %d", f.gen.calls)
	}
	if computed != 2 {
		t.Errorf("Expected beforeCompute twice, got %d", computed)
	}
	if got := testutil.ToFloat64(f.metrics.CachePromotions); got != 1 {
		t.Errorf("Expected 1 promotion, got %v", got)
	}
}

func TestAnswerService_Rejections(t *testing.T) {
	f := newAnswerFixture(t, "SELECT 1", nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		question string
		source   string
	}{
		{"empty", "   ", SourceIgnored},
		{"too short", "Сколько?", SourceTooShort},
		{"non numeric", "Какие видео самые популярные?", SourceNonNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := f.svc.Answer(ctx, tt.question, nil)
			if reply.Source != tt.source {
				t.Errorf("Expected %s, got %s", tt.source, reply.Source)
			}
		})
	}

	if f.gen.calls != 0 {
		t.Errorf("Expected no LLM calls for rejected questions, got %d", f.gen.calls)
	}

	short := f.svc.Answer(ctx, "Сколько?", nil)
	if !strings.Contains(short.Text, "не менее 10 символов") {
		t.Errorf("Expected minimum length in hint, got %q", short.Text)
	}
}

func TestAnswerService_EmptyResultNotCached(t *testing.T) {
	f := newAnswerFixture(t, "SELECT id FROM videos WHERE views_count > 1000000", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		reply := f.svc.Answer(ctx, "Сколько видео набрали миллион?", nil)
		if reply.Source != SourceEmpty || reply.Text != MsgNoRows {
			t.Fatalf("Expected empty reply, got %+v", reply)
		}
	}
	if f.gen.calls != 3 {
		t.Errorf("Expected every ask to compute, got %d", f.gen.calls)
	}

	fp := cache.FingerprintOf("Сколько видео набрали миллион?")
	if res := f.store.Usage(ctx, fp.UsageKey()); res.Status != cache.StatusNotFound {
		t.Errorf("Expected no usage tracking for empty results, got %s", res.Status)
	}
}

func TestAnswerService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		genErr  error
		querier Querier
		text    string
		stage   string
	}{
		{"llm failure", "", ClassifyHTTPError(500, "boom", ""), nil, MsgGenericError, StageGenerate},
		{"empty sql", "", ErrEmptySQL, nil, MsgCannotGenerate, StageGenerate},
		{"write statement", "DELETE FROM videos", nil, nil, MsgInvalidSQL, StageGuard},
		{"database failure", "SELECT 1", nil, failingQuerier{}, MsgGenericError, StageQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnswerFixture(t, tt.sql, tt.querier)
			f.gen.err = tt.genErr

			reply := f.svc.Answer(context.Background(), "Сколько всего видео в базе?", nil)
			if reply.Source != SourceError || reply.Text != tt.text {
				t.Errorf("Expected error reply %q, got %+v", tt.text, reply)
			}
			if StageOf(reply.Err) != tt.stage {
				t.Errorf("Expected stage %s, got %s", tt.stage, StageOf(reply.Err))
			}
			if got := testutil.ToFloat64(f.metrics.PipelineErrors.WithLabelValues(tt.stage)); got != 1 {
				t.Errorf("Expected 1 %s error, got %v", tt.stage, got)
			}
		})
	}
}

func TestAnswerService_CacheUnavailableFailsOpen(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	store.Close()
	gate := cache.NewGate(store, cache.GateConfig{Enabled: true, TTL: time.Hour, Threshold: 1})

	svc := NewAnswerService(gate, &fakeGenerator{sql: "SELECT COUNT(*) FROM videos"}, newVideoDB(t), nil, nil, AnswerServiceConfig{MinQueryLength: 10}, nil)

	for i := 0; i < 2; i++ {
		reply := svc.Answer(context.Background(), "Сколько всего видео в базе?", nil)
		if reply.Source != SourcePipeline || reply.Text != "2" {
			t.Fatalf("Expected pipeline answer despite cache outage, got %+v", reply)
		}
	}
}

func TestAnswerService_CanceledRequestStillCaches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := cancelingQuerier{inner: newVideoDB(t), cancel: cancel}
	f := newAnswerFixture(t, "SELECT COUNT(*) FROM videos", q)
	f.svc.gate = cache.NewGate(f.store, cache.GateConfig{Enabled: true, TTL: time.Hour, Threshold: 1})

	reply := f.svc.Answer(ctx, "Сколько всего видео в базе?", nil)
	if reply.Source != SourcePipeline {
		t.Fatalf("Expected pipeline answer, got %+v", reply)
	}
	if ctx.Err() == nil {
		t.Fatal("Expected request context to be cancelled")
	}

	if res := f.store.Get(context.Background(), cache.FingerprintOf("Сколько всего видео в базе?").AnswerKey()); res.Value != "2" {
		t.Errorf("Expected answer cached despite cancellation, got %+v", res)
	}
}
