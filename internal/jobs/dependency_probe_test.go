package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/services"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeCacheHealth string

func (f fakeCacheHealth) Health(context.Context) string { return string(f) }

type fakeCircuit bool

func (f fakeCircuit) CircuitOpen() bool { return bool(f) }

func TestDependencyProbe_Run(t *testing.T) {
	tests := []struct {
		name      string
		db        Pinger
		cache     CacheHealth
		llm       CircuitState
		wantDB    float64
		wantCache float64
		wantLLM   float64
	}{
		{"all up", fakePinger{}, fakeCacheHealth("ok"), fakeCircuit(false), 1, 1, 1},
		{"database down", fakePinger{err: errors.New("refused")}, fakeCacheHealth("ok"), fakeCircuit(false), 0, 1, 1},
		{"cache down", fakePinger{}, fakeCacheHealth("unavailable"), fakeCircuit(false), 1, 0, 1},
		{"circuit open", fakePinger{}, fakeCacheHealth("ok"), fakeCircuit(true), 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := services.NewMetrics(prometheus.NewRegistry())
			probe := NewDependencyProbe(tt.db, tt.cache, tt.llm, metrics)

			if err := probe.Run(context.Background()); err != nil {
				t.Fatalf("Probe failed: %v", err)
			}

			gauge := func(dep string) float64 {
				return testutil.ToFloat64(metrics.DependencyUp.WithLabelValues(dep))
			}
			if got := gauge(DependencyDatabase); got != tt.wantDB {
				t.Errorf("Expected database %v, got %v", tt.wantDB, got)
			}
			if got := gauge(DependencyCache); got != tt.wantCache {
				t.Errorf("Expected cache %v, got %v", tt.wantCache, got)
			}
			if got := gauge(DependencyLLM); got != tt.wantLLM {
				t.Errorf("Expected llm %v, got %v", tt.wantLLM, got)
			}
		})
	}
}

func TestDependencyProbe_DisabledCacheNotReported(t *testing.T) {
	metrics := services.NewMetrics(prometheus.NewRegistry())
	probe := NewDependencyProbe(fakePinger{}, fakeCacheHealth("disabled"), nil, metrics)

	probe.Run(context.Background())

	if n := testutil.CollectAndCount(metrics.DependencyUp); n != 1 {
		t.Errorf("Expected only the database gauge, got %d series", n)
	}
}

type countingJob struct{ runs int32 }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return nil
}

func TestJobScheduler_RegisterAndRunNow(t *testing.T) {
	scheduler, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	defer scheduler.Stop()

	job := &countingJob{}
	if err := scheduler.Register("probe", "*/1 * * * *", job); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	scheduler.Start()

	if err := scheduler.RunNow("probe"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if atomic.LoadInt32(&job.runs) != 1 {
		t.Errorf("Expected 1 run, got %d", job.runs)
	}

	if err := scheduler.RunNow("missing"); err == nil {
		t.Error("Expected error for unknown job")
	}
}

func TestJobScheduler_InvalidCron(t *testing.T) {
	scheduler, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	defer scheduler.Stop()

	if err := scheduler.Register("bad", "not a cron", &countingJob{}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

func TestJobScheduler_StopCancelsJobs(t *testing.T) {
	scheduler, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	scheduler.Register("probe", "*/1 * * * *", &countingJob{})
	scheduler.Start()

	done := make(chan error, 1)
	go func() { done <- scheduler.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if scheduler.ctx.Err() == nil {
		t.Error("Expected job context cancelled after Stop")
	}
}
