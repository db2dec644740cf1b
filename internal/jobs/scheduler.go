package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of periodic work
type Job interface {
	Run(ctx context.Context) error
}

// JobScheduler runs registered jobs on cron schedules
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]Job
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
}

// NewJobScheduler creates a new job scheduler in UTC
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register schedules job under name using a five-field cron expression
func (s *JobScheduler) Register(name, cron string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.scheduler.NewJob(
		gocron.CronJob(cron, false),
		gocron.NewTask(func() { s.runJob(name, job) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s (cron: %s)", name, cron)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
	s.scheduler.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *JobScheduler) Stop() error {
	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return nil
}

// RunNow immediately runs a specific job
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	return job.Run(s.ctx)
}

func (s *JobScheduler) runJob(name string, job Job) {
	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(start).Round(time.Millisecond))
}
