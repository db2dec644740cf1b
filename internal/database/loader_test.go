package database

import (
	"context"
	"strings"
	"testing"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

func TestDecodeDataset(t *testing.T) {
	input := `{"videos": [{
		"id": "9f1c0a5e-2b4d-4c1e-8f00-000000000001",
		"creator_id": "c1",
		"video_created_at": "2025-11-01T10:00:00+00:00",
		"views_count": 12,
		"likes_count": 3,
		"comments_count": 1,
		"reports_count": 0,
		"created_at": "2025-11-01T10:00:00+00:00",
		"updated_at": "2025-11-02T10:00:00+00:00",
		"snapshots": [{"id": "4b8a5e1c-0000-4000-8000-000000000001", "video_id": "9f1c0a5e-2b4d-4c1e-8f00-000000000001", "views_count": 12, "delta_views_count": 12, "created_at": "2025-11-01T11:00:00+00:00", "updated_at": "2025-11-01T11:00:00+00:00"}]
	}]}`

	ds, err := DecodeDataset(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeDataset failed: %v", err)
	}
	if len(ds.Videos) != 1 || len(ds.Videos[0].Snapshots) != 1 {
		t.Fatalf("Unexpected dataset shape: %+v", ds)
	}
	if ds.Videos[0].ViewsCount != 12 {
		t.Errorf("Expected 12 views, got %d", ds.Videos[0].ViewsCount)
	}

	if _, err := DecodeDataset(strings.NewReader("{not json")); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestLoadDataset_Upsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	loadSample(t, db)

	ds := sampleDataset()
	ds.Videos[0].ViewsCount = 7000
	if _, err := db.LoadDataset(ctx, ds); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	stats, _ := db.Stats(ctx)
	if stats.Videos != 2 || stats.Snapshots != 2 {
		t.Errorf("Expected upsert to keep 2/2 rows, got %+v", stats)
	}

	var views int64
	db.QueryRow("SELECT views_count FROM videos WHERE id = ?", sampleVideoA).Scan(&views)
	if views != 7000 {
		t.Errorf("Expected updated views 7000, got %d", views)
	}
}

func TestLoadDataset_SkipsInvalidVideos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ds := sampleDataset()
	ds.Videos = append(ds.Videos,
		models.Video{ID: "not-a-uuid"},
		models.Video{
			ID: "9f1c0a5e-2b4d-4c1e-8f00-000000000003",
			Snapshots: []models.VideoSnapshot{
				{ID: "4b8a5e1c-0000-4000-8000-000000000003", VideoID: sampleVideoA},
			},
		},
	)

	report, err := db.LoadDataset(ctx, ds)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if report.VideosLoaded != 2 {
		t.Errorf("Expected 2 videos loaded, got %d", report.VideosLoaded)
	}
	if len(report.Skipped) != 2 {
		t.Errorf("Expected 2 skipped, got %v", report.Skipped)
	}
}

func TestLoadDataset_InsertFailureIsIsolated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ds := sampleDataset()
	// Rejects the second sample video at insert time
	if _, err := db.Exec("CREATE TRIGGER reject_b BEFORE INSERT ON videos WHEN NEW.views_count = 10000 BEGIN SELECT RAISE(ABORT, 'rejected'); END"); err != nil {
		t.Fatalf("Failed to create trigger: %v", err)
	}

	report, err := db.LoadDataset(ctx, ds)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if report.VideosLoaded != 1 || report.SnapshotsLoaded != 1 {
		t.Errorf("Expected one video with its snapshot, got %+v", report)
	}
	if len(report.Skipped) != 1 || !strings.HasPrefix(report.Skipped[0], sampleVideoB) {
		t.Errorf("Expected %s skipped, got %v", sampleVideoB, report.Skipped)
	}

	stats, _ := db.Stats(ctx)
	if stats.Videos != 1 || stats.Snapshots != 1 {
		t.Errorf("Expected failed video rolled back, got %+v", stats)
	}
}

func TestValidateVideo_FillsSnapshotVideoID(t *testing.T) {
	v := &models.Video{
		ID:        "aca1061a9d324ecf8c3fa2bb32d7be63",
		Snapshots: []models.VideoSnapshot{{ID: "4b8a5e1c-0000-4000-8000-000000000001"}},
	}
	if err := validateVideo(v); err != nil {
		t.Fatalf("Expected hex id to validate, got %v", err)
	}
	if v.Snapshots[0].VideoID != v.ID {
		t.Errorf("Expected video_id filled from parent, got %q", v.Snapshots[0].VideoID)
	}

	v.Snapshots[0].VideoID = "ACA1061A-9D32-4ECF-8C3F-A2BB32D7BE63"
	if err := validateVideo(v); err != nil {
		t.Errorf("Expected equivalent UUID spellings to match, got %v", err)
	}
}
