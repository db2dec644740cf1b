package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name        string
		dsn         string
		wantDriver  string
		wantSource  string
		wantDialect Dialect
		wantErr     bool
	}{
		{
			name:        "postgres",
			dsn:         "postgres://u:p@localhost:5432/videos?sslmode=disable",
			wantDriver:  "pgx",
			wantSource:  "postgres://u:p@localhost:5432/videos?sslmode=disable",
			wantDialect: DialectPostgres,
		},
		{
			name:        "mysql adds tcp and parseTime",
			dsn:         "mysql://u:p@db:3306/videos",
			wantDriver:  "mysql",
			wantSource:  "u:p@tcp(db:3306)/videos?parseTime=true",
			wantDialect: DialectMySQL,
		},
		{
			name:        "mysql keeps existing params",
			dsn:         "mysql://u:p@db:3306/videos?charset=utf8mb4&parseTime=true",
			wantDriver:  "mysql",
			wantSource:  "u:p@tcp(db:3306)/videos?charset=utf8mb4&parseTime=true",
			wantDialect: DialectMySQL,
		},
		{
			name:        "sqlite",
			dsn:         "sqlite:///tmp/videos.db",
			wantDriver:  "sqlite",
			wantSource:  "/tmp/videos.db",
			wantDialect: DialectSQLite,
		},
		{name: "sqlite without path", dsn: "sqlite://", wantErr: true},
		{name: "bare path", dsn: "videos.db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, source, dialect, err := parseDSN(tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if driver != tt.wantDriver || source != tt.wantSource || dialect != tt.wantDialect {
				t.Errorf("Expected (%s, %s, %s), got (%s, %s, %s)",
					tt.wantDriver, tt.wantSource, tt.wantDialect, driver, source, dialect)
			}
		})
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("sqlite:///invalid/path/that/does/not/exist/test.db")
	if err == nil {
		t.Fatal("Expected error for invalid path, got nil")
	}
}

func TestInitialize(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, table := range []string{TableVideos, TableSnapshots} {
		exists, err := db.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s) failed: %v", table, err)
		}
		if !exists {
			t.Errorf("Table %s was not created", table)
		}
	}

	// Idempotent
	if err := db.Initialize(ctx); err != nil {
		t.Errorf("Second Initialize failed: %v", err)
	}

	if exists, _ := db.TableExists(ctx, "nope"); exists {
		t.Error("Expected unknown table to be missing")
	}
}

func TestSchemaStatements_MySQLInlinesIndexes(t *testing.T) {
	stmts := schemaStatements(DialectMySQL)
	if len(stmts) != 2 {
		t.Fatalf("Expected 2 statements for MySQL, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "INDEX idx_videos_creator (creator_id)") {
		t.Errorf("Expected inline creator index, got %s", stmts[0])
	}

	pg := schemaStatements(DialectPostgres)
	if len(pg) != 2+len(indexes) {
		t.Errorf("Expected %d statements for Postgres, got %d", 2+len(indexes), len(pg))
	}
	if !strings.Contains(pg[0], "id UUID PRIMARY KEY") {
		t.Errorf("Expected UUID id column, got %s", pg[0])
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: DialectPostgres}
	if got := pg.Rebind("SELECT ? , ?"); got != "SELECT $1 , $2" {
		t.Errorf("Expected $n placeholders, got %s", got)
	}

	my := &DB{Dialect: DialectMySQL}
	if got := my.Rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("Expected unchanged query, got %s", got)
	}
}

func TestUpsertClause(t *testing.T) {
	cols := []string{"id", "views_count", "created_at", "updated_at"}

	if got := upsertClause(DialectPostgres, cols); got != "ON CONFLICT (id) DO UPDATE SET views_count = EXCLUDED.views_count, updated_at = EXCLUDED.updated_at" {
		t.Errorf("Unexpected postgres clause: %s", got)
	}
	if got := upsertClause(DialectMySQL, cols); got != "ON DUPLICATE KEY UPDATE views_count = VALUES(views_count), updated_at = VALUES(updated_at)" {
		t.Errorf("Unexpected mysql clause: %s", got)
	}
}

func TestQueryRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	loadSample(t, db)

	rs, err := db.QueryRows(ctx, "SELECT COUNT(*) AS total, SUM(views_count) AS views FROM videos")
	if err != nil {
		t.Fatalf("QueryRows failed: %v", err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rs.Rows))
	}
	if rs.Columns[0] != "total" || rs.Columns[1] != "views" {
		t.Errorf("Expected columns [total views], got %v", rs.Columns)
	}
	if rs.Rows[0][0] != int64(2) {
		t.Errorf("Expected total 2, got %v (%T)", rs.Rows[0][0], rs.Rows[0][0])
	}
	if rs.Rows[0][1] != int64(15000) {
		t.Errorf("Expected views 15000, got %v", rs.Rows[0][1])
	}

	rs, err = db.QueryRows(ctx, "SELECT id FROM videos WHERE views_count > 1000000")
	if err != nil {
		t.Fatalf("QueryRows failed: %v", err)
	}
	if !rs.Empty() {
		t.Errorf("Expected no rows, got %d", len(rs.Rows))
	}
}

func TestQueryRows_Errors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.QueryRows(ctx, "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
	if _, err := db.QueryRows(ctx, "SELECT * FROM missing_table"); err == nil {
		t.Error("Expected error for missing table")
	}
}

func TestStatsAndRecentVideos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	loadSample(t, db)

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Videos != 2 || stats.Snapshots != 2 {
		t.Errorf("Expected 2 videos and 2 snapshots, got %+v", stats)
	}

	recent, err := db.RecentVideos(ctx, 1)
	if err != nil {
		t.Fatalf("RecentVideos failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("Expected 1 video, got %d", len(recent))
	}
	if recent[0].ID != sampleVideoB {
		t.Errorf("Expected newest video %s, got %s", sampleVideoB, recent[0].ID)
	}
}

const (
	sampleVideoA = "9f1c0a5e-2b4d-4c1e-8f00-000000000001"
	sampleVideoB = "9f1c0a5e-2b4d-4c1e-8f00-000000000002"
)

func sampleDataset() *models.VideoDataset {
	day := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	return &models.VideoDataset{Videos: []models.Video{
		{
			ID:             sampleVideoA,
			CreatorID:      "aca1061a9d324ecf8c3fa2bb32d7be63",
			VideoCreatedAt: day,
			ViewsCount:     5000,
			LikesCount:     100,
			CreatedAt:      day,
			UpdatedAt:      day,
			Snapshots: []models.VideoSnapshot{
				{ID: "4b8a5e1c-0000-4000-8000-000000000001", VideoID: sampleVideoA, ViewsCount: 4000, DeltaViewsCount: 4000, CreatedAt: day},
			},
		},
		{
			ID:             sampleVideoB,
			CreatorID:      "aca1061a9d324ecf8c3fa2bb32d7be63",
			VideoCreatedAt: day.Add(24 * time.Hour),
			ViewsCount:     10000,
			LikesCount:     300,
			CreatedAt:      day,
			UpdatedAt:      day,
			Snapshots: []models.VideoSnapshot{
				{ID: "4b8a5e1c-0000-4000-8000-000000000002", ViewsCount: 9000, DeltaViewsCount: 9000, CreatedAt: day},
			},
		},
	}}
}

func loadSample(t *testing.T, db *DB) {
	t.Helper()
	report, err := db.LoadDataset(context.Background(), sampleDataset())
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if report.VideosLoaded != 2 {
		t.Fatalf("Expected 2 videos loaded, got %+v", report)
	}
}
