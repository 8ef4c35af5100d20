package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ctrlr/internal/config"
	"ctrlr/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: ":memory:"},
	}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestArtifactStoreRecordAndFind(t *testing.T) {
	store := NewArtifactStore(newTestDB(t))
	ctx := context.Background()

	a := &models.Artifact{
		FileName:     "1700000000000-abc.pdf",
		StoredPath:   "/tmp/converted/1700000000000-abc.pdf",
		URL:          "/converted/1700000000000-abc.pdf",
		RemoteURL:    "https://v2.convertapi.com/d/xyz/report.pdf",
		SourceExt:    "doc",
		TargetFormat: "pdf",
		Size:         1024,
	}
	if err := store.Record(ctx, a); err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	got, err := store.FindByName(ctx, a.FileName)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.RemoteURL != a.RemoteURL || got.SourceExt != "doc" || got.Size != 1024 {
		t.Fatalf("unexpected artifact: %+v", got)
	}
	if !got.ExpiresAt.IsZero() {
		t.Fatalf("expected no expiry, got %v", got.ExpiresAt)
	}

	if _, err := store.FindByName(ctx, "missing.pdf"); err != ErrArtifactNotFound {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestArtifactStoreExpired(t *testing.T) {
	store := NewArtifactStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	old := &models.Artifact{FileName: "old.pdf", StoredPath: "/x/old.pdf", URL: "/converted/old.pdf",
		SourceExt: "doc", TargetFormat: "pdf", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	fresh := &models.Artifact{FileName: "fresh.pdf", StoredPath: "/x/fresh.pdf", URL: "/converted/fresh.pdf",
		SourceExt: "doc", TargetFormat: "pdf", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	forever := &models.Artifact{FileName: "forever.pdf", StoredPath: "/x/forever.pdf", URL: "/converted/forever.pdf",
		SourceExt: "doc", TargetFormat: "pdf", CreatedAt: now.Add(-48 * time.Hour)}
	for _, a := range []*models.Artifact{old, fresh, forever} {
		if err := store.Record(ctx, a); err != nil {
			t.Fatalf("record %s: %v", a.FileName, err)
		}
	}

	expired, err := store.Expired(ctx, now)
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	if len(expired) != 1 || expired[0].FileName != "old.pdf" {
		t.Fatalf("expected only old.pdf, got %+v", expired)
	}

	if err := store.Delete(ctx, old.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	expired, err = store.Expired(ctx, now)
	if err != nil {
		t.Fatalf("expired after delete: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected no expired artifacts, got %d", len(expired))
	}
}
