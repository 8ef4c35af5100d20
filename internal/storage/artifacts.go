package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctrlr/internal/models"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore keeps metadata rows for files in the converted directory.
type ArtifactStore struct {
	db *sql.DB
}

func NewArtifactStore(db *sql.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Record inserts the artifact and fills in its ID.
func (s *ArtifactStore) Record(ctx context.Context, a *models.Artifact) error {
	if a == nil {
		return errors.New("artifact required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (file_name, stored_path, url, remote_url, source_ext, target_format, size, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FileName, a.StoredPath, a.URL, a.RemoteURL, a.SourceExt, a.TargetFormat, a.Size,
		a.CreatedAt.UTC(), nullTime(a.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("artifact id: %w", err)
	}
	a.ID = id
	return nil
}

// FindByName looks up an artifact by its generated file name.
func (s *ArtifactStore) FindByName(ctx context.Context, name string) (*models.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, stored_path, url, remote_url, source_ext, target_format, size, created_at, expires_at
		FROM artifacts WHERE file_name = ?`, name)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	return a, err
}

// Expired lists artifacts whose retention window has passed.
func (s *ArtifactStore) Expired(ctx context.Context, now time.Time) ([]*models.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, stored_path, url, remote_url, source_ext, target_format, size, created_at, expires_at
		FROM artifacts
		WHERE expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query expired artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *ArtifactStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(sc scanner) (*models.Artifact, error) {
	var (
		a       models.Artifact
		expires sql.NullTime
	)
	if err := sc.Scan(&a.ID, &a.FileName, &a.StoredPath, &a.URL, &a.RemoteURL,
		&a.SourceExt, &a.TargetFormat, &a.Size, &a.CreatedAt, &expires); err != nil {
		return nil, err
	}
	if expires.Valid {
		a.ExpiresAt = expires.Time
	}
	return &a, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
