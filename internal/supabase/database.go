package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const dreamColumns = `id, user_id, title, dream_text, story, analysis, story_tone, story_length,
	has_audio, audio_duration, tags, images, is_favorite, created_at, updated_at`

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDream(row rowScanner) (*models.Dream, error) {
	var (
		d      models.Dream
		images []byte
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.Title, &d.DreamText, &d.Story, &d.Analysis, &d.StoryTone, &d.StoryLength,
		&d.HasAudio, &d.AudioDuration, pq.Array(&d.Tags), &images, &d.IsFavorite, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Images = images
	return &d, nil
}

func imagesParam(images []byte) string {
	if len(images) == 0 {
		return "[]"
	}
	return string(images)
}

func (d *DatabaseClient) CreateDream(ctx context.Context, dream *models.Dream) (*models.Dream, error) {
	if dream.ID == uuid.Nil {
		dream.ID = uuid.New()
	}
	tags := dream.Tags
	if tags == nil {
		tags = []string{}
	}

	created, err := scanDream(d.db.QueryRowContext(ctx, `
		INSERT INTO dreams (id, user_id, title, dream_text, story, analysis, story_tone, story_length,
			has_audio, audio_duration, tags, images, is_favorite)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13)
		RETURNING `+dreamColumns,
		dream.ID, dream.UserID, dream.Title, dream.DreamText, dream.Story, dream.Analysis,
		dream.StoryTone, dream.StoryLength, dream.HasAudio, dream.AudioDuration,
		pq.Array(tags), imagesParam(dream.Images), dream.IsFavorite,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create dream: %w", err)
	}
	return created, nil
}

func (d *DatabaseClient) GetDream(ctx context.Context, id uuid.UUID, userID string) (*models.Dream, error) {
	dream, err := scanDream(d.db.QueryRowContext(ctx, `
		SELECT `+dreamColumns+`
		FROM dreams
		WHERE id = $1 AND user_id = $2
	`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "supabase.GetDream", "dream %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dream: %w", err)
	}
	return dream, nil
}

// ListDreams returns one page of the user's dreams, newest first, and the
// total number of matches.
func (d *DatabaseClient) ListDreams(ctx context.Context, f models.DreamFilter) ([]models.Dream, int, error) {
	where, args := dreamWhere(f)

	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dreams WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dreams: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM dreams
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, dreamColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dreams: %w", err)
	}
	defer rows.Close()

	dreams := []models.Dream{}
	for rows.Next() {
		dream, err := scanDream(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dream: %w", err)
		}
		dreams = append(dreams, *dream)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list dreams: %w", err)
	}
	return dreams, total, nil
}

func dreamWhere(f models.DreamFilter) (string, []interface{}) {
	clauses := []string{"user_id = $1"}
	args := []interface{}{f.UserID}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		p := next("%" + escapeLike(s) + "%")
		clauses = append(clauses, fmt.Sprintf(
			"(title ILIKE %[1]s OR dream_text ILIKE %[1]s OR story ILIKE %[1]s OR analysis ILIKE %[1]s)", p))
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, "tags && "+next(pq.Array(f.Tags)))
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= "+next(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= "+next(*f.To))
	}
	if f.FavoritesOnly {
		clauses = append(clauses, "is_favorite")
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// UpdateDream overwrites the fields set in changes; the store keeps no
// version, so the last write wins.
func (d *DatabaseClient) UpdateDream(ctx context.Context, id uuid.UUID, userID string, changes models.DreamChanges) (*models.Dream, error) {
	var tags interface{}
	if changes.Tags != nil {
		tags = pq.Array(*changes.Tags)
	}
	var images sql.NullString
	if changes.Images != nil {
		images = sql.NullString{String: imagesParam(changes.Images), Valid: true}
	}

	dream, err := scanDream(d.db.QueryRowContext(ctx, `
		UPDATE dreams SET
			title = COALESCE($3, title),
			dream_text = COALESCE($4, dream_text),
			story = COALESCE($5, story),
			analysis = COALESCE($6, analysis),
			story_tone = COALESCE($7, story_tone),
			story_length = COALESCE($8, story_length),
			tags = COALESCE($9::text[], tags),
			images = COALESCE($10::jsonb, images),
			is_favorite = COALESCE($11, is_favorite)
		WHERE id = $1 AND user_id = $2
		RETURNING `+dreamColumns,
		id, userID, changes.Title, changes.DreamText, changes.Story, changes.Analysis,
		changes.StoryTone, changes.StoryLength, tags, images, changes.IsFavorite,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "supabase.UpdateDream", "dream %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update dream: %w", err)
	}
	return dream, nil
}

func (d *DatabaseClient) DeleteDream(ctx context.Context, id uuid.UUID, userID string) error {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM dreams
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete dream: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete dream: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.NotFound, "supabase.DeleteDream", "dream %s not found", id)
	}
	return nil
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
