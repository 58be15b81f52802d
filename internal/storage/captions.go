package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const captionColumns = `id, user_id, store_name, product_name, product_link, tone, strategy_title, generated_caption, hashtags, created_at`

// CreateGeneratedCaption appends a history entry. History entries have no
// update operation.
func (s *Store) CreateGeneratedCaption(ctx context.Context, userID string, f GeneratedCaptionFields) (GeneratedCaption, error) {
	hashtags := f.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	tagsJSON, err := json.Marshal(hashtags)
	if err != nil {
		return GeneratedCaption{}, fmt.Errorf("marshalling hashtags: %w", err)
	}

	gc := GeneratedCaption{
		ID:               newID(),
		UserID:           userID,
		StoreName:        f.StoreName,
		ProductName:      f.ProductName,
		ProductLink:      f.ProductLink,
		Tone:             f.Tone,
		StrategyTitle:    f.StrategyTitle,
		GeneratedCaption: f.GeneratedCaption,
		Hashtags:         append([]string(nil), hashtags...),
		CreatedAt:        s.stamp(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generated_captions (`+captionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gc.ID, gc.UserID, gc.StoreName, gc.ProductName, gc.ProductLink, gc.Tone,
		gc.StrategyTitle, gc.GeneratedCaption, string(tagsJSON), formatTime(gc.CreatedAt),
	)
	if err != nil {
		return GeneratedCaption{}, fmt.Errorf("inserting into %s: %w", CollectionCaptions, err)
	}
	return gc, nil
}

func (s *Store) ListGeneratedCaptions(ctx context.Context, userID string) ([]GeneratedCaption, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+captionColumns+` FROM generated_captions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", CollectionCaptions, err)
	}
	defer rows.Close()

	out := []GeneratedCaption{}
	for rows.Next() {
		gc, err := scanGeneratedCaption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(out, func(v GeneratedCaption) (time.Time, string) { return v.CreatedAt, v.ID })
	return out, nil
}

func (s *Store) GetGeneratedCaption(ctx context.Context, userID, id string) (GeneratedCaption, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+captionColumns+` FROM generated_captions WHERE id = ? AND user_id = ?`, id, userID)
	gc, err := scanGeneratedCaption(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GeneratedCaption{}, ErrNotFound
	}
	return gc, err
}

func (s *Store) DeleteGeneratedCaption(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, "generated_captions", userID, id)
}

func scanGeneratedCaption(r scanner) (GeneratedCaption, error) {
	var gc GeneratedCaption
	var tagsJSON, createdAt string
	if err := r.Scan(&gc.ID, &gc.UserID, &gc.StoreName, &gc.ProductName, &gc.ProductLink, &gc.Tone,
		&gc.StrategyTitle, &gc.GeneratedCaption, &tagsJSON, &createdAt); err != nil {
		return GeneratedCaption{}, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &gc.Hashtags); err != nil {
		return GeneratedCaption{}, fmt.Errorf("parsing hashtags of %s: %w", gc.ID, err)
	}
	if gc.Hashtags == nil {
		gc.Hashtags = []string{}
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return GeneratedCaption{}, err
	}
	gc.CreatedAt = t
	return gc, nil
}
