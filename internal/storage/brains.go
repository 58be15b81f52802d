package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const brainColumns = `id, user_id, title, instruction, created_at`

func (s *Store) CreateBrain(ctx context.Context, userID string, f BrainFields) (Brain, error) {
	b := Brain{
		ID:          newID(),
		UserID:      userID,
		Title:       f.Title,
		Instruction: f.Instruction,
		CreatedAt:   s.stamp(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brains (`+brainColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Title, b.Instruction, formatTime(b.CreatedAt),
	)
	if err != nil {
		return Brain{}, fmt.Errorf("inserting into %s: %w", CollectionBrains, err)
	}
	return b, nil
}

func (s *Store) ListBrains(ctx context.Context, userID string) ([]Brain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+brainColumns+` FROM brains WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", CollectionBrains, err)
	}
	defer rows.Close()

	out := []Brain{}
	for rows.Next() {
		b, err := scanBrain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(out, func(v Brain) (time.Time, string) { return v.CreatedAt, v.ID })
	return out, nil
}

func (s *Store) GetBrain(ctx context.Context, userID, id string) (Brain, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+brainColumns+` FROM brains WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanBrain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Brain{}, ErrNotFound
	}
	return b, err
}

func (s *Store) UpdateBrain(ctx context.Context, userID, id string, p BrainPatch) error {
	var up patch
	up.set("title", p.Title)
	up.set("instruction", p.Instruction)
	return s.applyPatch(ctx, "brains", userID, id, up)
}

func (s *Store) DeleteBrain(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, "brains", userID, id)
}

func scanBrain(r scanner) (Brain, error) {
	var b Brain
	var createdAt string
	if err := r.Scan(&b.ID, &b.UserID, &b.Title, &b.Instruction, &createdAt); err != nil {
		return Brain{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Brain{}, err
	}
	b.CreatedAt = t
	return b, nil
}
