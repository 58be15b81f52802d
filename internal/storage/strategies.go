package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const strategyColumns = `id, user_id, title, hook, example, created_at`

func (s *Store) CreateStrategy(ctx context.Context, userID string, f StrategyFields) (Strategy, error) {
	st := Strategy{
		ID:        newID(),
		UserID:    userID,
		Title:     f.Title,
		Hook:      f.Hook,
		Example:   f.Example,
		CreatedAt: s.stamp(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (`+strategyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.UserID, st.Title, st.Hook, st.Example, formatTime(st.CreatedAt),
	)
	if err != nil {
		return Strategy{}, fmt.Errorf("inserting into %s: %w", CollectionStrategies, err)
	}
	return st, nil
}

func (s *Store) ListStrategies(ctx context.Context, userID string) ([]Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", CollectionStrategies, err)
	}
	defer rows.Close()

	out := []Strategy{}
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(out, func(v Strategy) (time.Time, string) { return v.CreatedAt, v.ID })
	return out, nil
}

func (s *Store) GetStrategy(ctx context.Context, userID, id string) (Strategy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = ? AND user_id = ?`, id, userID)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Strategy{}, ErrNotFound
	}
	return st, err
}

func (s *Store) UpdateStrategy(ctx context.Context, userID, id string, p StrategyPatch) error {
	var up patch
	up.set("title", p.Title)
	up.set("hook", p.Hook)
	up.set("example", p.Example)
	return s.applyPatch(ctx, "strategies", userID, id, up)
}

func (s *Store) DeleteStrategy(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, "strategies", userID, id)
}

func scanStrategy(r scanner) (Strategy, error) {
	var st Strategy
	var createdAt string
	if err := r.Scan(&st.ID, &st.UserID, &st.Title, &st.Hook, &st.Example, &createdAt); err != nil {
		return Strategy{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Strategy{}, err
	}
	st.CreatedAt = t
	return st, nil
}
