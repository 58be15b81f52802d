package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const catalogColumns = `id, user_id, store_name, product_name, product_link, description, created_at`

// CreateCatalogItem inserts a catalog item for userID, stamping id and
// creation time server-side.
func (s *Store) CreateCatalogItem(ctx context.Context, userID string, f CatalogItemFields) (CatalogItem, error) {
	item := CatalogItem{
		ID:          newID(),
		UserID:      userID,
		StoreName:   f.StoreName,
		ProductName: f.ProductName,
		ProductLink: f.ProductLink,
		Description: f.Description,
		CreatedAt:   s.stamp(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (`+catalogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.StoreName, item.ProductName, item.ProductLink,
		item.Description, formatTime(item.CreatedAt),
	)
	if err != nil {
		return CatalogItem{}, fmt.Errorf("inserting into %s: %w", CollectionCatalog, err)
	}
	return item, nil
}

// ListCatalogItems returns every catalog item of userID, newest first.
func (s *Store) ListCatalogItems(ctx context.Context, userID string) ([]CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+catalogColumns+` FROM catalog_items WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", CollectionCatalog, err)
	}
	defer rows.Close()

	items := []CatalogItem{}
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(items, func(c CatalogItem) (time.Time, string) { return c.CreatedAt, c.ID })
	return items, nil
}

func (s *Store) GetCatalogItem(ctx context.Context, userID, id string) (CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM catalog_items WHERE id = ? AND user_id = ?`, id, userID)
	item, err := scanCatalogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogItem{}, ErrNotFound
	}
	return item, err
}

// UpdateCatalogItem applies p to the item; id, owner and creation time are
// never changed.
func (s *Store) UpdateCatalogItem(ctx context.Context, userID, id string, p CatalogItemPatch) error {
	var up patch
	up.set("store_name", p.StoreName)
	up.set("product_name", p.ProductName)
	up.set("product_link", p.ProductLink)
	up.set("description", p.Description)
	return s.applyPatch(ctx, "catalog_items", userID, id, up)
}

func (s *Store) DeleteCatalogItem(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, "catalog_items", userID, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCatalogItem(r scanner) (CatalogItem, error) {
	var c CatalogItem
	var createdAt string
	if err := r.Scan(&c.ID, &c.UserID, &c.StoreName, &c.ProductName, &c.ProductLink, &c.Description, &createdAt); err != nil {
		return CatalogItem{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return CatalogItem{}, err
	}
	c.CreatedAt = t
	return c, nil
}
