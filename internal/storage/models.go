package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or is owned
// by another user.
var ErrNotFound = errors.New("not found")

// Collection names, one per record kind.
const (
	CollectionCatalog    = "DATA PRODUK"
	CollectionStrategies = "STRATEGI"
	CollectionBrains     = "OTAK"
	CollectionCaptions   = "generated_captions"
)

type CatalogItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	StoreName   string    `json:"store_name"`
	ProductName string    `json:"product_name"`
	ProductLink string    `json:"product_link"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CatalogItemFields are the user-editable fields of a CatalogItem.
type CatalogItemFields struct {
	StoreName   string `json:"store_name" validate:"required"`
	ProductName string `json:"product_name" validate:"required"`
	ProductLink string `json:"product_link" validate:"omitempty,url"`
	Description string `json:"description" validate:"required"`
}

// CatalogItemPatch carries the fields to change; nil fields are left as is.
type CatalogItemPatch struct {
	StoreName   *string `json:"store_name,omitempty"`
	ProductName *string `json:"product_name,omitempty"`
	ProductLink *string `json:"product_link,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Strategy struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Hook      string    `json:"hook"`
	Example   string    `json:"example"`
	CreatedAt time.Time `json:"created_at"`
}

type StrategyFields struct {
	Title   string `json:"title" validate:"required"`
	Hook    string `json:"hook" validate:"required"`
	Example string `json:"example" validate:"required"`
}

type StrategyPatch struct {
	Title   *string `json:"title,omitempty"`
	Hook    *string `json:"hook,omitempty"`
	Example *string `json:"example,omitempty"`
}

type Brain struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Instruction string    `json:"instruction"`
	CreatedAt   time.Time `json:"created_at"`
}

type BrainFields struct {
	Title       string `json:"title" validate:"required"`
	Instruction string `json:"instruction" validate:"required"`
}

type BrainPatch struct {
	Title       *string `json:"title,omitempty"`
	Instruction *string `json:"instruction,omitempty"`
}

// GeneratedCaption is a history entry. Store, product, link and strategy
// title are copied at generation time and never follow later edits.
type GeneratedCaption struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	StoreName        string    `json:"store_name"`
	ProductName      string    `json:"product_name"`
	ProductLink      string    `json:"product_link"`
	Tone             string    `json:"tone"`
	StrategyTitle    string    `json:"strategy_title,omitempty"`
	GeneratedCaption string    `json:"generated_caption"`
	Hashtags         []string  `json:"hashtags"`
	CreatedAt        time.Time `json:"created_at"`
}

type GeneratedCaptionFields struct {
	StoreName        string
	ProductName      string
	ProductLink      string
	Tone             string
	StrategyTitle    string
	GeneratedCaption string
	Hashtags         []string
}

type User struct {
	ID           string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	Provider     string    `json:"provider"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt time.Time
}

type PasswordReset struct {
	Code      string
	UserID    string
	ExpiresAt time.Time
	UsedAt    time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
