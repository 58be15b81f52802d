package studio

import (
	"context"
	"strings"

	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// CatalogStore is the persistence of the catalog screen.
type CatalogStore interface {
	ListCatalogItems(ctx context.Context, userID string) ([]storage.CatalogItem, error)
	CreateCatalogItem(ctx context.Context, userID string, f storage.CatalogItemFields) (storage.CatalogItem, error)
	UpdateCatalogItem(ctx context.Context, userID, id string, p storage.CatalogItemPatch) error
	DeleteCatalogItem(ctx context.Context, userID, id string) error
}

// StrategyStore is the persistence of the strategy screen.
type StrategyStore interface {
	ListStrategies(ctx context.Context, userID string) ([]storage.Strategy, error)
	CreateStrategy(ctx context.Context, userID string, f storage.StrategyFields) (storage.Strategy, error)
	UpdateStrategy(ctx context.Context, userID, id string, p storage.StrategyPatch) error
	DeleteStrategy(ctx context.Context, userID, id string) error
}

// BrainStore is the persistence of the brain screen.
type BrainStore interface {
	ListBrains(ctx context.Context, userID string) ([]storage.Brain, error)
	CreateBrain(ctx context.Context, userID string, f storage.BrainFields) (storage.Brain, error)
	UpdateBrain(ctx context.Context, userID, id string, p storage.BrainPatch) error
	DeleteBrain(ctx context.Context, userID, id string) error
}

// CaptionStore is the persistence of generated captions.
type CaptionStore interface {
	ListGeneratedCaptions(ctx context.Context, userID string) ([]storage.GeneratedCaption, error)
	CreateGeneratedCaption(ctx context.Context, userID string, f storage.GeneratedCaptionFields) (storage.GeneratedCaption, error)
	DeleteGeneratedCaption(ctx context.Context, userID, id string) error
}

// Gateway is everything the studio reads and writes.
type Gateway interface {
	CatalogStore
	StrategyStore
	BrainStore
	CaptionStore
}

type (
	CatalogScreen  = ListScreen[storage.CatalogItem, storage.CatalogItemFields]
	StrategyScreen = ListScreen[storage.Strategy, storage.StrategyFields]
	BrainScreen    = ListScreen[storage.Brain, storage.BrainFields]
)

func NewCatalogScreen(store CatalogStore, userID string) *CatalogScreen {
	return NewListScreen(ListBackend[storage.CatalogItem, storage.CatalogItemFields]{
		Collection: storage.CollectionCatalog,
		List:       store.ListCatalogItems,
		Create:     store.CreateCatalogItem,
		Update: func(ctx context.Context, userID, id string, f storage.CatalogItemFields) error {
			return store.UpdateCatalogItem(ctx, userID, id, storage.CatalogItemPatch{
				StoreName:   &f.StoreName,
				ProductName: &f.ProductName,
				ProductLink: &f.ProductLink,
				Description: &f.Description,
			})
		},
		Delete: store.DeleteCatalogItem,
		ID:     func(c storage.CatalogItem) string { return c.ID },
		Normalize: func(f storage.CatalogItemFields) storage.CatalogItemFields {
			f.StoreName = strings.TrimSpace(f.StoreName)
			f.ProductName = strings.TrimSpace(f.ProductName)
			f.ProductLink = strings.TrimSpace(f.ProductLink)
			f.Description = strings.TrimSpace(f.Description)
			return f
		},
	}, CatalogMessages, userID)
}

func NewStrategyScreen(store StrategyStore, userID string) *StrategyScreen {
	return NewListScreen(ListBackend[storage.Strategy, storage.StrategyFields]{
		Collection: storage.CollectionStrategies,
		List:       store.ListStrategies,
		Create:     store.CreateStrategy,
		Update: func(ctx context.Context, userID, id string, f storage.StrategyFields) error {
			return store.UpdateStrategy(ctx, userID, id, storage.StrategyPatch{
				Title:   &f.Title,
				Hook:    &f.Hook,
				Example: &f.Example,
			})
		},
		Delete: store.DeleteStrategy,
		ID:     func(s storage.Strategy) string { return s.ID },
		Normalize: func(f storage.StrategyFields) storage.StrategyFields {
			f.Title = strings.TrimSpace(f.Title)
			f.Hook = strings.TrimSpace(f.Hook)
			f.Example = strings.TrimSpace(f.Example)
			return f
		},
	}, StrategyMessages, userID)
}

func NewBrainScreen(store BrainStore, userID string) *BrainScreen {
	return NewListScreen(ListBackend[storage.Brain, storage.BrainFields]{
		Collection: storage.CollectionBrains,
		List:       store.ListBrains,
		Create:     store.CreateBrain,
		Update: func(ctx context.Context, userID, id string, f storage.BrainFields) error {
			return store.UpdateBrain(ctx, userID, id, storage.BrainPatch{
				Title:       &f.Title,
				Instruction: &f.Instruction,
			})
		},
		Delete: store.DeleteBrain,
		ID:     func(b storage.Brain) string { return b.ID },
		Normalize: func(f storage.BrainFields) storage.BrainFields {
			f.Title = strings.TrimSpace(f.Title)
			// Instructions keep their formatting; only blank input is rejected.
			if strings.TrimSpace(f.Instruction) == "" {
				f.Instruction = ""
			}
			return f
		},
	}, BrainMessages, userID)
}
