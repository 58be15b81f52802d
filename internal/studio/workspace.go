package studio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

type userScreens struct {
	generate *GenerationScreen
	history  *HistoryScreen
}

// Workspace keeps the long-lived screens of every active user, so the
// in-flight guard of the generation screen holds across requests.
type Workspace struct {
	store Gateway
	gen   Generator

	mu    sync.Mutex
	users map[string]*userScreens
}

func NewWorkspace(store Gateway, gen Generator) *Workspace {
	return &Workspace{
		store: store,
		gen:   gen,
		users: make(map[string]*userScreens),
	}
}

func (w *Workspace) screens(userID string) *userScreens {
	w.mu.Lock()
	defer w.mu.Unlock()
	us, ok := w.users[userID]
	if !ok {
		history := NewHistoryScreen(w.store, userID)
		us = &userScreens{
			history: history,
			generate: NewGenerationScreen(w.store, w.gen, userID, func(storage.GeneratedCaption) {
				if err := history.Refresh(context.Background()); err != nil {
					slog.Warn("refreshing history after generation failed", "user_id", userID, "error", err)
				}
			}),
		}
		w.users[userID] = us
	}
	return us
}

// Generation returns the user's generation screen.
func (w *Workspace) Generation(userID string) *GenerationScreen {
	return w.screens(userID).generate
}

// History returns the user's history screen. It is refreshed after every
// successful generation.
func (w *Workspace) History(userID string) *HistoryScreen {
	return w.screens(userID).history
}

// Catalog, Strategies and Brains return fresh list screens; they hold no
// state worth keeping between requests.
func (w *Workspace) Catalog(userID string) *CatalogScreen {
	return NewCatalogScreen(w.store, userID)
}

func (w *Workspace) Strategies(userID string) *StrategyScreen {
	return NewStrategyScreen(w.store, userID)
}

func (w *Workspace) Brains(userID string) *BrainScreen {
	return NewBrainScreen(w.store, userID)
}

// Forget unmounts and drops the screens of userID, e.g. on sign-out.
func (w *Workspace) Forget(userID string) {
	w.mu.Lock()
	us, ok := w.users[userID]
	delete(w.users, userID)
	w.mu.Unlock()
	if ok {
		us.generate.Unmount()
	}
}
