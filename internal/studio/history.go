package studio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/infobmscommunity-ai/kohen-caption/internal/generation"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// HistoryScreen lists a user's generated captions, newest first.
type HistoryScreen struct {
	store  CaptionStore
	userID string

	mu    sync.Mutex
	state ListState[storage.GeneratedCaption]
}

func NewHistoryScreen(store CaptionStore, userID string) *HistoryScreen {
	return &HistoryScreen{
		store:  store,
		userID: userID,
		state:  ListState[storage.GeneratedCaption]{Items: []storage.GeneratedCaption{}},
	}
}

func (h *HistoryScreen) State() ListState[storage.GeneratedCaption] {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.state
	s.Items = append(make([]storage.GeneratedCaption, 0, len(s.Items)), s.Items...)
	return s
}

func (h *HistoryScreen) DeletePrompt() string {
	return HistoryMessages.DeletePrompt
}

func (h *HistoryScreen) dispatch(a listAction[storage.GeneratedCaption]) {
	h.mu.Lock()
	h.state = reduceList(h.state, a)
	h.mu.Unlock()
}

func (h *HistoryScreen) Mount(ctx context.Context) error {
	return h.Refresh(ctx)
}

// Refresh re-reads the history. It is the external refresh signal raised
// after a caption is generated.
func (h *HistoryScreen) Refresh(ctx context.Context) error {
	h.dispatch(listAction[storage.GeneratedCaption]{kind: listLoadStarted})
	items, err := h.store.ListGeneratedCaptions(ctx, h.userID)
	if err != nil {
		aerr := persistenceErr(err, HistoryMessages.Resource, MsgLoadFailed)
		slog.Error("listing history failed", "user_id", h.userID, "error", err)
		h.dispatch(listAction[storage.GeneratedCaption]{kind: listLoadFailed, err: aerr})
		return aerr
	}
	h.dispatch(listAction[storage.GeneratedCaption]{kind: listLoaded, items: items})
	return nil
}

// Delete removes an entry once confirmed; without confirmation it does nothing.
func (h *HistoryScreen) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return nil
	}
	if err := h.store.DeleteGeneratedCaption(ctx, h.userID, id); err != nil {
		aerr := persistenceErr(err, HistoryMessages.Resource, HistoryMessages.DeleteFailed)
		slog.Error("deleting history entry failed", "user_id", h.userID, "id", id, "error", err)
		h.dispatch(listAction[storage.GeneratedCaption]{kind: listFailed, err: aerr})
		return aerr
	}
	slog.Info("history entry deleted", "user_id", h.userID, "id", id)
	_ = h.Refresh(ctx)
	return nil
}

// CopyText is what the copy action puts on the clipboard for a history entry.
func CopyText(c storage.GeneratedCaption) string {
	return generation.Result{Caption: c.GeneratedCaption, Hashtags: c.Hashtags}.CopyText()
}
