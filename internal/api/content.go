package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

// CodeConfirmationRequired is returned by DELETE routes called without
// confirm=true. The message is the prompt the client should show.
const CodeConfirmationRequired = "studio/confirmation-required"

type mutationResponse[T any] struct {
	ID     string `json:"id"`
	Notice string `json:"notice"`
	Item   *T     `json:"item,omitempty"`
}

func handleList[T, D any](screens func(userID string) *studio.ListScreen[T, D]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		screen := screens(userFromContext(r.Context()).ID)
		if err := screen.Mount(r.Context()); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, screen.State().Items)
	}
}

func handleCreate[T, D any](screens func(userID string) *studio.ListScreen[T, D]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft D
		if !decodeJSON(w, r, &draft) {
			return
		}
		screen := screens(userFromContext(r.Context()).ID)
		id, err := screen.Submit(r.Context(), draft)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, savedResponse(screen, id))
	}
}

func handleGet[T any](get func(ctx context.Context, userID, id string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := get(r.Context(), userFromContext(r.Context()).ID, chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			writeAppError(w, r, apperr.NotFound("Data"))
			return
		}
		if err != nil {
			writeAppError(w, r, apperr.Persistence(studio.MsgLoadFailed, err))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handlePatch merges the sent fields into the stored record and submits the
// result as an edit, so updates go through the same validation as creates.
func handlePatch[T, D, P any](screens func(userID string) *studio.ListScreen[T, D], get func(ctx context.Context, userID, id string) (T, error), merge func(T, P) D) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p P
		if !decodeJSON(w, r, &p) {
			return
		}
		userID := userFromContext(r.Context()).ID
		id := chi.URLParam(r, "id")

		current, err := get(r.Context(), userID, id)
		if errors.Is(err, storage.ErrNotFound) {
			writeAppError(w, r, apperr.NotFound("Data"))
			return
		}
		if err != nil {
			writeAppError(w, r, apperr.Persistence(studio.MsgLoadFailed, err))
			return
		}

		screen := screens(userID)
		screen.Edit(id)
		if _, err := screen.Submit(r.Context(), merge(current, p)); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, savedResponse(screen, id))
	}
}

func handleDelete[T, D any](screens func(userID string) *studio.ListScreen[T, D]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		screen := screens(userFromContext(r.Context()).ID)
		if !confirmed(r) {
			writeError(w, http.StatusPreconditionRequired, "confirmation_required", CodeConfirmationRequired, screen.DeletePrompt())
			return
		}
		if err := screen.Delete(r.Context(), chi.URLParam(r, "id"), true); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func savedResponse[T, D any](screen *studio.ListScreen[T, D], id string) mutationResponse[T] {
	resp := mutationResponse[T]{ID: id, Notice: screen.State().Notice}
	if item, ok := screen.Find(id); ok {
		resp.Item = &item
	}
	return resp
}

func confirmed(r *http.Request) bool {
	return r.URL.Query().Get("confirm") == "true"
}

func mergeCatalogItem(c storage.CatalogItem, p storage.CatalogItemPatch) storage.CatalogItemFields {
	f := storage.CatalogItemFields{
		StoreName:   c.StoreName,
		ProductName: c.ProductName,
		ProductLink: c.ProductLink,
		Description: c.Description,
	}
	setIf(&f.StoreName, p.StoreName)
	setIf(&f.ProductName, p.ProductName)
	setIf(&f.ProductLink, p.ProductLink)
	setIf(&f.Description, p.Description)
	return f
}

func mergeStrategy(s storage.Strategy, p storage.StrategyPatch) storage.StrategyFields {
	f := storage.StrategyFields{Title: s.Title, Hook: s.Hook, Example: s.Example}
	setIf(&f.Title, p.Title)
	setIf(&f.Hook, p.Hook)
	setIf(&f.Example, p.Example)
	return f
}

func mergeBrain(b storage.Brain, p storage.BrainPatch) storage.BrainFields {
	f := storage.BrainFields{Title: b.Title, Instruction: b.Instruction}
	setIf(&f.Title, p.Title)
	setIf(&f.Instruction, p.Instruction)
	return f
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// --- history ---

func handleListCaptions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := deps.Workspace.History(userFromContext(r.Context()).ID)
		if err := history.Refresh(r.Context()); err != nil {
			writeAppError(w, r, err)
			return
		}
		items := history.State().Items
		limit := min(parseIntParam(r, "limit", len(items), 0), len(items))
		out := make([]studio.Caption, 0, limit)
		for _, c := range items[:limit] {
			out = append(out, studio.Caption{GeneratedCaption: c, CopyText: studio.CopyText(c)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteCaption(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := deps.Workspace.History(userFromContext(r.Context()).ID)
		if !confirmed(r) {
			writeError(w, http.StatusPreconditionRequired, "confirmation_required", CodeConfirmationRequired, history.DeletePrompt())
			return
		}
		if err := history.Delete(r.Context(), chi.URLParam(r, "id"), true); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
