package api

import (
	"context"
	"net/http"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/composer"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

// selectionRequest is the wire form of studio.Selection; Tone accepts either
// the key ("fun") or the label ("Lucu & Santai"). An empty BrainID means the
// default persona and studio.NoBrain means none.
type selectionRequest struct {
	ProductID         string `json:"product_id"`
	StrategyID        string `json:"strategy_id"`
	BrainID           string `json:"brain_id"`
	Tone              string `json:"tone"`
	CustomInstruction string `json:"custom_instruction"`
}

func (s selectionRequest) selection(state studio.GenerationState) (studio.Selection, error) {
	tone, err := composer.ParseTone(s.Tone)
	if err != nil {
		return studio.Selection{}, apperr.Validation("Gaya bahasa tidak dikenal.")
	}
	return studio.Selection{
		ProductID:         s.ProductID,
		StrategyID:        s.StrategyID,
		BrainID:           state.ResolveBrain(s.BrainID),
		Tone:              tone,
		CustomInstruction: s.CustomInstruction,
	}, nil
}

type composeResponse struct {
	Prompt          string `json:"prompt"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// mountedGeneration returns the user's generation screen, loading it first
// if it never finished loading or refresh is set.
func mountedGeneration(ctx context.Context, deps AppDeps, userID string, refresh bool) (*studio.GenerationScreen, error) {
	screen := deps.Workspace.Generation(userID)
	if refresh || !screen.State().Ready {
		if err := screen.Mount(ctx); err != nil {
			return nil, err
		}
	}
	return screen, nil
}

func handleGenerationState(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		screen, err := mountedGeneration(r.Context(), deps, userFromContext(r.Context()).ID, r.URL.Query().Get("refresh") == "true")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, screen.State())
	}
}

func handleSelect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		screen, err := mountedGeneration(r.Context(), deps, userFromContext(r.Context()).ID, false)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		sel, err := req.selection(screen.State())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		screen.Select(sel)
		writeJSON(w, http.StatusOK, screen.State())
	}
}

// handleGenerate runs one generation. A body, when sent, replaces the
// selection first; an empty body generates for the current selection.
func handleGenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req *selectionRequest
		if r.ContentLength != 0 {
			req = &selectionRequest{}
			if !decodeJSON(w, r, req) {
				return
			}
		}

		userID := userFromContext(r.Context()).ID
		// Reloading or reselecting would disturb the generation in flight.
		if deps.Workspace.Generation(userID).State().Phase == studio.PhaseGenerating {
			writeAppError(w, r, apperr.New(apperr.KindConflict, studio.CodeBusy, studio.MsgBusy))
			return
		}
		screen, err := mountedGeneration(r.Context(), deps, userID, req != nil)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if req != nil {
			sel, err := req.selection(screen.State())
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			screen.Select(sel)
		}

		caption, err := screen.Generate(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, caption)
	}
}

func handleCancelGeneration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Workspace.Generation(userFromContext(r.Context()).ID).Cancel()
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCompose returns the prompt a generation would send, without calling
// the model.
func handleCompose(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		screen, err := mountedGeneration(r.Context(), deps, userFromContext(r.Context()).ID, true)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		sel, err := req.selection(screen.State())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		prompt, err := screen.Preview(sel)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, composeResponse{Prompt: prompt, EstimatedTokens: composer.EstimateTokens(prompt)})
	}
}
