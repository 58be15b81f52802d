package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/auth"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps is everything the HTTP API needs.
type AppDeps struct {
	Store          *storage.Store
	Auth           *auth.Service
	Workspace      *studio.Workspace
	AllowedOrigins []string
}

// NewRouter builds the full API: public health and auth routes plus the
// session-protected studio routes.
func NewRouter(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth(deps))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", handleSignUp(deps))
		r.Post("/signin", handleSignIn(deps))
		r.Post("/signin/provider", handleProviderSignIn(deps))
		r.Post("/signout", handleSignOut(deps))
		r.Post("/password-reset", handlePasswordReset(deps))
		r.Post("/password-reset/confirm", handleConfirmPasswordReset(deps))
		r.With(SessionAuth(deps.Auth)).Get("/me", handleMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Auth))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", handleList(deps.Workspace.Catalog))
			r.Post("/", handleCreate(deps.Workspace.Catalog))
			r.Post("/import-pdf", handleImportPDF)
			r.Get("/{id}", handleGet(deps.Store.GetCatalogItem))
			r.Patch("/{id}", handlePatch(deps.Workspace.Catalog, deps.Store.GetCatalogItem, mergeCatalogItem))
			r.Delete("/{id}", handleDelete(deps.Workspace.Catalog))
		})
		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", handleList(deps.Workspace.Strategies))
			r.Post("/", handleCreate(deps.Workspace.Strategies))
			r.Get("/{id}", handleGet(deps.Store.GetStrategy))
			r.Patch("/{id}", handlePatch(deps.Workspace.Strategies, deps.Store.GetStrategy, mergeStrategy))
			r.Delete("/{id}", handleDelete(deps.Workspace.Strategies))
		})
		r.Route("/brains", func(r chi.Router) {
			r.Get("/", handleList(deps.Workspace.Brains))
			r.Post("/", handleCreate(deps.Workspace.Brains))
			r.Get("/{id}", handleGet(deps.Store.GetBrain))
			r.Patch("/{id}", handlePatch(deps.Workspace.Brains, deps.Store.GetBrain, mergeBrain))
			r.Delete("/{id}", handleDelete(deps.Workspace.Brains))
		})
		r.Route("/captions", func(r chi.Router) {
			r.Get("/", handleListCaptions(deps))
			r.Get("/{id}", handleGet(deps.Store.GetGeneratedCaption))
			r.Delete("/{id}", handleDeleteCaption(deps))
		})
		r.Route("/studio", func(r chi.Router) {
			r.Get("/generate", handleGenerationState(deps))
			r.Put("/generate/selection", handleSelect(deps))
			r.Post("/generate", handleGenerate(deps))
			r.Delete("/generate", handleCancelGeneration(deps))
		})
		r.Post("/compose", handleCompose(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// requestLogger logs one line per request, tagged with the chi request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"request_id", chimiddleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeError(w, code, errType, "", fmt.Sprintf(format, args...))
}

func writeError(w http.ResponseWriter, code int, errType, errCode, msg string) {
	body := map[string]any{
		"message": msg,
		"type":    errType,
	}
	if errCode != "" {
		body["code"] = errCode
	}
	writeJSON(w, code, map[string]any{"error": body})
}

// writeAppError renders err with its user-facing message. Unclassified
// errors are logged and reported with the generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"request_id", chimiddleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, errorType(err), apperr.CodeOf(err), apperr.MessageOf(err))
}

func errorType(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return "invalid_request_error"
	case apperr.KindAuth:
		return "authentication_error"
	case apperr.KindNotFound:
		return "not_found_error"
	case apperr.KindConflict:
		return "conflict_error"
	case apperr.KindGeneration:
		return "upstream_error"
	default:
		return "api_error"
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
