package api

import (
	"context"
	"net/http"

	"github.com/infobmscommunity-ai/kohen-caption/internal/auth"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

type contextKey int

const userContextKey contextKey = iota

// SessionAuth rejects requests without a valid session token and stores
// the signed-in user in the request context.
func SessionAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := svc.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFromContext returns the user stored by SessionAuth.
func userFromContext(ctx context.Context) storage.User {
	u, _ := ctx.Value(userContextKey).(storage.User)
	return u
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type providerSignInRequest struct {
	IDToken string `json:"id_token"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type confirmResetRequest struct {
	Code        string `json:"oob_code"`
	NewPassword string `json:"new_password"`
}

func handleSignUp(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signUpRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sess, err := deps.Auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

func handleSignIn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sess, err := deps.Auth.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleProviderSignIn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providerSignInRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sess, err := deps.Auth.SignInWithProvider(r.Context(), req.IDToken)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleSignOut(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Auth.SignOut(r.Context(), r.Header.Get("Authorization")); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePasswordReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordResetRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := deps.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

func handleConfirmPasswordReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmResetRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := deps.Auth.ConfirmPasswordReset(r.Context(), req.Code, req.NewPassword); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}
