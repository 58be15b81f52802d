package auth

import (
	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
)

// Error codes reported by the auth provider.
const (
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeUserNotFound      = "auth/user-not-found"
	CodeWrongPassword     = "auth/wrong-password"
	CodeWeakPassword      = "auth/weak-password"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeExpiredActionCode = "auth/expired-action-code"
	CodeInvalidActionCode = "auth/invalid-action-code"
	CodeInvalidSession    = "auth/invalid-session"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeProviderDisabled  = "auth/operation-not-allowed"
)

var messages = map[string]string{
	CodeEmailInUse:        "Email sudah terdaftar.",
	CodeInvalidEmail:      "Format email tidak valid.",
	CodeUserNotFound:      "Pengguna tidak ditemukan.",
	CodeWrongPassword:     "Password salah.",
	CodeWeakPassword:      "Password terlalu lemah (min. 6 karakter).",
	CodeTooManyRequests:   "Terlalu banyak percobaan. Coba lagi nanti.",
	CodeExpiredActionCode: "Link reset password sudah kadaluarsa.",
	CodeInvalidActionCode: "Link reset password tidak valid.",
	CodeInvalidSession:    "Sesi tidak valid. Silakan masuk kembali.",
}

// Message returns the localized text for an auth error code. Unknown codes
// get the generic message.
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return apperr.GenericMessage
}

func authError(code string) *apperr.Error {
	return apperr.New(apperr.KindAuth, code, Message(code))
}

func authErrorWrap(code string, cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindAuth, code, Message(code), cause)
}

func persistenceError(cause error) *apperr.Error {
	return apperr.Persistence(apperr.GenericMessage, cause)
}
