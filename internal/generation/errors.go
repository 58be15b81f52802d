package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
)

// Failure codes carried by generation errors.
const (
	// CodeNetwork covers transport failures, timeouts, cancellation and
	// upstream 5xx responses. Safe to retry.
	CodeNetwork = "generation/network"
	// CodeQuotaOrAuth covers rejected credentials and exhausted quota.
	// Retrying without user action will not help.
	CodeQuotaOrAuth = "generation/quota-or-auth"
	// CodeSchema covers empty or malformed model output.
	CodeSchema = "generation/schema"
	// CodeRejected covers any other upstream 4xx.
	CodeRejected = "generation/rejected"
)

// FailureMessage is the user-facing text for every generation failure.
const FailureMessage = "Gagal membuat caption. Pastikan koneksi aman."

// Retryable reports whether err is a generation failure a caller may retry.
func Retryable(err error) bool {
	return apperr.CodeOf(err) == CodeNetwork
}

func schemaError(cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindGeneration, CodeSchema, FailureMessage, cause)
}

func classify(ctx context.Context, err error) *apperr.Error {
	wrap := func(code string) *apperr.Error {
		return apperr.Wrap(apperr.KindGeneration, code, FailureMessage, err)
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrap(CodeNetwork)
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return wrap(CodeNetwork)
	}

	switch apiErr.Status {
	case "RESOURCE_EXHAUSTED", "PERMISSION_DENIED", "UNAUTHENTICATED":
		return wrap(CodeQuotaOrAuth)
	}
	switch {
	case apiErr.Code == http.StatusUnauthorized,
		apiErr.Code == http.StatusForbidden,
		apiErr.Code == http.StatusTooManyRequests:
		return wrap(CodeQuotaOrAuth)
	case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
		return wrap(CodeQuotaOrAuth)
	case apiErr.Code >= 500:
		return wrap(CodeNetwork)
	default:
		return wrap(CodeRejected)
	}
}
