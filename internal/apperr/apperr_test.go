package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindAndCodeThroughWrapping(t *testing.T) {
	root := errors.New("disk full")
	err := fmt.Errorf("saving: %w", Persistence("Gagal menyimpan.", root))

	if KindOf(err) != KindPersistence {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindPersistence)
	}
	if CodeOf(err) != "persistence/failed" {
		t.Errorf("CodeOf = %q", CodeOf(err))
	}
	if MessageOf(err) != "Gagal menyimpan." {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if !errors.Is(err, root) {
		t.Error("expected cause to be reachable through errors.Is")
	}
}

func TestUnclassifiedError(t *testing.T) {
	err := errors.New("boom")
	if KindOf(err) != KindInternal {
		t.Errorf("KindOf = %q, want internal", KindOf(err))
	}
	if MessageOf(err) != GenericMessage {
		t.Errorf("MessageOf = %q, want generic", MessageOf(err))
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d", HTTPStatus(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("x"), http.StatusBadRequest},
		{New(KindAuth, "auth/wrong-password", "x"), http.StatusUnauthorized},
		{New(KindAuth, "auth/too-many-requests", "x"), http.StatusTooManyRequests},
		{New(KindAuth, "auth/email-already-in-use", "x"), http.StatusConflict},
		{New(KindAuth, "auth/weak-password", "x"), http.StatusBadRequest},
		{New(KindAuth, "auth/operation-not-allowed", "x"), http.StatusForbidden},
		{NotFound("Produk"), http.StatusNotFound},
		{New(KindConflict, "studio/busy", "x"), http.StatusConflict},
		{New(KindGeneration, "generation/network", "x"), http.StatusGatewayTimeout},
		{New(KindGeneration, "generation/schema", "x"), http.StatusBadGateway},
		{New(KindGeneration, "generation/rejected", "x"), http.StatusBadGateway},
		{Persistence("x", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := Wrap(KindGeneration, "generation/schema", "Gagal.", errors.New("bad json"))
	want := "generation [generation/schema]: Gagal. (caused by: bad json)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
