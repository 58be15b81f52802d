package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

const maxPDFSize = 10 << 20 // 10MB

// MsgPDFUnreadable is shown when an uploaded file yields no text.
const MsgPDFUnreadable = "PDF tidak dapat dibaca."

type importPDFResponse struct {
	Draft storage.CatalogItemFields `json:"draft"`
	Pages int                       `json:"pages"`
}

// handleImportPDF extracts the text of an uploaded PDF into a catalog draft.
// Nothing is saved; the client reviews the draft and submits it.
func handleImportPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPDFSize+maxRequestBodySize)
	if err := r.ParseMultipartForm(maxPDFSize); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid upload: %v", err)
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
		return
	}

	text, pages, err := extractPDFText(data)
	if err != nil {
		slog.Warn("pdf import failed", "user_id", userFromContext(r.Context()).ID, "file", header.Filename, "error", err)
		writeAppError(w, r, apperr.Wrap(apperr.KindValidation, "validation/pdf", MsgPDFUnreadable, err))
		return
	}

	name := strings.TrimSpace(r.FormValue("product_name"))
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	writeJSON(w, http.StatusOK, importPDFResponse{
		Draft: storage.CatalogItemFields{
			StoreName:   strings.TrimSpace(r.FormValue("store_name")),
			ProductName: name,
			ProductLink: strings.TrimSpace(r.FormValue("product_link")),
			Description: text,
		},
		Pages: pages,
	})
}

// extractPDFText returns the plain text of a PDF with runs of whitespace
// collapsed. The parser panics on some malformed files.
func extractPDFText(data []byte) (text string, pages int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parsing pdf: %v", p)
		}
	}()

	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := rd.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extracting text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", 0, fmt.Errorf("reading text: %w", err)
	}

	text = strings.Join(strings.Fields(string(raw)), " ")
	if text == "" {
		return "", 0, fmt.Errorf("pdf has no text layer")
	}
	return text, rd.NumPage(), nil
}
