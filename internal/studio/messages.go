// Package studio holds the screen controllers of the caption studio. Each
// controller keeps an explicit view state that only changes through a pure
// reducer, and reaches storage and the generator through injected interfaces.
package studio

import (
	"errors"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// User-facing texts shared by the screens.
const (
	MsgLoading       = "Memuat data..."
	MsgLoadFailed    = "Gagal memuat data."
	MsgValidation    = "Mohon isi semua field."
	MsgEmptyCatalog  = "Katalog Produk Kosong"
	MsgSelectProduct = "Pilih produk terlebih dahulu."
	MsgBusy          = "Caption sedang dibuat. Mohon tunggu."
	MsgSaveFailed    = "Terjadi kesalahan saat menyimpan data."
)

// CodeBusy marks a generation request rejected because another one for the
// same user is still in flight.
const CodeBusy = "studio/busy"

// Messages are the per-screen notices of a list screen.
type Messages struct {
	Resource     string
	Created      string
	Updated      string
	SaveFailed   string
	DeleteFailed string
	DeletePrompt string
}

var (
	CatalogMessages = Messages{
		Resource:     "Produk",
		Created:      "Produk berhasil disimpan ke koleksi DATA PRODUK!",
		Updated:      "Data produk berhasil diperbarui!",
		SaveFailed:   "Terjadi kesalahan saat menyimpan data.",
		DeleteFailed: "Gagal menghapus data.",
		DeletePrompt: "Yakin ingin menghapus produk ini dari database?",
	}
	StrategyMessages = Messages{
		Resource:     "Strategi",
		Created:      "Strategi berhasil disimpan!",
		Updated:      "Strategi berhasil diperbarui!",
		SaveFailed:   "Gagal menyimpan strategi.",
		DeleteFailed: "Gagal menghapus data.",
		DeletePrompt: "Hapus strategi ini?",
	}
	BrainMessages = Messages{
		Resource:     "Otak",
		Created:      "Otak baru berhasil dibuat!",
		Updated:      "Otak berhasil diperbarui!",
		SaveFailed:   "Gagal menyimpan data.",
		DeleteFailed: "Gagal menghapus data.",
		DeletePrompt: "Yakin ingin menghapus karakter/otak ini?",
	}
	HistoryMessages = Messages{
		Resource:     "Riwayat",
		DeleteFailed: "Gagal menghapus data.",
		DeletePrompt: "Hapus hasil generate ini?",
	}
)

// persistenceErr converts a storage failure into the error shown to the user.
func persistenceErr(err error, resource, message string) *apperr.Error {
	if errors.Is(err, storage.ErrNotFound) {
		nf := apperr.NotFound(resource)
		nf.Cause = err
		return nf
	}
	if e, ok := apperr.As(err); ok {
		return e
	}
	return apperr.Persistence(message, err)
}

func validationErr(cause error) *apperr.Error {
	e := apperr.Validation(MsgValidation)
	e.Cause = cause
	return e
}
