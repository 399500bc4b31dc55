package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// DrawHandler serves archived draw results.
type DrawHandler struct {
	archive domain.DrawArchive
	logger  *slog.Logger
}

// NewDrawHandler creates a DrawHandler.
func NewDrawHandler(archive domain.DrawArchive, logger *slog.Logger) *DrawHandler {
	return &DrawHandler{archive: archive, logger: logger.With(slog.String("handler", "draws"))}
}

// ListDraws lists archived draw objects.
// GET /api/draws
func (h *DrawHandler) ListDraws(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archive.ListDraws(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list draws", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"draws": infos})
}

// GetDraw returns one archived draw by lottery id.
// GET /api/draws/{id}
func (h *DrawHandler) GetDraw(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if n, ok := new(big.Int).SetString(id, 10); !ok || n.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "id must be a lottery number")
		return
	}
	d, err := h.archive.GetDraw(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get draw", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
