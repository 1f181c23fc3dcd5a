package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/deckofthoughts/apiserver/internal/services"
	"github.com/deckofthoughts/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const deletedMessage = "Deleted successfully"

// CardHandler serves the caller's deck.
type CardHandler struct {
	cards   *services.CardService
	exports *services.ExportService
	log     *logger.Logger
}

func NewCardHandler(cards *services.CardService, exports *services.ExportService, log *logger.Logger) *CardHandler {
	return &CardHandler{cards: cards, exports: exports, log: log}
}

// CardRouter registers card routes on the given router. Every route requires
// authentication; the export route only exists when exports is non-nil.
func CardRouter(
	r chi.Router,
	cards *services.CardService,
	exports *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
	log *logger.Logger,
) {
	handler := NewCardHandler(cards, exports, log)

	r.Use(authMiddleware)
	r.Get("/", handler.ListCards)
	r.Post("/", handler.CreateCard)
	r.Get("/stats", handler.Stats)
	if exports != nil {
		r.Post("/export", handler.Export)
		r.Get("/exports/{exportedAt}", handler.DownloadExport)
		r.Delete("/exports/{exportedAt}", handler.DeleteExport)
	}
	r.Route("/{cardID}", func(r chi.Router) {
		r.Get("/", handler.GetCard)
		r.Put("/", handler.UpdateCard)
		r.Delete("/", handler.DeleteCard)
	})
}

func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cards, err := h.cards.List(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, cards)
}

func (h *CardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.cards.Stats(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	card, err := h.cards.Get(r.Context(), caller, chi.URLParam(r, "cardID"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	card, err := h.cards.Create(r.Context(), caller, req.card())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

func (h *CardHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	card, err := h.cards.Update(r.Context(), caller, chi.URLParam(r, "cardID"), req.patch())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.cards.Delete(r.Context(), caller, chi.URLParam(r, "cardID")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: deletedMessage})
}

func (h *CardHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.exports.Export(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DownloadExport streams one of the caller's snapshots.
func (h *CardHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	exportedAt, err := exportedAtParam(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	rc, err := h.exports.Open(r.Context(), caller, exportedAt)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="deck-%d.json"`, exportedAt))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("export download interrupted", "exported_at", exportedAt, "error", err.Error())
	}
}

func (h *CardHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	exportedAt, err := exportedAtParam(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if err := h.exports.Delete(r.Context(), caller, exportedAt); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: deletedMessage})
}

func exportedAtParam(r *http.Request) (int64, error) {
	exportedAt, err := strconv.ParseInt(chi.URLParam(r, "exportedAt"), 10, 64)
	if err != nil || exportedAt < 0 {
		return 0, &services.ValidationError{Field: "exportedAt", Message: "exportedAt must be a non-negative integer"}
	}
	return exportedAt, nil
}

// CardRequest is the body of card create and update calls. Omitted or null
// fields are left unset; on create they default to empty values.
type CardRequest struct {
	Title    *string  `json:"title"`
	Category *string  `json:"category"`
	Content  *string  `json:"content"`
	Tags     []string `json:"tags"`
}

func (req CardRequest) card() types.Card {
	card := types.Card{Tags: req.Tags}
	if req.Title != nil {
		card.Title = *req.Title
	}
	if req.Category != nil {
		card.Category = normalizeCategory(*req.Category)
	}
	if req.Content != nil {
		card.Content = *req.Content
	}
	return card
}

func (req CardRequest) patch() types.CardPatch {
	patch := types.CardPatch{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	}
	if req.Category != nil {
		category := normalizeCategory(*req.Category)
		patch.Category = &category
	}
	return patch
}

func normalizeCategory(raw string) types.Category {
	return types.Category(strings.ToLower(strings.TrimSpace(raw)))
}
