package composer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clinical-intake-agent/internal/storage"
)

type Handler struct {
	composer     *Composer
	interactions storage.InteractionRepository
}

func NewHandler(composer *Composer, interactions storage.InteractionRepository) *Handler {
	return &Handler{composer: composer, interactions: interactions}
}

type messageRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
}

func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Missing message", http.StatusBadRequest)
		return
	}

	resp := h.composer.ProcessMessage(r.Context(), req.Message, req.UserID, req.UserEmail)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "Missing user id", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.interactions.ListInteractionsByUser(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "Failed to load interactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"interactions": list})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/message", h.HandleMessage)
	r.Get("/interactions/{userID}", h.HandleInteractions)
}
