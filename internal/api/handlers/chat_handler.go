package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/docchat-ai/docchat/internal/api/middlewares"
	"github.com/docchat-ai/docchat/internal/models"
	"github.com/docchat-ai/docchat/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type sendMessageRequest struct {
	QueryText string                   `json:"query_text"`
	Query     string                   `json:"query"` // accepted for older clients
	Selection *models.SelectionContext `json:"selection,omitempty"`
}

func (r sendMessageRequest) queryText() string {
	if r.QueryText != "" {
		return r.QueryText
	}
	return r.Query
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conv, err := h.chat.CreateConversation(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// SendMessage runs one retrieval-augmented turn in the conversation.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	turn, err := h.chat.SendMessage(r.Context(), ownerID, chi.URLParam(r, "conversation_id"), req.queryText(), req.Selection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// GetMessages returns conversation history. An optional since query
// parameter returns only messages appended after that seq, which lets
// clients poll incrementally.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var sinceSeq int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid since cursor", http.StatusBadRequest)
			return
		}
		sinceSeq = n
	}

	msgs, err := h.chat.ListMessages(r.Context(), ownerID, chi.URLParam(r, "conversation_id"), sinceSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.chat.Archive(r.Context(), ownerID, chi.URLParam(r, "conversation_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
