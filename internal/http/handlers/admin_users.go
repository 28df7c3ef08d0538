package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type userStore interface {
	FindBySender(ctx context.Context, address string) (*conversation.UserConversation, error)
	Save(ctx context.Context, user *conversation.UserConversation) (*conversation.UserConversation, error)
	AppendLog(ctx context.Context, conversationID string, direction conversation.Direction, text string) error
	History(ctx context.Context, conversationID string) ([]conversation.MessageLogEntry, error)
}

type operatorSender interface {
	Send(ctx context.Context, address, text, inReplyTo string) error
	SendImage(ctx context.Context, address, link, inReplyTo string) error
}

// AdminUsersHandler lets operators inspect and manage WhatsApp users.
type AdminUsersHandler struct {
	store  userStore
	sender operatorSender
	logger *logging.Logger
}

// NewAdminUsersHandler builds the handler. sender may be nil, which disables
// operator sends.
func NewAdminUsersHandler(store userStore, sender operatorSender, logger *logging.Logger) *AdminUsersHandler {
	if store == nil {
		panic("handlers: user store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminUsersHandler{store: store, sender: sender, logger: logger}
}

// GetUser handles GET /admin/users/{phone}
func (h *AdminUsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetHistory handles GET /admin/users/{phone}/history
func (h *AdminUsersHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	entries, err := h.store.History(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "conversation_id", user.ID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []conversation.MessageLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": user.ID,
		"messages":        entries,
	})
}

type disabledRequest struct {
	Disabled *bool `json:"disabled"`
}

// SetDisabled handles PUT /admin/users/{phone}/disabled
func (h *AdminUsersHandler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	var req disabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Disabled == nil {
		http.Error(w, `body must be {"disabled": true|false}`, http.StatusBadRequest)
		return
	}
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	if user.Disabled == *req.Disabled {
		writeJSON(w, http.StatusOK, user)
		return
	}

	next := user.Clone()
	next.Disabled = *req.Disabled
	saved, err := h.store.Save(r.Context(), next)
	if errors.Is(err, conversation.ErrConflict) {
		http.Error(w, "user changed concurrently, retry", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("failed to update user", "error", err, "conversation_id", user.ID)
		http.Error(w, "failed to update user", http.StatusInternalServerError)
		return
	}
	h.logger.Info("user availability changed", "conversation_id", saved.ID, "disabled", saved.Disabled)
	writeJSON(w, http.StatusOK, saved)
}

type operatorMessage struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url"`
}

// SendMessage handles POST /admin/users/{phone}/messages. The body carries
// either text or an image link.
func (h *AdminUsersHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		http.Error(w, "delivery not configured", http.StatusServiceUnavailable)
		return
	}
	var msg operatorMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	msg.Text = strings.TrimSpace(msg.Text)
	msg.ImageURL = strings.TrimSpace(msg.ImageURL)
	if (msg.Text == "") == (msg.ImageURL == "") {
		http.Error(w, "exactly one of text or image_url is required", http.StatusBadRequest)
		return
	}
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}

	var err error
	logText := msg.Text
	if msg.ImageURL != "" {
		err = h.sender.SendImage(r.Context(), user.SenderAddress, msg.ImageURL, "")
		logText = "[image] " + msg.ImageURL
	} else {
		err = h.sender.Send(r.Context(), user.SenderAddress, msg.Text, "")
	}
	if err != nil {
		h.logger.Error("operator send failed", "error", err, "conversation_id", user.ID)
		http.Error(w, "failed to deliver message", http.StatusBadGateway)
		return
	}
	if err := h.store.AppendLog(r.Context(), user.ID, conversation.DirectionOutbound, logText); err != nil {
		h.logger.Warn("failed to log operator message", "error", err, "conversation_id", user.ID)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *AdminUsersHandler) loadUser(w http.ResponseWriter, r *http.Request) (*conversation.UserConversation, bool) {
	phone := strings.TrimSpace(chi.URLParam(r, "phone"))
	if phone == "" {
		http.Error(w, "missing phone", http.StatusBadRequest)
		return nil, false
	}
	user, err := h.store.FindBySender(r.Context(), phone)
	if errors.Is(err, conversation.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load user", "error", err)
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
