package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gwi.com/chat-dataset/internal/core"
	"gwi.com/chat-dataset/internal/dataset"
	"gwi.com/chat-dataset/internal/metrics"
	"gwi.com/chat-dataset/internal/store"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	chatService     *core.ChatService
	exporter        *dataset.Exporter
	health          Pinger
	defaultPageSize int
	logger          zerolog.Logger
}

func NewAPIHandler(cs *core.ChatService, exp *dataset.Exporter, health Pinger, defaultPageSize int, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		chatService:     cs,
		exporter:        exp,
		health:          health,
		defaultPageSize: defaultPageSize,
		logger:          logger.With().Str("component", "api").Logger(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// logged and hidden from the caller.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, dataset.ErrMalformedContent):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrapf(core.ErrInvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

// messageView returns parts as embedded JSON rather than a quoted string.
type messageView struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	Role      string          `json:"role"`
	Parts     json.RawMessage `json:"parts"`
	CreatedAt time.Time       `json:"createdAt"`
}

func viewMessages(messages []store.Message) []messageView {
	out := make([]messageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageView{
			ID:        m.ID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Parts:     json.RawMessage(m.Parts),
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := core.ListChatsRequest{
		OwnerID:       userIDFrom(r.Context()),
		ProjectID:     chi.URLParam(r, "projectID"),
		Limit:         h.defaultPageSize,
		StartingAfter: q.Get("starting_after"),
		EndingBefore:  q.Get("ending_before"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, errors.Wrapf(core.ErrInvalidArgument, "limit %q is not a number", v))
			return
		}
		req.Limit = limit
	}

	page, err := h.chatService.ListChats(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	direction := "first"
	switch {
	case req.StartingAfter != "":
		direction = "after"
	case req.EndingBefore != "":
		direction = "before"
	}
	metrics.ChatPagesServed.WithLabelValues(direction).Inc()

	writeJSON(w, http.StatusOK, page)
}

type CreateChatRequest struct {
	Visibility store.Visibility `json:"visibility,omitempty"`
	// FirstMessage is the parts array of the opening user message.
	FirstMessage json.RawMessage `json:"firstMessage,omitempty"`
}

type ChatDetailsResponse struct {
	*store.Chat
	Messages []messageView `json:"messages"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if r.Body != http.NoBody {
		if err := decodeBody(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	var firstMessage *string
	if len(req.FirstMessage) > 0 && string(req.FirstMessage) != "null" {
		parts := string(req.FirstMessage)
		firstMessage = &parts
	}

	chat, messages, err := h.chatService.CreateChat(r.Context(), core.CreateChatRequest{
		UserID:       userIDFrom(r.Context()),
		ProjectID:    chi.URLParam(r, "projectID"),
		Visibility:   req.Visibility,
		FirstMessage: firstMessage,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ChatDetailsResponse{Chat: chat, Messages: viewMessages(messages)})
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	chat, messages, err := h.chatService.GetChatDetails(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatDetailsResponse{Chat: chat, Messages: viewMessages(messages)})
}

// DeleteChatHandler deletes the chat and then its published export. A failed
// object delete is logged but does not fail the request.
func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	projectID, chatID := chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID")
	if err := h.chatService.DeleteChat(r.Context(), projectID, chatID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.exporter.Unpublish(r.Context(), projectID, chatID); err != nil {
		h.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to remove published export")
	}
	w.WriteHeader(http.StatusNoContent)
}

type UpdateVisibilityRequest struct {
	Visibility store.Visibility `json:"visibility"`
}

func (h *APIHandler) UpdateVisibilityHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateVisibilityRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	err := h.chatService.UpdateChatVisibility(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID"), req.Visibility)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SaveMessagesRequest struct {
	Messages []struct {
		Role  string          `json:"role"`
		Parts json.RawMessage `json:"parts"`
	} `json:"messages"`
}

func (h *APIHandler) SaveMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var req SaveMessagesRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := make([]core.NewMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		in = append(in, core.NewMessage{Role: m.Role, Parts: string(m.Parts)})
	}

	saved, err := h.chatService.SaveMessages(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"messages": viewMessages(saved)})
}

func (h *APIHandler) GetVotesHandler(w http.ResponseWriter, r *http.Request) {
	votes, err := h.chatService.GetVotes(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if votes == nil {
		votes = []store.Vote{}
	}
	writeJSON(w, http.StatusOK, votes)
}

type VoteRequest struct {
	MessageID string `json:"messageId"`
	Type      string `json:"type"` // "up" or "down"
}

func (h *APIHandler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	err := h.chatService.VoteMessage(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID"), req.MessageID, req.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportHandler builds the dataset archive, streams it back and deletes the
// local file once the response is written.
func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.exporter.ExportChatDataset(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer func() {
		if err := dataset.Remove(res.FilePath); err != nil {
			h.logger.Warn().Err(err).Str("path", res.FilePath).Msg("failed to remove served export")
		}
	}()

	f, err := os.Open(res.FilePath)
	if err != nil {
		h.writeError(w, r, errors.Wrap(err, "opening export"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	if res.ObjectKey != "" {
		w.Header().Set("X-Export-Object-Key", res.ObjectKey)
	}
	http.ServeContent(w, r, res.Filename, time.Time{}, f)
}
