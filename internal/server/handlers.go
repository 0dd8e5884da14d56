// ABOUTME: HTTP handlers for the reference backend's JSON API
// ABOUTME: Chat creates conversations on first use and rejects replayed Idempotency-Key requests

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/view"
)

const documentTitle = "Document"

// errForeignConversation is returned when an authenticated user targets a
// conversation owned by someone else.
var errForeignConversation = errors.New("conversation belongs to another user")

// duplicateResponse is the 409 body for a replayed send.
type duplicateResponse struct {
	Error          string `json:"error"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("listing conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	user := auth.UserFromContext(r.Context())
	resp := backend.ConversationsResponse{Conversations: make([]backend.ConversationJSON, 0, len(convs))}
	for _, c := range convs {
		if !visible(c, user) {
			continue
		}
		resp.Conversations = append(resp.Conversations, backend.ConversationJSON{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: backend.FormatTime(c.CreatedAt),
			UpdatedAt: backend.FormatTime(c.UpdatedAt),
		})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversationId")
	if convID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), convID)
	if err == nil && !visible(conv, auth.UserFromContext(r.Context())) {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("loading conversation", "conversation_id", convID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	msgs, err := s.store.GetMessages(r.Context(), convID, 0)
	if err != nil {
		s.logger.Error("loading history", "conversation_id", convID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	resp := backend.HistoryResponse{Messages: make([]backend.MessageJSON, len(msgs))}
	for i, m := range msgs {
		resp.Messages[i] = backend.MessageJSON{
			ID:        m.ID,
			Role:      m.Role,
			Content:   backend.StringContent(m.Content),
			CreatedAt: backend.FormatTime(m.CreatedAt),
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		s.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	if user := auth.UserFromContext(r.Context()); user != "" {
		req.UserID = user
	}

	key := r.Header.Get(backend.HeaderIdempotencyKey)
	if key != "" && !s.replays.Claim(key) {
		convID, _ := s.replays.Lookup(key)
		s.logger.Warn("rejected replayed chat request", "idempotency_key", key)
		s.sendJSON(w, http.StatusConflict, duplicateResponse{Error: "duplicate request", ConversationID: convID})
		return
	}

	resp, err := s.chat(r.Context(), req)
	if err != nil {
		if key != "" {
			s.replays.Release(key)
		}
		if errors.Is(err, errForeignConversation) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("chat failed", "conversation_id", req.ConversationID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	if key != "" {
		s.replays.Complete(key, resp.ConversationID)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// chat stores the prompt, asks the responder and stores its answer.
func (s *Server) chat(ctx context.Context, req backend.ChatRequest) (backend.ChatResponse, error) {
	conv, err := s.ensureConversation(ctx, req.ConversationID, view.Topic(req.Text), req.UserID)
	if err != nil {
		return backend.ChatResponse{}, err
	}

	prior, err := s.store.GetMessages(ctx, conv.ID, 0)
	if err != nil {
		return backend.ChatResponse{}, fmt.Errorf("loading history: %w", err)
	}

	if err := s.saveMessage(ctx, conv.ID, store.RoleUser, req.Text); err != nil {
		return backend.ChatResponse{}, err
	}

	answer, err := s.responder.Respond(ctx, conv, prior, req.Text)
	if err != nil {
		return backend.ChatResponse{}, fmt.Errorf("responding: %w", err)
	}

	if err := s.saveMessage(ctx, conv.ID, store.RoleAssistant, answer); err != nil {
		return backend.ChatResponse{}, err
	}

	return backend.ChatResponse{Text: answer, ConversationID: conv.ID}, nil
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req backend.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		s.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	// Without a conversation there is nowhere to attach the document.
	if req.ConversationID == "" {
		s.logger.Debug("ingest without conversation ignored", "chars", len(req.Text))
		s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx := r.Context()
	conv, err := s.ensureConversation(ctx, req.ConversationID, documentTitle, auth.UserFromContext(ctx))
	if err == nil {
		err = s.saveMessage(ctx, conv.ID, store.RoleSystem, s.marker+"\n"+req.Text)
	}
	if errors.Is(err, errForeignConversation) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("ingest failed", "conversation_id", req.ConversationID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	s.logger.Info("document ingested", "conversation_id", conv.ID, "chars", len(req.Text))
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok", "conversationId": conv.ID})
}

// ensureConversation returns the conversation with id, creating it when it
// does not exist. An empty id creates a new conversation.
func (s *Server) ensureConversation(ctx context.Context, id, title, userID string) (*store.Conversation, error) {
	if id != "" {
		conv, err := s.store.GetConversation(ctx, id)
		if err == nil {
			if !visible(conv, auth.UserFromContext(ctx)) {
				return nil, errForeignConversation
			}
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading conversation: %w", err)
		}
	} else {
		id = "conv_" + uuid.New().String()
	}

	now := s.now()
	conv := &store.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.CreateConversation(ctx, conv)
	if errors.Is(err, store.ErrDuplicateConversation) {
		// Created concurrently by another request.
		return s.store.GetConversation(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", id, "title", title)
	return conv, nil
}

// visible reports whether user may see conv. Unauthenticated requests see
// every conversation.
func visible(conv *store.Conversation, user string) bool {
	return user == "" || conv.UserID == user
}

func (s *Server) saveMessage(ctx context.Context, convID, role, content string) error {
	now := s.now()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("saving %s message: %w", role, err)
	}
	if err := s.store.TouchConversation(ctx, convID, now); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, backend.ErrorResponse{Error: message})
}
