package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/ai"
	"github.com/lalithlochan/clipforge/internal/reveal"
)

const (
	chatSystemPrompt = `You are the ClipForge creative assistant. Help users plan AI videos, images and voice-overs.
Suggest concrete prompts, shot ideas and scripts. Keep answers short and practical.`

	maxChatMessages = 50
	maxChatChars    = 8000
)

// ChatRequest is the body of POST /v1/chat. Either Messages (full history)
// or Message (a single user turn) must be set.
type ChatRequest struct {
	Message  string           `json:"message,omitempty"`
	Messages []ai.ChatMessage `json:"messages,omitempty"`
}

func (req ChatRequest) conversation() ([]ai.ChatMessage, error) {
	msgs := req.Messages
	if len(msgs) == 0 && strings.TrimSpace(req.Message) != "" {
		msgs = []ai.ChatMessage{{Role: "user", Content: req.Message}}
	}
	if len(msgs) == 0 {
		return nil, errors.New("message or messages is required")
	}
	if len(msgs) > maxChatMessages {
		return nil, errors.New("too many messages")
	}

	total := 0
	out := make([]ai.ChatMessage, 0, len(msgs)+1)
	out = append(out, ai.ChatMessage{Role: "system", Content: chatSystemPrompt})
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			return nil, errors.New("role must be user or assistant")
		}
		total += utf8.RuneCountInString(m.Content)
		out = append(out, m)
	}
	if total > maxChatChars {
		return nil, errors.New("conversation is too long")
	}
	if out[len(out)-1].Role != "user" {
		return nil, errors.New("last message must come from the user")
	}
	return out, nil
}

// Chat handles POST /v1/chat. The completion is fetched in one call and
// then revealed to the client one character at a time.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if h.chat == nil {
		h.writeError(w, http.StatusServiceUnavailable, "chat_unavailable", "Chat is not configured", "")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	msgs, err := req.conversation()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid conversation", err.Error())
		return
	}

	reply, err := h.chat.Complete(r.Context(), msgs)
	if err != nil {
		h.logger.Error("chat completion failed",
			zap.Error(err),
			zap.String("user_id", p.UserID),
		)
		h.writeError(w, http.StatusBadGateway, "upstream_error", "Chat completion failed",
			"The assistant is unavailable right now. Please try again.")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if err := reveal.Write(r.Context(), w, reply, h.revealDelay); err != nil {
		h.logger.Debug("chat reveal stopped",
			zap.Error(err),
			zap.String("user_id", p.UserID),
		)
	}
}
