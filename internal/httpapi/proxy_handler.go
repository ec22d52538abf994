package httpapi

import (
	"net/http"

	"llm_router/internal/apierr"
	"llm_router/internal/gateway"
	"llm_router/internal/middleware"
	"llm_router/internal/utils"
)

type completionMessage struct {
	Content string `json:"content"`
}

type completionChoice struct {
	Message completionMessage `json:"message"`
}

// ChatResponse is the body of a successful completion
type ChatResponse struct {
	Completions         completionChoice `json:"completions"`
	InputTokenConsumed  int64            `json:"inputTokenConsumed"`
	OutputTokenConsumed int64            `json:"outputTokenConsumed"`
}

// handleChat serves POST /api/v1/chat/completions. The API key middleware
// has already run the credit guard.
//
// Flow:
//  1. Decode and validate the body
//  2. Rate limit, route, call the provider
//  3. Cost the usage and commit the debit
//  4. Return the completion only after the commit
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeAPIError(w, apierr.ErrUnauthorized)
		return
	}

	var req gateway.ChatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		writeAPIError(w, apierr.Wrap(apierr.KindBadRequest, err.Error(), err))
		return
	}

	completion, err := d.Gateway.Complete(r.Context(), principal, req)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("X-Request-Id", completion.RequestID.String())
	utils.RespondWithJSON(w, http.StatusOK, ChatResponse{
		Completions:         completionChoice{Message: completionMessage{Content: completion.Content}},
		InputTokenConsumed:  completion.InputTokens,
		OutputTokenConsumed: completion.OutputTokens,
	})
}
