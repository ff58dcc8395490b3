// Package authoring exposes the course authoring agent over HTTP and
// WebSocket.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/chat"
	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
	"github.com/agusgarcia3007/learnbase/backend/internal/service/agent"
	chatservice "github.com/agusgarcia3007/learnbase/backend/internal/service/chat"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
	"github.com/agusgarcia3007/learnbase/backend/pkg/utils"
)

// Runner executes one agent turn.
type Runner interface {
	Run(ctx context.Context, turn agent.Turn, emitter agent.Emitter) error
}

// Handler serves the authoring endpoints.
type Handler struct {
	conversations *chatservice.Service
	runner        Runner
	upgrader      websocket.Upgrader
}

// New creates the handler. A nil runner makes the turn endpoints answer 503.
func New(conversations *chatservice.Service, runner Runner) *Handler {
	return &Handler{
		conversations: conversations,
		runner:        runner,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the authoring routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/ws", h.handleWebSocket)
	r.Get("/conversations/{conversationID}", h.handleGetConversation)
	r.Post("/conversations/{conversationID}/confirm", h.handleConfirm)
}

// ConversationView is the gate state returned to clients.
type ConversationView struct {
	chat.Conversation
	RequireConfirmation bool `json:"requireConfirmation"`
}

// requestError carries the HTTP status of a rejected turn.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func reject(status int, format string, args ...any) error {
	return &requestError{status: status, msg: fmt.Sprintf(format, args...)}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "authoring agent unavailable")
		return
	}

	var req protocol.TurnRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.prepareTurn(r.Context(), req)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	defer h.endTurn(r.Context(), turn.Scope.ConversationID)

	utils.SetupSSEHeaders(w)
	w.Header().Set(protocol.HeaderConversationID, turn.Scope.ConversationID)
	w.WriteHeader(http.StatusOK)

	enc := protocol.NewEncoder(w)
	if err := h.runner.Run(r.Context(), turn, enc); err != nil {
		log.Printf("[authoring] turn conversation=%s tenant=%s failed: %v", turn.Scope.ConversationID, turn.Scope.TenantID, err)
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "authoring agent unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[authoring] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(utils.MaxBodyBytes)

	ctx := r.Context()
	emitter := &socketEmitter{conn: conn}

	var req protocol.TurnRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = emitter.Emit(protocol.StreamError{ErrorText: "invalid turn request"})
		emitter.close(websocket.CloseUnsupportedData, "invalid turn request")
		return
	}

	turn, err := h.prepareTurn(ctx, req)
	if err != nil {
		_ = emitter.Emit(protocol.StreamError{ErrorText: err.Error()})
		emitter.close(websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer h.endTurn(ctx, turn.Scope.ConversationID)

	if err := h.runner.Run(ctx, turn, emitter); err != nil {
		log.Printf("[authoring] ws turn conversation=%s tenant=%s failed: %v", turn.Scope.ConversationID, turn.Scope.TenantID, err)
		emitter.close(websocket.CloseInternalServerErr, "turn failed")
		return
	}
	emitter.close(websocket.CloseNormalClosure, protocol.DoneSentinel)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conv, err := h.conversations.Get(r.Context(), principal.TenantID, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondTurnError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view(conv))
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	id := chi.URLParam(r, "conversationID")
	conv, err := h.conversations.Confirm(r.Context(), principal.TenantID, id)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	log.Printf("[authoring] preview confirmed conversation=%s tenant=%s previews=%d", id, principal.TenantID, conv.PreviewCount)
	utils.RespondJSON(w, http.StatusOK, h.view(conv))
}

// prepareTurn authorizes the request, opens the conversation, applies a
// structured confirmation and acquires the turn guard.
func (h *Handler) prepareTurn(ctx context.Context, req protocol.TurnRequest) (agent.Turn, error) {
	principal, ok := user.FromContext(ctx)
	if !ok {
		return agent.Turn{}, reject(http.StatusUnauthorized, "unauthenticated")
	}
	if !principal.Role.Elevated() {
		return agent.Turn{}, reject(http.StatusForbidden, "%s", agent.ErrForbidden.Error())
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID != "" && tenantID != principal.TenantID {
		return agent.Turn{}, reject(http.StatusForbidden, "tenant is not accessible with this token")
	}
	if len(req.Messages) == 0 {
		return agent.Turn{}, reject(http.StatusBadRequest, "messages are required")
	}

	conv, err := h.conversations.Open(ctx, principal.TenantID, principal.UserID, strings.TrimSpace(req.ConversationID))
	if err != nil {
		return agent.Turn{}, err
	}

	// guard first: a turn rejected as busy must not confirm the preview
	if err := h.conversations.BeginTurn(ctx, conv.ID); err != nil {
		return agent.Turn{}, err
	}

	if req.ConfirmPreview {
		confirmed, err := h.conversations.Confirm(ctx, principal.TenantID, conv.ID)
		switch {
		case errors.Is(err, chatservice.ErrPreviewRequired):
			log.Printf("[authoring] confirmation ignored, no preview yet conversation=%s", conv.ID)
		case err != nil:
			h.endTurn(ctx, conv.ID)
			return agent.Turn{}, err
		default:
			conv = confirmed
		}
	}

	gate := agent.GateStatus{
		PreviewCount:        conv.PreviewCount,
		Confirmed:           conv.Confirmed,
		RequireConfirmation: h.conversations.RequiresConfirmation(),
	}
	if conv.LastPreview != nil {
		gate.PreviewTitle = conv.LastPreview.Title
	}

	return agent.Turn{
		Scope: agent.Scope{
			TenantID:       principal.TenantID,
			TenantSlug:     strings.TrimSpace(req.TenantSlug),
			UserID:         principal.UserID,
			ConversationID: conv.ID,
		},
		Role:        principal.Role,
		History:     req.Messages,
		Attachments: req.Attachments,
		Gate:        gate,
	}, nil
}

func (h *Handler) endTurn(ctx context.Context, conversationID string) {
	if err := h.conversations.EndTurn(context.WithoutCancel(ctx), conversationID); err != nil {
		log.Printf("[authoring] release turn conversation=%s: %v", conversationID, err)
	}
}

func (h *Handler) view(conv chat.Conversation) ConversationView {
	return ConversationView{Conversation: conv, RequireConfirmation: h.conversations.RequiresConfirmation()}
}

func respondTurnError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		utils.RespondError(w, reqErr.status, reqErr.msg)
	case errors.Is(err, chatservice.ErrNotFound), errors.Is(err, chatservice.ErrConversationScope):
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, chatservice.ErrTurnInProgress):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatservice.ErrPreviewRequired):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatservice.ErrTenantRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[authoring] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
