package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
)

const messageFolder = "messages"

// MessageHandler serves conversations and their messages. Responses are bare records.
type MessageHandler struct {
	Conversations ConversationStore
	Media         MediaUploader
	Hub           Broadcaster
	NowFunc       func() time.Time
}

func (h MessageHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Conversations == nil {
		logging.FromContext(r.Context()).Error("conversation store unavailable")
		respondError(r.Context(), w, http.StatusInternalServerError, "messaging services unavailable")
		return false
	}
	return true
}

// StartConversation handles POST /messages/conversations. An existing conversation between the
// pair is returned with 200; a new one with 201.
func (h MessageHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req startConversationRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	conversation, created, err := h.Conversations.FindOrCreate(ctx, uuid.NewString(), caller.ID, req.ParticipantID, nowFrom(h.NowFunc))
	if err != nil {
		respondFailure(ctx, w, err, "unable to open conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, conversation)
}

// ListConversations handles GET /messages/conversations.
func (h MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	conversations, err := h.Conversations.ListForUser(ctx, caller.ID)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load conversations")
		return
	}
	respondJSON(ctx, w, http.StatusOK, conversations)
}

// Send handles POST /messages/messages with a text body.
func (h MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}
	if !h.participant(w, r, req.ConversationID, caller.ID) {
		return
	}

	h.store(w, r, models.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       caller.ID,
		Content:        strings.TrimSpace(req.Content),
		MessageType:    models.MessageText,
		CreatedAt:      nowFrom(h.NowFunc),
	})
}

// SendMedia returns the handler for POST /messages/{kind}. The file is posted under a field named
// after the kind, next to a conversationId form value.
func (h MessageHandler) SendMedia(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !h.ready(w, r) {
			return
		}
		caller, ok := actingUser(w, r)
		if !ok {
			return
		}

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			respondError(ctx, w, http.StatusBadRequest, kind+" is required")
			return
		}
		conversationID := strings.TrimSpace(r.FormValue("conversationId"))
		if conversationID == "" {
			respondError(ctx, w, http.StatusBadRequest, "conversationId is required")
			return
		}
		fh := formFile(r, kind)
		if fh == nil {
			respondError(ctx, w, http.StatusBadRequest, kind+" is required")
			return
		}
		if !h.participant(w, r, conversationID, caller.ID) {
			return
		}

		asset, err := upload(ctx, h.Media, messageFolder, fh)
		if err != nil {
			respondFailure(ctx, w, err, "unable to upload "+kind)
			return
		}

		h.store(w, r, models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			SenderID:       caller.ID,
			Content:        asset.URL,
			MessageType:    kind,
			CreatedAt:      nowFrom(h.NowFunc),
		})
	}
}

// Messages handles GET /messages/messages/{conversationId}, oldest first.
func (h MessageHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	conversationID := r.PathValue("conversationId")
	if !h.participant(w, r, conversationID, caller.ID) {
		return
	}

	messages, err := h.Conversations.ListMessages(ctx, conversationID)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load messages")
		return
	}
	respondJSON(ctx, w, http.StatusOK, messages)
}

// participant writes 403 and returns false unless userID takes part in the conversation.
func (h MessageHandler) participant(w http.ResponseWriter, r *http.Request, conversationID, userID string) bool {
	ok, err := h.Conversations.IsParticipant(r.Context(), conversationID, userID)
	if err != nil {
		respondFailure(r.Context(), w, err, "unable to load conversation")
		return false
	}
	if !ok {
		respondError(r.Context(), w, http.StatusForbidden, "not a participant of this conversation")
		return false
	}
	return true
}

// store persists message and relays it to the sockets joined to its conversation.
func (h MessageHandler) store(w http.ResponseWriter, r *http.Request, message models.Message) {
	ctx := r.Context()
	saved, err := h.Conversations.AddMessage(ctx, message)
	if err != nil {
		respondFailure(ctx, w, err, "unable to send message")
		return
	}

	if h.Hub != nil {
		if payload, err := json.Marshal(saved); err != nil {
			logging.FromContext(ctx).Warn("encode message for broadcast", "messageId", saved.ID, "error", err)
		} else {
			delivered := h.Hub.Broadcast(saved.ConversationID, payload)
			logging.FromContext(ctx).Debug("message relayed", "messageId", saved.ID, "clients", delivered)
		}
	}

	respondJSON(ctx, w, http.StatusCreated, saved)
}

type startConversationRequest struct {
	ParticipantID string `json:"participantId" validate:"required"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required"`
}
