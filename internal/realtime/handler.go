package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/linkup/backend/internal/logging"
)

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// Handler upgrades authenticated requests to websocket connections served by Hub.
type Handler struct {
	Hub      *Hub
	Auth     Authenticator
	Upgrader websocket.Upgrader
}

// NewHandler returns a Handler accepting connections from any origin.
func NewHandler(hub *Hub, authenticator Authenticator) *Handler {
	return &Handler{
		Hub:  hub,
		Auth: authenticator,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	if h.Hub == nil || h.Auth == nil {
		logger.Error("websocket handler missing dependencies")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	userID, err := h.Auth.Authenticate(r.Context(), token)
	if err != nil {
		logger.Info("websocket authentication failed", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.Hub, conn, userID)
	h.Hub.register(client)
	logger.Info("websocket connected", "user_id", userID)

	// The request context ends when ServeHTTP returns, so the pumps run detached from it.
	ctx := logging.WithLogger(context.Background(), client.logger)
	go client.writePump()
	go client.readPump(ctx)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
