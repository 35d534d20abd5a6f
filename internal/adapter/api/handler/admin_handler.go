package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/chatvault/internal/usecase"
)

// ChatJoiner is the subset of the chat connector the admin surface drives.
type ChatJoiner interface {
	Join(channels ...string)
	Part(channel string)
}

// AdminHandler serves the channel management endpoints.
type AdminHandler struct {
	connector ChatJoiner
	directory *usecase.DirectoryUseCase
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(connector ChatJoiner, directory *usecase.DirectoryUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		connector: connector,
		directory: directory,
		logger:    logger.With("component", "admin_handler"),
	}
}

type channelsRequest struct {
	Channels []string `json:"channels"`
}

// JoinChannels resolves the given channel ids to logins and joins their chats.
func (h *AdminHandler) JoinChannels(w http.ResponseWriter, r *http.Request) {
	logins, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	h.connector.Join(logins...)
	h.logger.Info("joined channels", "count", len(logins))
	w.WriteHeader(http.StatusNoContent)
}

// PartChannels resolves the given channel ids to logins and leaves their chats.
func (h *AdminHandler) PartChannels(w http.ResponseWriter, r *http.Request) {
	logins, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	for _, login := range logins {
		h.connector.Part(login)
	}
	h.logger.Info("parted channels", "count", len(logins))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) resolveRequest(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req channelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	if len(req.Channels) == 0 {
		http.Error(w, "no channels given", http.StatusBadRequest)
		return nil, false
	}

	names, err := h.directory.NamesByID(r.Context(), req.Channels)
	if err != nil {
		h.logger.Error("failed to resolve channel ids", "error", err)
		http.Error(w, "failed to resolve channel ids", http.StatusInternalServerError)
		return nil, false
	}

	logins := make([]string, 0, len(req.Channels))
	for _, id := range req.Channels {
		if login, ok := names[id]; ok {
			logins = append(logins, login)
		}
	}
	if len(logins) == 0 {
		http.Error(w, "no channels resolved", http.StatusBadRequest)
		return nil, false
	}
	return logins, true
}
